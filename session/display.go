package session

import (
	"sync"

	"github.com/Station-Manager/elm327/pid"
)

// Display is everything the controller draws on. Implementations must be
// safe to call from the poll goroutine.
type Display interface {
	// SetInfo shows the chosen device line.
	SetInfo(info string)
	// SetLabels sets the slot labels, one per result row.
	SetLabels(labels []string)
	// Show writes a reading into a result slot.
	Show(slot int, r pid.Reading)
	// Notify shows a transient message.
	Notify(msg string)
	// Clear blanks every result slot. Labels stay.
	Clear()
}

type tee []Display

// Tee fans every call out to each display in order.
func Tee(displays ...Display) Display {
	return tee(displays)
}

func (t tee) SetInfo(info string) {
	for _, d := range t {
		d.SetInfo(info)
	}
}

func (t tee) SetLabels(labels []string) {
	for _, d := range t {
		d.SetLabels(labels)
	}
}

func (t tee) Show(slot int, r pid.Reading) {
	for _, d := range t {
		d.Show(slot, r)
	}
}

func (t tee) Notify(msg string) {
	for _, d := range t {
		d.Notify(msg)
	}
}

func (t tee) Clear() {
	for _, d := range t {
		d.Clear()
	}
}

// Board is an in-memory Display. The CLI prints from it and tests assert
// against it.
type Board struct {
	mu      sync.Mutex
	info    string
	labels  []string
	results []string
	notices []string
	// OnShow, when set, is called after every Show without the lock held.
	OnShow func(slot int, r pid.Reading)
	// OnNotify, when set, is called after every Notify without the lock held.
	OnNotify func(msg string)
}

func (b *Board) SetInfo(info string) {
	b.mu.Lock()
	b.info = info
	b.mu.Unlock()
}

func (b *Board) SetLabels(labels []string) {
	b.mu.Lock()
	b.labels = append([]string(nil), labels...)
	if len(b.results) < len(labels) {
		b.results = append(b.results, make([]string, len(labels)-len(b.results))...)
	}
	b.mu.Unlock()
}

func (b *Board) Show(slot int, r pid.Reading) {
	b.mu.Lock()
	if slot >= len(b.results) {
		b.results = append(b.results, make([]string, slot+1-len(b.results))...)
	}
	b.results[slot] = r.Calculated
	fn := b.OnShow
	b.mu.Unlock()
	if fn != nil {
		fn(slot, r)
	}
}

func (b *Board) Notify(msg string) {
	b.mu.Lock()
	b.notices = append(b.notices, msg)
	fn := b.OnNotify
	b.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (b *Board) Clear() {
	b.mu.Lock()
	clear(b.results)
	b.mu.Unlock()
}

func (b *Board) Info() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info
}

func (b *Board) Labels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.labels...)
}

func (b *Board) Results() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.results...)
}

func (b *Board) Notices() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.notices...)
}

// LastNotice returns the most recent notice, or "".
func (b *Board) LastNotice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.notices) == 0 {
		return ""
	}
	return b.notices[len(b.notices)-1]
}
