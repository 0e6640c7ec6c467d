package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Station-Manager/elm327/pid"
)

type (
	infoMsg   string
	labelsMsg []string
	showMsg   struct {
		slot    int
		reading pid.Reading
	}
	noticeMsg string
	clearMsg  struct{}
)

// Display turns session display calls into program messages. Calls made
// before Attach are queued and delivered on Attach.
type Display struct {
	mu      sync.Mutex
	send    func(tea.Msg)
	pending []tea.Msg

	// sendMu keeps delivery in posting order across the Attach flush.
	sendMu sync.Mutex
}

func NewDisplay() *Display {
	return &Display{}
}

// Attach starts delivering to p. It may be called before p.Run; queued
// messages are delivered once the program is reading.
func (d *Display) Attach(p *tea.Program) {
	d.attach(p.Send)
}

func (d *Display) attach(send func(tea.Msg)) {
	d.sendMu.Lock()
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.send = send
	d.mu.Unlock()

	go func() {
		defer d.sendMu.Unlock()
		for _, msg := range pending {
			send(msg)
		}
	}()
}

func (d *Display) post(msg tea.Msg) {
	d.mu.Lock()
	send := d.send
	if send == nil {
		d.pending = append(d.pending, msg)
	}
	d.mu.Unlock()
	if send == nil {
		return
	}
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	send(msg)
}

func (d *Display) SetInfo(info string) { d.post(infoMsg(info)) }

func (d *Display) SetLabels(labels []string) {
	d.post(labelsMsg(append([]string(nil), labels...)))
}

func (d *Display) Show(slot int, r pid.Reading) { d.post(showMsg{slot: slot, reading: r}) }

func (d *Display) Notify(msg string) { d.post(noticeMsg(msg)) }

func (d *Display) Clear() { d.post(clearMsg{}) }
