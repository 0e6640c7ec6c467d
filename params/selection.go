package params

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Station-Manager/elm327/pid"
)

// Selection is an ordered set of catalog names holding between MinSelected
// and MaxSelected entries once built. It is safe for concurrent use.
type Selection struct {
	mu    sync.RWMutex
	names []string
}

// Default returns the stock selection.
func Default() *Selection {
	return &Selection{names: DefaultNames()}
}

// FromNames builds a selection from stored names. Unknown and duplicate
// names are skipped, extras beyond MaxSelected are dropped, and an empty
// result falls back to Default.
func FromNames(names []string) *Selection {
	s := &Selection{}
	for _, n := range names {
		if len(s.names) == MaxSelected {
			break
		}
		if _, ok := Lookup(n); !ok || slices.Contains(s.names, n) {
			continue
		}
		s.names = append(s.names, n)
	}
	if len(s.names) < MinSelected {
		return Default()
	}
	return s
}

// Names returns the selected names in order.
func (s *Selection) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.names)
}

func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

func (s *Selection) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.names, name)
}

// Add appends name. Adding a name already selected is a no-op.
func (s *Selection) Add(name string) error {
	if _, ok := Lookup(name); !ok {
		return fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.names, name) {
		return nil
	}
	if len(s.names) >= MaxSelected {
		return ErrTooMany
	}
	s.names = append(s.names, name)
	return nil
}

// Remove drops name, refusing to leave the selection empty.
func (s *Selection) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.names, name)
	if i < 0 {
		return nil
	}
	if len(s.names) <= MinSelected {
		return ErrTooFew
	}
	s.names = slices.Delete(s.names, i, i+1)
	return nil
}

// Toggle adds name when absent and removes it when present. It reports
// whether name is selected afterwards. On error the selection is unchanged.
func (s *Selection) Toggle(name string) (bool, error) {
	if s.Contains(name) {
		if err := s.Remove(name); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := s.Add(name); err != nil {
		return false, err
	}
	return true, nil
}

// Replace swaps in a whole new list, validating it first.
func (s *Selection) Replace(names []string) error {
	next := &Selection{}
	for _, n := range names {
		if err := next.Add(n); err != nil {
			return err
		}
	}
	if len(next.names) < MinSelected {
		return ErrTooFew
	}
	s.mu.Lock()
	s.names = next.names
	s.mu.Unlock()
	return nil
}

// Commands builds one command per selected name, in slot order.
func (s *Selection) Commands(u pid.Units) []pid.Command {
	names := s.Names()
	cmds := make([]pid.Command, 0, len(names))
	for _, n := range names {
		e, _ := Lookup(n)
		cmds = append(cmds, e.Factory(u))
	}
	return cmds
}

// Labels returns MaxSelected slot labels: "<name>:" for filled slots and
// "" for empty ones.
func (s *Selection) Labels() []string {
	names := s.Names()
	labels := make([]string, MaxSelected)
	for i, n := range names {
		labels[i] = n + ":"
	}
	return labels
}
