package store

import (
	"context"
	"sync"
	"time"

	"github.com/Station-Manager/elm327/pid"
)

// Logger is what the recorder reports write failures to.
type Logger interface {
	Warn(msg string, kv ...any)
}

// Recorder is a session.Display that writes every reading shown into the
// current recording. Start and Stop bracket a recording.
type Recorder struct {
	store  *Store
	logger Logger

	mu sync.Mutex
	id string
}

func (s *Store) Recorder(logger Logger) *Recorder {
	return &Recorder{store: s, logger: logger}
}

// Start opens a new recording for the device.
func (r *Recorder) Start(ctx context.Context, deviceName, address string) error {
	id, err := r.store.Begin(ctx, deviceName, address)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.id = id
	r.mu.Unlock()
	return nil
}

// Stop closes the current recording, if any.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	id := r.id
	r.id = ""
	r.mu.Unlock()
	if id == "" {
		return nil
	}
	return r.store.End(ctx, id)
}

// ID is the current recording id, or "".
func (r *Recorder) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

func (r *Recorder) Show(_ int, reading pid.Reading) {
	id := r.ID()
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.store.Add(ctx, id, reading); err != nil && r.logger != nil {
		r.logger.Warn("Recording reading failed", "parameter", reading.Name, "error", err)
	}
}

func (r *Recorder) SetInfo(string)     {}
func (r *Recorder) SetLabels([]string) {}
func (r *Recorder) Notify(string)      {}
func (r *Recorder) Clear()             {}
