package elm327

import (
	"errors"
	"os"
	"time"
)

// SerialPort abstracts the byte stream a Port frames responses from.
// *Service satisfies it.
type SerialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(d time.Duration) error
}

// portHandle is the physical device owned by a Service.
type portHandle interface {
	SetReadTimeout(timeout time.Duration) error
	SetDTR(bool) error
	SetRTS(bool) error
	Write([]byte) (int, error)
	Read([]byte) (int, error)
	Close() error
}

// fileHandle adapts an already connected RFCOMM socket (as handed out by
// BlueZ) to portHandle. There are no modem control lines on a socket.
type fileHandle struct {
	f       *os.File
	timeout time.Duration
}

func newFileHandle(f *os.File) *fileHandle {
	return &fileHandle{f: f}
}

func (h *fileHandle) SetReadTimeout(timeout time.Duration) error {
	h.timeout = timeout
	return nil
}

func (h *fileHandle) SetDTR(bool) error { return nil }
func (h *fileHandle) SetRTS(bool) error { return nil }

func (h *fileHandle) Write(b []byte) (int, error) { return h.f.Write(b) }

// Read mirrors go.bug.st/serial: a read that times out returns (0, nil).
func (h *fileHandle) Read(b []byte) (int, error) {
	if h.timeout > 0 {
		if err := h.f.SetReadDeadline(time.Now().Add(h.timeout)); err == nil {
			n, err := h.f.Read(b)
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return n, nil
			}
			return n, err
		}
		// descriptor is not pollable, fall through to a blocking read
	}
	return h.f.Read(b)
}

func (h *fileHandle) Close() error { return h.f.Close() }
