package bluez

import (
	"os"
	"sync"

	dbus "github.com/godbus/dbus/v5"
)

type connectResult struct {
	fd   int
	path dbus.ObjectPath
	err  error
}

// profile implements org.bluez.Profile1. bluetoothd calls NewConnection
// with the RFCOMM socket after a successful ConnectProfile.
type profile struct {
	mu sync.Mutex
	ch chan connectResult
}

func newProfile() *profile {
	return &profile{}
}

// arm installs a receiver for the next connection.
func (p *profile) arm() (<-chan connectResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		return nil, ErrConnectBusy
	}
	p.ch = make(chan connectResult, 1)
	return p.ch, nil
}

func (p *profile) disarm() {
	p.mu.Lock()
	p.ch = nil
	p.mu.Unlock()
}

func (p *profile) Release() *dbus.Error { return nil }

func (p *profile) Cancel() *dbus.Error { return nil }

func (p *profile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

// NewConnection hands fd to the waiting Connect call, or closes it and
// rejects the connection when nobody is waiting.
func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()

	if ch != nil {
		select {
		case ch <- connectResult{fd: int(fd), path: dev}:
			return nil
		default:
		}
	}
	_ = os.NewFile(uintptr(fd), "rfcomm").Close()
	return dbus.NewError("org.bluez.Error.Rejected", []interface{}{ErrRejected.Error()})
}
