package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Station-Manager/elm327"
	"github.com/Station-Manager/elm327/bluez"
	"github.com/Station-Manager/elm327/pid"
)

// Device is the chosen adapter. It lives for the session only.
type Device struct {
	Name    string
	Address string
	// Path is the transport specific handle: a BlueZ object path or a
	// serial device path.
	Path string
}

// Info is the main screen line for the device.
func (d Device) Info() string {
	return fmt.Sprintf("Name: %s\tAddress: %s", d.Name, d.Address)
}

// Link is an open adapter connection.
type Link interface {
	pid.Execer
	Close() error
}

// Dialer lists candidate devices and opens links to them.
type Dialer interface {
	PairedDevices(ctx context.Context) ([]Device, error)
	Dial(ctx context.Context, dev Device) (Link, error)
}

// Enabler is implemented by dialers that can switch the radio on.
type Enabler interface {
	EnableBluetooth(ctx context.Context) error
}

// BluezDialer connects over RFCOMM through bluetoothd.
type BluezDialer struct {
	Manager *bluez.Manager
	// Link configures the framing and timeouts of the RFCOMM link.
	Link   elm327.Config
	Logger elm327.Logger
}

func (d *BluezDialer) PairedDevices(ctx context.Context) ([]Device, error) {
	devs, err := d.Manager.PairedDevices(ctx)
	switch {
	case errors.Is(err, bluez.ErrNoAdapter):
		return nil, fmt.Errorf("%w: %w", ErrNoBluetooth, err)
	case errors.Is(err, bluez.ErrAdapterOff):
		return nil, fmt.Errorf("%w: %w", ErrBluetoothOff, err)
	case err != nil:
		return nil, err
	}
	out := make([]Device, 0, len(devs))
	for _, dev := range devs {
		out = append(out, Device{Name: dev.DisplayName(), Address: dev.Address, Path: dev.Path})
	}
	return out, nil
}

func (d *BluezDialer) Dial(ctx context.Context, dev Device) (Link, error) {
	f, err := d.Manager.Connect(ctx, bluez.Device{Path: dev.Path, Address: dev.Address, Name: dev.Name})
	if err != nil {
		return nil, err
	}
	cfg := d.Link
	cfg.PortName = "rfcomm:" + dev.Address
	port, err := elm327.OpenFile(f, cfg, d.Logger)
	if err != nil {
		return nil, err
	}
	return port, nil
}

func (d *BluezDialer) EnableBluetooth(ctx context.Context) error {
	return d.Manager.PowerOn(ctx)
}

// SerialDialer opens a serial device, e.g. a bound /dev/rfcomm0 or a USB
// adapter.
type SerialDialer struct {
	Config elm327.Config
	Logger elm327.Logger
}

// PairedDevices lists the serial ports present on the system.
func (d *SerialDialer) PairedDevices(context.Context) ([]Device, error) {
	ports, err := elm327.AvailablePorts()
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(ports))
	for _, p := range ports {
		out = append(out, Device{Name: filepath.Base(p), Address: p, Path: p})
	}
	return out, nil
}

func (d *SerialDialer) Dial(_ context.Context, dev Device) (Link, error) {
	cfg := d.Config
	cfg.PortName = dev.Path
	port, err := elm327.Open(cfg, d.Logger)
	if err != nil {
		return nil, err
	}
	return port, nil
}
