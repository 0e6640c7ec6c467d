package bluez

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	dbus "github.com/godbus/dbus/v5"

	"github.com/Station-Manager/elm327"
)

var (
	ErrClosed      = errors.New("bluez: manager closed")
	ErrNoAdapter   = errors.New("bluez: no bluetooth adapter")
	ErrAdapterOff  = errors.New("bluez: bluetooth adapter is powered off")
	ErrNoDevice    = errors.New("bluez: device path required")
	ErrNotPaired   = errors.New("bluez: device is not paired")
	ErrRejected    = errors.New("bluez: connection rejected")
	ErrConnectBusy = errors.New("bluez: connect already in progress")
)

var pathCounter atomic.Uint64

// Manager talks to bluetoothd on the system bus. The zero value is not
// usable; call New.
type Manager struct {
	Logger elm327.Logger

	mu      sync.Mutex
	closed  bool
	bus     *dbus.Conn
	prof    *profile
	path    dbus.ObjectPath
	cleanup []func()
}

func New(logger elm327.Logger) *Manager {
	return &Manager{Logger: logger}
}

func (m *Manager) logger() elm327.Logger {
	if m.Logger == nil {
		return elm327.NopLogger()
	}
	return m.Logger
}

func (m *Manager) ensureBusLocked() error {
	if m.closed {
		return ErrClosed
	}
	if m.bus != nil {
		return nil
	}
	c, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("bluez: connect system bus: %w", err)
	}
	m.bus = c
	m.cleanup = append(m.cleanup, func() { _ = c.Close() })
	return nil
}

func (m *Manager) conn() (*dbus.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureBusLocked(); err != nil {
		return nil, err
	}
	return m.bus, nil
}

func (m *Manager) objects(ctx context.Context) (managedObjects, error) {
	bus, err := m.conn()
	if err != nil {
		return nil, err
	}
	var objs managedObjects
	call := bus.Object(bluezService, "/").CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("bluez: GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("bluez: decode GetManagedObjects: %w", err)
	}
	return objs, nil
}

// Powered reports whether any adapter is powered on.
func (m *Manager) Powered(ctx context.Context) (bool, error) {
	objs, err := m.objects(ctx)
	if err != nil {
		return false, err
	}
	ads := adapters(objs)
	if len(ads) == 0 {
		return false, ErrNoAdapter
	}
	for _, on := range ads {
		if on {
			return true, nil
		}
	}
	return false, nil
}

// PowerOn switches every adapter on.
func (m *Manager) PowerOn(ctx context.Context) error {
	objs, err := m.objects(ctx)
	if err != nil {
		return err
	}
	ads := adapters(objs)
	if len(ads) == 0 {
		return ErrNoAdapter
	}
	bus, err := m.conn()
	if err != nil {
		return err
	}
	var errs []error
	for path, on := range ads {
		if on {
			continue
		}
		call := bus.Object(bluezService, path).CallWithContext(ctx, propsIface+".Set", 0,
			adapterIface, "Powered", dbus.MakeVariant(true))
		if call.Err != nil {
			errs = append(errs, fmt.Errorf("bluez: power on %s: %w", path, call.Err))
			continue
		}
		m.logger().Info("Bluetooth adapter powered on", "adapter", string(path))
	}
	return errors.Join(errs...)
}

// PairedDevices lists devices bonded with a powered adapter. It fails with
// ErrAdapterOff when Bluetooth is disabled.
func (m *Manager) PairedDevices(ctx context.Context) ([]Device, error) {
	objs, err := m.objects(ctx)
	if err != nil {
		return nil, err
	}
	ads := adapters(objs)
	if len(ads) == 0 {
		return nil, ErrNoAdapter
	}
	powered := false
	for _, on := range ads {
		powered = powered || on
	}
	if !powered {
		return nil, ErrAdapterOff
	}
	devs := pairedDevices(objs)
	m.logger().Debug("Listed paired devices", "count", len(devs))
	return devs, nil
}

// FindDevice resolves a device by address or object path.
func (m *Manager) FindDevice(ctx context.Context, key string) (Device, error) {
	devs, err := m.PairedDevices(ctx)
	if err != nil {
		return Device{}, err
	}
	for _, d := range devs {
		if d.Address == key || d.Path == key || d.DisplayName() == key {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %s", ErrNotPaired, key)
}

// registerLocked exports the client Profile1 object and registers it for
// the serial port profile. It runs once per Manager.
func (m *Manager) registerLocked() error {
	if m.prof != nil {
		return nil
	}
	prof := newProfile()
	path := dbus.ObjectPath("/org/stationmanager/elm327/client" + strconv.FormatUint(pathCounter.Add(1), 10))
	if err := m.bus.Export(prof, path, profileIface); err != nil {
		return fmt.Errorf("bluez: export profile: %w", err)
	}
	pm := m.bus.Object(bluezService, "/org/bluez")
	opts := map[string]dbus.Variant{
		"Role":                  dbus.MakeVariant("client"),
		"RequireAuthentication": dbus.MakeVariant(false),
		"RequireAuthorization":  dbus.MakeVariant(false),
	}
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, path, SPPUUID.String(), opts); call.Err != nil {
		_ = m.bus.Export(nil, path, profileIface)
		return fmt.Errorf("bluez: RegisterProfile: %w", call.Err)
	}
	bus := m.bus
	m.cleanup = append(m.cleanup, func() {
		_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, path).Err
		_ = bus.Export(nil, path, profileIface)
	})
	m.prof, m.path = prof, path
	return nil
}

// Connect opens an RFCOMM channel to dev's serial port profile and returns
// the connected socket. The caller owns the file.
func (m *Manager) Connect(ctx context.Context, dev Device) (*os.File, error) {
	if dev.Path == "" {
		return nil, ErrNoDevice
	}
	m.mu.Lock()
	if err := m.ensureBusLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.registerLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	prof, bus := m.prof, m.bus
	m.mu.Unlock()

	ch, err := prof.arm()
	if err != nil {
		return nil, err
	}
	defer prof.disarm()

	m.logger().Info("Connecting", "device", dev.DisplayName(), "address", dev.Address)
	call := bus.Object(bluezService, dbus.ObjectPath(dev.Path)).
		CallWithContext(ctx, deviceIface+".ConnectProfile", 0, SPPUUID.String())
	if call.Err != nil {
		return nil, fmt.Errorf("bluez: ConnectProfile %s: %w", dev.Address, call.Err)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("bluez: connect canceled: %w", ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return os.NewFile(uintptr(res.fd), "rfcomm:"+dev.Address), nil
	}
}

// Disconnect tears down the serial port profile connection to dev.
func (m *Manager) Disconnect(ctx context.Context, dev Device) error {
	bus, err := m.conn()
	if err != nil {
		return err
	}
	call := bus.Object(bluezService, dbus.ObjectPath(dev.Path)).
		CallWithContext(ctx, deviceIface+".DisconnectProfile", 0, SPPUUID.String())
	if call.Err != nil {
		return fmt.Errorf("bluez: DisconnectProfile %s: %w", dev.Address, call.Err)
	}
	return nil
}

// Close unregisters the profile and drops the bus connection. It is safe
// to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cleanup := m.cleanup
	m.cleanup = nil
	m.mu.Unlock()

	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
	return nil
}
