// Package session is the live data screen: it picks a device, connects and
// configures the adapter, and polls the selected parameters on a timer.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"

	"github.com/Station-Manager/elm327/params"
	"github.com/Station-Manager/elm327/pid"
)

// User-facing errors; the text is shown as is.
var (
	ErrNoDevice        = errors.New("Please choose Bluetooth device first")
	ErrConnect         = errors.New("Unable to establish connection")
	ErrNoPairedDevices = errors.New("No paired devices found")
	ErrBluetoothOff    = errors.New("Application requires Bluetooth enabled")
	ErrNoBluetooth     = errors.New("device doesn't support Bluetooth")
	ErrNotConnected    = errors.New("not connected")
	ErrConnected       = errors.New("already connected")
	ErrBadIndex        = errors.New("device index out of range")
)

const (
	NoticeConnected = "Connected to OBD"

	DefaultInitialDelay   = 100 * time.Millisecond
	DefaultInterval       = time.Second
	DefaultCommandTimeout = 5 * time.Second
)

// Logger is the logging surface the controller needs.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Instrumentation receives poll timings. internal/metrics implements it.
type Instrumentation interface {
	CommandDone(name string, elapsed time.Duration, err error)
	TickDone(elapsed time.Duration)
	Connection(up bool)
}

type Options struct {
	Dialer  Dialer
	Display Display
	Logger  Logger
	// Clock drives the poll timer; the real clock when nil.
	Clock     clockwork.Clock
	Selection *params.Selection
	Units     pid.Units
	Protocol  pid.Protocol
	// ResetOnConnect sends AT Z before the setup sequence.
	ResetOnConnect  bool
	InitialDelay    time.Duration
	Interval        time.Duration
	CommandTimeout  time.Duration
	Instrumentation Instrumentation
}

// Controller owns one link and at most one poll loop.
type Controller struct {
	dialer  Dialer
	display Display
	logger  Logger
	clock   clockwork.Clock
	instr   Instrumentation

	selection      *params.Selection
	units          pid.Units
	protocol       pid.Protocol
	resetOnConnect bool
	initialDelay   time.Duration
	interval       time.Duration
	commandTimeout time.Duration

	polling atomic.Bool

	mu     sync.Mutex
	device *Device
	link   Link
	cancel context.CancelFunc
	done   chan struct{}
	// last is closed when the most recently started loop has exited.
	last chan struct{}

	// execMu keeps a single command on the wire at a time.
	execMu sync.Mutex
}

// New builds a controller and draws the initial labels.
func New(opts Options) (*Controller, error) {
	if opts.Dialer == nil {
		return nil, errors.New("session: dialer is required")
	}
	if opts.Display == nil {
		return nil, errors.New("session: display is required")
	}
	c := &Controller{
		dialer:         opts.Dialer,
		display:        opts.Display,
		logger:         opts.Logger,
		clock:          opts.Clock,
		instr:          opts.Instrumentation,
		selection:      opts.Selection,
		units:          opts.Units,
		protocol:       opts.Protocol,
		resetOnConnect: opts.ResetOnConnect,
		initialDelay:   opts.InitialDelay,
		interval:       opts.Interval,
		commandTimeout: opts.CommandTimeout,
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.selection == nil {
		c.selection = params.Default()
	}
	if c.protocol == (pid.Protocol{}) {
		c.protocol = pid.ProtocolAuto
	}
	if c.initialDelay <= 0 {
		c.initialDelay = DefaultInitialDelay
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	if c.commandTimeout <= 0 {
		c.commandTimeout = DefaultCommandTimeout
	}
	c.display.SetLabels(c.selection.Labels())
	return c, nil
}

// PairedDevices lists the devices the user can choose from. An empty list
// is reported as ErrNoPairedDevices.
func (c *Controller) PairedDevices(ctx context.Context) ([]Device, error) {
	devs, err := c.dialer.PairedDevices(ctx)
	if err != nil {
		c.logger.Warn("Listing paired devices failed", "error", err)
		c.notifyErr(err)
		return nil, err
	}
	if len(devs) == 0 {
		c.display.Notify(ErrNoPairedDevices.Error())
		return nil, ErrNoPairedDevices
	}
	return devs, nil
}

// EnableBluetooth asks the dialer to power the adapter on. Dialers that
// cannot report ErrBluetoothOff.
func (c *Controller) EnableBluetooth(ctx context.Context) error {
	en, ok := c.dialer.(Enabler)
	if !ok {
		c.display.Notify(ErrBluetoothOff.Error())
		return ErrBluetoothOff
	}
	if err := en.EnableBluetooth(ctx); err != nil {
		c.logger.Warn("Enabling Bluetooth failed", "error", err)
		c.display.Notify(ErrBluetoothOff.Error())
		return fmt.Errorf("%w: %w", ErrBluetoothOff, err)
	}
	return nil
}

// ChooseDevice records devs[index] as the device to connect to.
func (c *Controller) ChooseDevice(devs []Device, index int) error {
	if index < 0 || index >= len(devs) {
		return ErrBadIndex
	}
	dev := devs[index]
	c.mu.Lock()
	c.device = &dev
	c.mu.Unlock()

	c.display.Notify("Chosen: " + dev.Name)
	c.display.SetInfo(dev.Info())
	c.logger.Info("Device chosen", "name", dev.Name, "address", dev.Address)
	return nil
}

// Device returns the chosen device.
func (c *Controller) Device() (Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return Device{}, false
	}
	return *c.device, true
}

func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

func (c *Controller) Polling() bool {
	return c.polling.Load()
}

// Link returns the open link, or nil.
func (c *Controller) Link() Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// Connect opens a link to the chosen device and runs the setup sequence.
// Any failure closes the link and is reported as ErrConnect.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	dev, link := c.device, c.link
	c.mu.Unlock()

	if dev == nil {
		c.display.Notify(ErrNoDevice.Error())
		return ErrNoDevice
	}
	if link != nil {
		return ErrConnected
	}

	link, err := c.dialer.Dial(ctx, *dev)
	if err == nil {
		err = c.setup(ctx, link)
		if err != nil {
			err = errors.Join(err, link.Close())
		}
	}
	if err != nil {
		c.logger.Error("Connection failed", "address", dev.Address, "error", err)
		c.display.Notify(ErrConnect.Error())
		if c.instr != nil {
			c.instr.Connection(false)
		}
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	c.mu.Lock()
	c.link = link
	c.mu.Unlock()

	if c.instr != nil {
		c.instr.Connection(true)
	}
	c.logger.Info("Connected", "address", dev.Address, "protocol", c.protocol.Name)
	c.display.Notify(NoticeConnected)
	return nil
}

func (c *Controller) setup(ctx context.Context, link Link) error {
	cmds := pid.Setup(c.protocol)
	if c.resetOnConnect {
		cmds = append([]pid.Command{pid.Reset()}, cmds...)
	}
	for _, cmd := range cmds {
		r, err := c.run(ctx, link, cmd)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Name(), err)
		}
		c.logger.Debug("Setup command", "command", r.Request, "response", r.Raw)
	}
	return nil
}

func (c *Controller) run(ctx context.Context, link Link, cmd pid.Command) (pid.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, c.commandTimeout)
	defer cancel()

	c.execMu.Lock()
	defer c.execMu.Unlock()

	start := time.Now()
	r, err := cmd.Run(ctx, link)
	if c.instr != nil {
		c.instr.CommandDone(cmd.Name(), time.Since(start), err)
	}
	return r, err
}

// Start begins polling. It is a no-op while already polling. A loop that is
// still stopping is waited for before the new one ticks.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return ErrNotConnected
	}
	if c.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	prev, done := c.last, make(chan struct{})
	c.cancel, c.done, c.last = cancel, done, done
	c.polling.Store(true)
	go c.loop(ctx, c.link, prev, done)
	c.logger.Info("Polling started", "interval", c.interval.String(), "parameters", c.selection.Names())
	return nil
}

// Stop cancels the timer, waits for a running tick and clears the results.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.link == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	wait := c.stopLocked()
	c.mu.Unlock()

	wait()
	c.display.Clear()
	return nil
}

// stopLocked cancels the poll loop and returns a func that waits for it to
// exit. The caller holds mu and must call the func after releasing it: a
// running tick may be blocked on the display, which can be reading state
// guarded by mu.
func (c *Controller) stopLocked() func() {
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	if cancel == nil {
		return func() {}
	}
	cancel()
	c.polling.Store(false)
	return func() {
		<-done
		c.logger.Info("Polling stopped")
	}
}

// loop ticks once after the initial delay and then at a fixed rate. Ticks
// that come due while one is running are dropped. prev is the previous
// loop, already cancelled; done is not closed before prev exits.
func (c *Controller) loop(ctx context.Context, link Link, prev, done chan struct{}) {
	defer close(done)

	if prev != nil {
		<-prev
	}

	timer := c.clock.NewTimer(c.initialDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.Chan():
	}

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	c.tick(ctx, link)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.tick(ctx, link)
		}
	}
}

// tick runs each selected command once, in slot order. Errors are shown and
// the remaining commands still run.
func (c *Controller) tick(ctx context.Context, link Link) {
	start := time.Now()
	for slot, cmd := range c.selection.Commands(c.units) {
		if ctx.Err() != nil {
			return
		}
		r, err := c.run(ctx, link, cmd)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("Poll failed", "parameter", cmd.Name(), "error", err)
			c.display.Notify(err.Error())
			continue
		}
		c.display.Show(slot, r)
	}
	if c.instr != nil {
		c.instr.TickDone(time.Since(start))
	}
}

// SetParameters applies the picker result. Unknown names are ignored; the
// remaining names must satisfy the selection bounds.
func (c *Controller) SetParameters(names []string) error {
	known := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := params.Lookup(n); ok {
			known = append(known, n)
		}
	}
	if err := c.selection.Replace(known); err != nil {
		c.display.Notify(err.Error())
		return err
	}
	c.display.SetLabels(c.selection.Labels())
	c.display.Clear()
	c.logger.Info("Parameters selected", "parameters", c.selection.Names())
	return nil
}

// Selection is the live parameter selection.
func (c *Controller) Selection() *params.Selection {
	return c.selection
}

// Exec sends a raw command on the open link and returns the response as the
// adapter sent it.
func (c *Controller) Exec(ctx context.Context, cmd string) (string, error) {
	link := c.Link()
	if link == nil {
		return "", ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, c.commandTimeout)
	defer cancel()

	c.execMu.Lock()
	defer c.execMu.Unlock()
	return link.Exec(ctx, cmd)
}

// RunOnce polls every selected command once, outside the timer.
func (c *Controller) RunOnce(ctx context.Context) ([]pid.Reading, error) {
	link := c.Link()
	if link == nil {
		return nil, ErrNotConnected
	}
	cmds := c.selection.Commands(c.units)
	out := make([]pid.Reading, 0, len(cmds))
	var errs []error
	for slot, cmd := range cmds {
		r, err := c.run(ctx, link, cmd)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cmd.Name(), err))
			continue
		}
		c.display.Show(slot, r)
		out = append(out, r)
	}
	return out, errors.Join(errs...)
}

// Close stops polling and closes the link.
func (c *Controller) Close() error {
	c.mu.Lock()
	wait := c.stopLocked()
	link := c.link
	c.link = nil
	c.mu.Unlock()

	wait()
	if link == nil {
		return nil
	}
	if c.instr != nil {
		c.instr.Connection(false)
	}
	return link.Close()
}

func (c *Controller) notifyErr(err error) {
	switch {
	case errors.Is(err, ErrBluetoothOff):
		c.display.Notify(ErrBluetoothOff.Error())
	case errors.Is(err, ErrNoBluetooth):
		c.display.Notify(ErrNoBluetooth.Error())
	default:
		c.display.Notify(err.Error())
	}
}
