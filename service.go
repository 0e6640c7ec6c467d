package elm327

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	gobug "go.bug.st/serial"
	"go.uber.org/atomic"
)

// allow tests to override external dependencies
var (
	openPort     = func(name string, mode *gobug.Mode) (portHandle, error) { return gobug.Open(name, mode) }
	getPortsList = gobug.GetPortsList
)

const (
	ServiceName = "elm327"

	// MaxBufferSize bounds a single Read/Write call. ELM327 responses are a
	// few hundred bytes at most, even for multi-frame VIN replies.
	MaxBufferSize = 64 * 1024
)

// Logger is the subset of the logging service the link uses.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

// Service owns the physical port behind a link: a serial device opened with
// go.bug.st/serial, or an RFCOMM socket attached with Attach.
type Service struct {
	Logger Logger
	Config *Config

	initialized atomic.Bool
	isOpen      atomic.Bool
	mode        *gobug.Mode
	handle      portHandle
	mu          sync.RWMutex
	writeMu     sync.Mutex
	closeOnce   sync.Once

	bufferPool *BufferPool

	metrics            *Metrics
	metricsEnabled     atomic.Bool
	metricsBroadcaster *MetricsBroadcaster

	configMu sync.RWMutex

	initOnce sync.Once
	initErr  error
}

// Initialize validates the config. It runs once; later calls return the
// first result.
func (p *Service) Initialize() error {
	p.initOnce.Do(func() {
		p.initErr = p.doInitialize()
	})
	return p.initErr
}

func (p *Service) doInitialize() (err error) {
	p.metrics = &Metrics{}
	p.metricsEnabled.Store(true)
	p.bufferPool = NewBufferPool(256, p)

	defer func() {
		if err != nil {
			p.metrics.InitializationErrors.Add(1)
			return
		}
		p.initialized.Store(true)
	}()

	if p.Logger == nil {
		p.Logger = nopLogger{}
	}
	if p.Config == nil {
		p.metrics.ConfigurationErrors.Add(1)
		return errors.New("link config has not been set")
	}

	cfg := p.Config.withDefaults()
	p.setConfigSafe(&cfg)

	if err = ValidateConfig(&cfg); err != nil {
		p.metrics.ConfigurationErrors.Add(1)
		return fmt.Errorf("invalid link configuration: %w", err)
	}

	if p.mode, err = mode(cfg); err != nil {
		p.metrics.ConfigurationErrors.Add(1)
		return fmt.Errorf("invalid link configuration: %w", err)
	}
	return nil
}

// initializeAttached is Initialize for links whose descriptor is already open;
// there is no serial mode to validate.
func (p *Service) initializeAttached() error {
	p.initOnce.Do(func() {
		p.metrics = &Metrics{}
		p.metricsEnabled.Store(true)
		p.bufferPool = NewBufferPool(256, p)
		if p.Logger == nil {
			p.Logger = nopLogger{}
		}
		cfg := Config{}
		if p.Config != nil {
			cfg = *p.Config
		}
		cfg = cfg.withDefaults()
		p.setConfigSafe(&cfg)
		if err := validateAttachConfig(&cfg); err != nil {
			p.metrics.InitializationErrors.Add(1)
			p.initErr = fmt.Errorf("invalid link configuration: %w", err)
			return
		}
		p.initialized.Store(true)
	})
	return p.initErr
}

func AvailablePorts() ([]string, error) {
	ports, err := getPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}

// Open opens the configured serial device.
func (p *Service) Open() (err error) {
	if !p.initialized.Load() {
		return ErrNotInitialized
	}
	p.metrics.ConnectionAttempts.Add(1)

	if p.isOpen.Load() {
		p.mu.RLock()
		handleExists := p.handle != nil
		p.mu.RUnlock()
		if handleExists {
			return nil
		}
		p.isOpen.Store(false)
	}

	cfg := p.getConfigSafeCopy()

	ok, listErr := isPortAvailable(cfg.PortName)
	if listErr != nil {
		p.metrics.ConnectionFailures.Add(1)
		return fmt.Errorf("listing ports: %w", listErr)
	}
	if !ok {
		p.metrics.PortValidationErrors.Add(1)
		p.metrics.ConnectionFailures.Add(1)
		return ErrInvalidPortName
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isOpen.Load() && p.handle != nil {
		return nil
	}

	if p.handle, err = openPort(cfg.PortName, p.mode); err != nil {
		p.metrics.ConnectionFailures.Add(1)
		p.metrics.HardwareErrors.Add(1)
		return fmt.Errorf("opening serial port: %w", err)
	}

	if err = p.handle.SetReadTimeout(cfg.ReadTimeout); err != nil {
		return p.handleOpenError(err)
	}
	if err = p.handle.SetDTR(cfg.DTR); err != nil {
		return p.handleOpenError(err)
	}
	if err = p.handle.SetRTS(cfg.RTS); err != nil {
		return p.handleOpenError(err)
	}

	p.markConnected()
	p.Logger.Debug("serial port opened", "port", cfg.PortName, "baud", cfg.BaudRate)
	return nil
}

// Attach adopts an already connected descriptor, typically the RFCOMM socket
// BlueZ hands out for an SPP connection. The Service owns f afterwards.
func (p *Service) Attach(f *os.File) error {
	if err := p.initializeAttached(); err != nil {
		_ = f.Close()
		return err
	}
	p.metrics.ConnectionAttempts.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil {
		_ = f.Close()
		return errors.New("link already has an open port")
	}

	h := newFileHandle(f)
	p.handle = h
	if err := h.SetReadTimeout(p.getReadTimeout()); err != nil {
		return p.handleOpenError(err)
	}

	p.markConnected()
	p.Logger.Debug("rfcomm socket attached", "name", f.Name())
	return nil
}

func (p *Service) markConnected() {
	p.isOpen.Store(true)
	now := time.Now()
	p.metrics.SuccessfulConnects.Add(1)
	p.metrics.CurrentConnections.Store(1)
	p.metrics.LastConnectTime.Store(now.Unix())
	p.metrics.ConnectionStartTime.Store(now.UnixNano())
	p.resetConsecutiveFailures()
}

// handleOpenError closes the port and joins any error from closing with the original error.
// The caller holds mu.
func (p *Service) handleOpenError(err error) error {
	p.metrics.ConnectionFailures.Add(1)
	if e := p.closeWithoutLock(); e != nil {
		err = errors.Join(err, e)
	}
	return err
}

// closeWithoutLock assumes mu is held by the caller.
func (p *Service) closeWithoutLock() error {
	h := p.handle
	p.handle = nil
	p.isOpen.Store(false)
	if h != nil {
		return h.Close()
	}
	return nil
}

// Close is idempotent.
func (p *Service) Close() error {
	if !p.initialized.Load() {
		return ErrNotInitialized
	}

	p.isOpen.Store(false)
	p.StopMetricsBroadcasting()

	var closeErr error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		if startTime := p.metrics.ConnectionStartTime.Load(); startTime > 0 {
			p.metrics.TotalUptime.Add(time.Now().UnixNano() - startTime)
		}
		p.metrics.Disconnections.Add(1)
		p.metrics.LastDisconnectTime.Store(time.Now().Unix())
		p.metrics.CurrentConnections.Store(0)

		closeErr = p.closeWithoutLock()
		p.Logger.Debug("port closed", "port", p.getPortName())
	})
	return closeErr
}

// Write writes b within the configured write timeout.
func (p *Service) Write(b []byte) (int, error) {
	timeout := p.getWriteTimeout()
	if timeout <= 0 {
		return p.WriteWithContext(context.Background(), b)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := p.WriteWithContext(ctx, b)
	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrWriteTimeout
	}
	return n, err
}

// WriteWithContext writes all of b, checking ctx between partial writes.
// Writes are serialized; reads may run concurrently.
func (p *Service) WriteWithContext(ctx context.Context, b []byte) (n int, err error) {
	if !p.initialized.Load() {
		return 0, ErrNotInitialized
	}

	start := time.Now()
	defer func() {
		if p.metricsEnabled.Load() {
			p.recordWriteMetrics(n, err, time.Since(start))
		}
	}()

	if err = p.validateBuffer(b); err != nil {
		return 0, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if !p.isOpen.Load() || p.handle == nil {
		return 0, ErrPortNotOpen
	}

	for n < len(b) {
		if err = ctx.Err(); err != nil {
			return n, err
		}
		w, werr := p.handle.Write(b[n:])
		if werr != nil {
			return n, werr
		}
		if w == 0 {
			return n, errors.New("partial write: not all bytes written")
		}
		n += w
	}
	return n, nil
}

// Read reads up to len(b) bytes. A read that hits the port read timeout
// returns (0, nil).
func (p *Service) Read(b []byte) (n int, err error) {
	if !p.initialized.Load() {
		return 0, ErrNotInitialized
	}

	start := time.Now()
	defer func() {
		if p.metricsEnabled.Load() && (n > 0 || err != nil) {
			p.recordReadMetrics(n, err, time.Since(start))
		}
	}()

	if err = p.validateBuffer(b); err != nil {
		return 0, err
	}

	// Holding the read lock keeps Close from invalidating the handle mid-read.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isOpen.Load() || p.handle == nil {
		return 0, ErrPortNotOpen
	}
	return p.handle.Read(b)
}

// SetReadTimeout updates the timeout on the open handle and the config.
func (p *Service) SetReadTimeout(d time.Duration) error {
	p.configMu.Lock()
	if p.Config != nil {
		p.Config.ReadTimeout = d
	}
	p.configMu.Unlock()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == nil {
		return nil
	}
	return p.handle.SetReadTimeout(d)
}

// IsOpen reports whether the port is currently open.
func (p *Service) IsOpen() bool {
	return p.isOpen.Load()
}

// GetBufferPoolStats returns read buffer pool statistics.
func (p *Service) GetBufferPoolStats() PoolStats {
	if p.bufferPool == nil {
		return PoolStats{}
	}
	return p.bufferPool.Stats()
}

func (p *Service) validateBuffer(b []byte) error {
	if len(b) == 0 {
		p.metrics.BufferErrors.Add(1)
		return ErrInvalidBuffer
	}
	if len(b) > MaxBufferSize {
		p.metrics.BufferErrors.Add(1)
		return ErrBufferTooLarge
	}
	return nil
}

func (p *Service) getWriteTimeout() time.Duration {
	p.configMu.RLock()
	defer p.configMu.RUnlock()
	if p.Config != nil {
		return p.Config.WriteTimeout
	}
	return 0
}

func (p *Service) getReadTimeout() time.Duration {
	p.configMu.RLock()
	defer p.configMu.RUnlock()
	if p.Config != nil {
		return p.Config.ReadTimeout
	}
	return 0
}

func (p *Service) getPortName() string {
	p.configMu.RLock()
	defer p.configMu.RUnlock()
	if p.Config != nil {
		return p.Config.PortName
	}
	return ""
}

// getConfigSafeCopy returns a copy so callers never race on config fields.
func (p *Service) getConfigSafeCopy() Config {
	p.configMu.RLock()
	defer p.configMu.RUnlock()
	if p.Config == nil {
		return Config{}
	}
	return *p.Config
}

func (p *Service) setConfigSafe(cfg *Config) {
	p.configMu.Lock()
	defer p.configMu.Unlock()
	p.Config = cfg
}
