package elm327

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
)

// Client is the high-level interface for sending ELM327 commands and
// receiving prompt-terminated responses.
type Client interface {
	// WriteCommand writes a single command. The configured terminator is
	// appended if missing.
	WriteCommand(ctx context.Context, cmd string) error

	// ReadResponse reads everything the adapter sent before its next prompt.
	ReadResponse(ctx context.Context) (string, error)

	// Exec discards unclaimed responses, writes cmd and reads one response.
	Exec(ctx context.Context, cmd string) (string, error)

	// Close closes the underlying port. It is safe to call multiple times.
	Close() error
}

// Port is the concrete Client. It frames the byte stream of a SerialPort
// on the adapter prompt.
type Port struct {
	port SerialPort
	svc  *Service // nil when built on a bare SerialPort

	cfg  Config
	pool *BufferPool

	writeMu sync.Mutex

	responses chan string
	closeCh   chan struct{}
	doneCh    chan struct{}

	closed bool
	mu     sync.RWMutex
}

// Open opens the serial device named in cfg and starts framing responses.
func Open(cfg Config, logger Logger) (*Port, error) {
	svc := &Service{Logger: logger, Config: &cfg}
	if err := svc.Initialize(); err != nil {
		return nil, err
	}
	if err := svc.Open(); err != nil {
		return nil, err
	}
	return newServicePort(svc), nil
}

// OpenFile wraps an already connected RFCOMM socket. The returned Port owns f.
func OpenFile(f *os.File, cfg Config, logger Logger) (*Port, error) {
	if cfg.PortName == "" {
		cfg.PortName = f.Name()
	}
	svc := &Service{Logger: logger, Config: &cfg}
	if err := svc.Attach(f); err != nil {
		return nil, err
	}
	return newServicePort(svc), nil
}

func newServicePort(svc *Service) *Port {
	po := newPort(svc, svc.getConfigSafeCopy())
	po.svc = svc
	po.pool = svc.bufferPool
	return po
}

// newPort constructs a Port around an existing SerialPort.
func newPort(sp SerialPort, cfg Config) *Port {
	cfg = cfg.withDefaults()

	po := &Port{
		port:      sp,
		cfg:       cfg,
		pool:      defaultReadPool,
		responses: make(chan string, 16),
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	go po.readerLoop()

	return po
}

// WriteCommand implements Client.
func (p *Port) WriteCommand(ctx context.Context, cmd string) error {
	if p.isClosed() {
		return ErrClosed
	}

	if len(cmd) == 0 {
		return nil
	}

	if cmd[len(cmd)-1] != p.cfg.Terminator {
		cmd = cmd + string(p.cfg.Terminator)
	}

	data := []byte(cmd)

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	written := 0
	for written < len(data) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := p.port.Write(data[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		written += n
	}

	return nil
}

// ReadResponse implements Client.
func (p *Port) ReadResponse(ctx context.Context) (string, error) {
	if p.isClosed() {
		return "", ErrClosed
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case resp, ok := <-p.responses:
		if !ok {
			return "", ErrClosed
		}
		return resp, nil
	}
}

// Exec implements Client.
func (p *Port) Exec(ctx context.Context, cmd string) (string, error) {
	p.drain()
	if err := p.WriteCommand(ctx, cmd); err != nil {
		return "", err
	}
	return p.ReadResponse(ctx)
}

// drain drops responses nobody waited for, e.g. the late answer to a
// command whose context expired.
func (p *Port) drain() {
	for {
		select {
		case resp, ok := <-p.responses:
			if !ok {
				return
			}
			p.logger().Debug("discarding unclaimed response", "response", resp)
		default:
			return
		}
	}
}

// Close implements Client.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	p.mu.Unlock()

	if err := p.port.Close(); err != nil {
		return err
	}

	<-p.doneCh
	return nil
}

// Service returns the managed port behind p, or nil for a bare SerialPort.
func (p *Port) Service() *Service {
	return p.svc
}

// Metrics returns a snapshot of the link metrics.
func (p *Port) Metrics() *MetricsSnapshot {
	if p.svc == nil {
		return &MetricsSnapshot{HealthStatus: string(HealthStatusDown)}
	}
	return p.svc.GetMetricsSnapshot()
}

func (p *Port) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *Port) logger() Logger {
	if p.svc != nil && p.svc.Logger != nil {
		return p.svc.Logger
	}
	return nopLogger{}
}

// readerLoop reads from the port and emits every prompt-terminated
// response onto the response channel.
func (p *Port) readerLoop() {
	defer close(p.doneCh)
	defer close(p.responses)

	buf := p.pool.Get()
	defer p.pool.Put(buf)

	var pending []byte
	// discarding is set once a response outgrows MaxResponseSize and holds
	// until that response's prompt arrives.
	var discarding bool

	for {
		select {
		case <-p.closeCh:
			return
		default:
		}

		n, err := p.port.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}

		chunk := buf[:n]
		for len(chunk) > 0 {
			idx := bytes.IndexByte(chunk, p.cfg.Prompt)
			end := idx
			if idx == -1 {
				end = len(chunk)
			}
			if !discarding {
				pending = append(pending, chunk[:end]...)
				if len(pending) > p.cfg.MaxResponseSize {
					p.logger().Warn("dropping oversized response", "bytes", len(pending))
					pending = pending[:0]
					discarding = true
				}
			}
			if idx == -1 {
				break
			}
			chunk = chunk[idx+1:]

			if discarding {
				discarding = false
				continue
			}
			select {
			case p.responses <- strings.Trim(string(pending), "\r\n\x00 "):
			case <-p.closeCh:
				return
			}
			pending = pending[:0]
		}
	}
}
