package elm327

import "time"

const (
	// DefaultTerminator ends every command sent to the adapter.
	DefaultTerminator byte = '\r'
	// DefaultPrompt is printed by the adapter when it is ready for the next command.
	DefaultPrompt byte = '>'
	// DefaultMaxResponseSize bounds a single framed response.
	DefaultMaxResponseSize = 4096
)

// Config holds configuration for opening an ELM327 link.
type Config struct {
	// PortName is the path to the serial device, e.g. /dev/rfcomm0 or /dev/ttyUSB0.
	// It is informational for links attached to an already open file.
	PortName string

	BaudRate int
	DataBits int
	Parity   int
	StopBits float64

	// ReadTimeout is the port poll interval of the reader goroutine. Zero
	// means 100ms; the reader must wake up periodically so Close can take
	// the port.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	DTR bool
	RTS bool

	// Terminator is appended to commands. If zero, '\r' is used.
	Terminator byte
	// Prompt frames responses. If zero, '>' is used.
	Prompt byte
	// MaxResponseSize drops responses longer than this many bytes.
	MaxResponseSize int

	MetricsChannelSize int
}

// DefaultConfig returns the settings most ELM327 clones ship with.
func DefaultConfig(portName string) Config {
	return Config{
		PortName:        portName,
		BaudRate:        38400,
		DataBits:        8,
		Parity:          int(ParityNone),
		StopBits:        1,
		ReadTimeout:     100 * time.Millisecond,
		WriteTimeout:    time.Second,
		Terminator:      DefaultTerminator,
		Prompt:          DefaultPrompt,
		MaxResponseSize: DefaultMaxResponseSize,
	}
}

func (c Config) withDefaults() Config {
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.Terminator == 0 {
		c.Terminator = DefaultTerminator
	}
	if c.Prompt == 0 {
		c.Prompt = DefaultPrompt
	}
	if c.MaxResponseSize <= 0 {
		c.MaxResponseSize = DefaultMaxResponseSize
	}
	return c
}
