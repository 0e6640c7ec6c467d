// Package config loads the TOML configuration file and turns it into the
// settings each component takes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Station-Manager/elm327"
	"github.com/Station-Manager/elm327/internal/logging"
	"github.com/Station-Manager/elm327/params"
	"github.com/Station-Manager/elm327/pid"
)

// EnvPath names the environment variable consulted when no path is given.
const EnvPath = "OBD_CONFIG"

const (
	TransportBluetooth = "bluetooth"
	TransportSerial    = "serial"
)

var ErrUnknownKeys = errors.New("config: unknown keys")

// Duration reads "1s" style strings.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

type Config struct {
	Adapter Adapter `toml:"adapter"`
	Poll    Poll    `toml:"poll"`
	Logging Logging `toml:"logging"`
	Metrics Metrics `toml:"metrics"`
	Store   Store   `toml:"store"`
}

type Adapter struct {
	Transport string `toml:"transport" validate:"oneof=bluetooth serial"`
	// Device is a Bluetooth address or object path, or a serial device path.
	// Empty means the user picks one.
	Device         string   `toml:"device"`
	BaudRate       int      `toml:"baud_rate" validate:"oneof=9600 19200 38400 57600 115200 230400 500000"`
	DataBits       int      `toml:"data_bits" validate:"min=5,max=8"`
	Parity         string   `toml:"parity" validate:"oneof=N E O M S"`
	StopBits       string   `toml:"stop_bits" validate:"oneof=1 1.5 2"`
	DTR            bool     `toml:"dtr"`
	RTS            bool     `toml:"rts"`
	ReadTimeout    Duration `toml:"read_timeout" validate:"gt=0"`
	WriteTimeout   Duration `toml:"write_timeout" validate:"gt=0"`
	Protocol       string   `toml:"protocol" validate:"protocol"`
	ResetOnConnect bool     `toml:"reset_on_connect"`
}

type Poll struct {
	InitialDelay   Duration `toml:"initial_delay" validate:"gte=0"`
	Interval       Duration `toml:"interval" validate:"gt=0"`
	CommandTimeout Duration `toml:"command_timeout" validate:"gt=0"`
	Parameters     []string `toml:"parameters" validate:"min=1,max=3,unique,dive,parameter"`
	Units          string   `toml:"units" validate:"oneof=metric imperial"`
}

type Logging struct {
	Level      string `toml:"level" validate:"oneof=trace debug info warn error"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `toml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `toml:"max_age_days" validate:"gte=0"`
	Compress   bool   `toml:"compress"`
}

type Metrics struct {
	Enabled           bool     `toml:"enabled"`
	Listen            string   `toml:"listen" validate:"omitempty,hostname_port"`
	BroadcastInterval Duration `toml:"broadcast_interval" validate:"gt=0"`
}

type Store struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path" validate:"required_if=Enabled true"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Adapter: Adapter{
			Transport:    TransportBluetooth,
			BaudRate:     38400,
			DataBits:     8,
			Parity:       "N",
			StopBits:     "1",
			ReadTimeout:  Duration(100 * time.Millisecond),
			WriteTimeout: Duration(time.Second),
			Protocol:     pid.ProtocolAuto.Name,
		},
		Poll: Poll{
			InitialDelay:   Duration(100 * time.Millisecond),
			Interval:       Duration(time.Second),
			CommandTimeout: Duration(5 * time.Second),
			Parameters:     params.DefaultNames(),
			Units:          pid.Metric.String(),
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: Metrics{
			Listen:            "127.0.0.1:9090",
			BroadcastInterval: Duration(2 * time.Second),
		},
		Store: Store{
			Path: "obd.db",
		},
	}
}

// Load reads path, or the file named by OBD_CONFIG when path is empty, over
// the defaults. With neither set it returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	if err := cfg.decode(string(data)); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults and validates the result.
func Parse(text string) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(text); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(text string) error {
	md, err := toml.Decode(text, c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(keys, ", "))
	}
	return nil
}

// Link converts the adapter section into link settings. PortName is left
// for the dialer to fill in.
func (c *Config) Link() elm327.Config {
	cfg := elm327.DefaultConfig("")
	cfg.BaudRate = c.Adapter.BaudRate
	cfg.DataBits = c.Adapter.DataBits
	cfg.Parity = parity(c.Adapter.Parity)
	cfg.StopBits, _ = strconv.ParseFloat(c.Adapter.StopBits, 64)
	cfg.DTR = c.Adapter.DTR
	cfg.RTS = c.Adapter.RTS
	cfg.ReadTimeout = c.Adapter.ReadTimeout.D()
	cfg.WriteTimeout = c.Adapter.WriteTimeout.D()
	return cfg
}

func (c *Config) Protocol() pid.Protocol {
	p, _ := pid.LookupProtocol(c.Adapter.Protocol)
	return p
}

func (c *Config) Units() pid.Units {
	return pid.ParseUnits(c.Poll.Units)
}

// LoggingConfig returns the logging section. console is false under the
// TUI, which owns the terminal.
func (c *Config) LoggingConfig(console bool) logging.Config {
	return logging.Config{
		Level:      c.Logging.Level,
		Console:    console,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

func parity(s string) int {
	switch s {
	case "O":
		return int(elm327.ParityOdd)
	case "E":
		return int(elm327.ParityEven)
	case "M":
		return int(elm327.ParityMark)
	case "S":
		return int(elm327.ParitySpace)
	default:
		return int(elm327.ParityNone)
	}
}
