// Package logging is the structured logger shared by the link, the session
// controller and the binaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const ServiceName = "logger"

type Config struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string
	// Console writes human readable lines to Stderr. The TUI turns it off.
	Console bool
	// File, when set, receives JSON lines through a rotating writer.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Service wraps a zerolog.Logger behind key/value helpers.
type Service struct {
	Config *Config
	// Stderr overrides os.Stderr for the console writer.
	Stderr io.Writer

	logger zerolog.Logger
	closer io.Closer

	initOnce sync.Once
	initErr  error
}

// Initialize builds the writers. It runs once.
func (s *Service) Initialize() error {
	s.initOnce.Do(func() {
		s.initErr = s.doInitialize()
	})
	return s.initErr
}

func (s *Service) doInitialize() error {
	cfg := Config{Level: "info", Console: true}
	if s.Config != nil {
		cfg = *s.Config
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("logging: %w", err)
		}
		level = l
	}

	var writers []io.Writer
	if cfg.Console {
		out := s.Stderr
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly})
	}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		s.closer = lj
		writers = append(writers, lj)
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	s.logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return nil
}

// New initializes a Service from cfg.
func New(cfg Config) (*Service, error) {
	s := &Service{Config: &cfg}
	if err := s.Initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// Nop returns a Service that drops everything.
func Nop() *Service {
	s := &Service{logger: zerolog.Nop()}
	s.initOnce.Do(func() {})
	return s
}

// FromWriter logs JSON lines to w at the given level. Tests use it to
// capture output.
func FromWriter(w io.Writer, level zerolog.Level) *Service {
	s := &Service{logger: zerolog.New(w).Level(level)}
	s.initOnce.Do(func() {})
	return s
}

func (s *Service) Debug(msg string, kv ...any) { s.log(s.logger.Debug(), msg, kv) }
func (s *Service) Info(msg string, kv ...any)  { s.log(s.logger.Info(), msg, kv) }
func (s *Service) Warn(msg string, kv ...any)  { s.log(s.logger.Warn(), msg, kv) }
func (s *Service) Error(msg string, kv ...any) { s.log(s.logger.Error(), msg, kv) }

// With returns a child logger that adds kv to every entry.
func (s *Service) With(kv ...any) *Service {
	child := &Service{logger: s.logger.With().Fields(pairs(kv)).Logger()}
	child.initOnce.Do(func() {})
	return child
}

// Zerolog exposes the underlying logger.
func (s *Service) Zerolog() *zerolog.Logger {
	return &s.logger
}

// Close flushes and closes the log file, if any.
func (s *Service) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Service) log(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return
	}
	e.Fields(pairs(kv)).Msg(msg)
}

// pairs turns key/value arguments into a field map. A trailing key without
// a value is logged under "!BADKEY".
func pairs(kv []any) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	m := make(map[string]any, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if i+1 >= len(kv) {
			m["!BADKEY"] = key
			break
		}
		v := kv[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		m[key] = v
	}
	return m
}

