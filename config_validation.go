package elm327

import (
	"fmt"
	"slices"
)

// ValidateConfig validates link configuration parameters.
// A link attached to an already open descriptor skips the serial checks
// (see validateAttachConfig).
func ValidateConfig(cfg *Config) error {
	if cfg.PortName == "" {
		return fmt.Errorf("port name cannot be empty")
	}

	if !slices.Contains(validBaudRates, cfg.BaudRate) {
		return fmt.Errorf("invalid baud rate %d, must be one of: %v", cfg.BaudRate, validBaudRates)
	}

	if cfg.DataBits < 5 || cfg.DataBits > 8 {
		return fmt.Errorf("data bits must be 5-8, got: %d", cfg.DataBits)
	}

	validParity := []int{int(ParityNone), int(ParityOdd), int(ParityEven), int(ParityMark), int(ParitySpace)}
	if !slices.Contains(validParity, cfg.Parity) {
		return fmt.Errorf("invalid parity value: %d", cfg.Parity)
	}

	if cfg.StopBits != 0 && cfg.StopBits != 1 && cfg.StopBits != 1.5 && cfg.StopBits != 2 {
		return fmt.Errorf("stop bits must be 0, 1, 1.5, or 2, got: %.1f", cfg.StopBits)
	}

	return validateAttachConfig(cfg)
}

func validateAttachConfig(cfg *Config) error {
	if cfg.ReadTimeout < 0 {
		return fmt.Errorf("read timeout cannot be negative: %v", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout < 0 {
		return fmt.Errorf("write timeout cannot be negative: %v", cfg.WriteTimeout)
	}

	if cfg.Terminator == cfg.Prompt && cfg.Terminator != 0 {
		return fmt.Errorf("terminator and prompt must differ, both are %q", cfg.Prompt)
	}

	if cfg.MaxResponseSize < 0 || cfg.MaxResponseSize > MaxBufferSize {
		return fmt.Errorf("max response size must be 0-%d, got: %d", MaxBufferSize, cfg.MaxResponseSize)
	}

	if cfg.MetricsChannelSize < 0 {
		return fmt.Errorf("metrics channel size cannot be negative: %d", cfg.MetricsChannelSize)
	}
	if cfg.MetricsChannelSize > 10000 {
		return fmt.Errorf("metrics channel size too large (max 10000): %d", cfg.MetricsChannelSize)
	}

	return nil
}
