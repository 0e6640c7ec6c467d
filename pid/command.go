// Package pid implements the ELM327 setup commands and the OBD-II
// parameter requests the poller knows how to decode.
package pid

import (
	"context"
	"strings"
	"time"
)

// Execer sends one command and returns the adapter's response, everything
// up to the prompt. *elm327.Port satisfies it.
type Execer interface {
	Exec(ctx context.Context, cmd string) (string, error)
}

// Units selects the unit system for decoded values.
type Units int

const (
	Metric Units = iota
	Imperial
)

func (u Units) String() string {
	if u == Imperial {
		return "imperial"
	}
	return "metric"
}

// ParseUnits accepts "metric" or "imperial"; anything else is metric.
func ParseUnits(s string) Units {
	if strings.EqualFold(strings.TrimSpace(s), "imperial") {
		return Imperial
	}
	return Metric
}

// Reading is the decoded result of running a command once.
type Reading struct {
	Name    string `json:"name"`
	Request string `json:"request"`
	// Raw is the response after cleanup (see Clean).
	Raw   string  `json:"raw"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
	// Calculated is the bare value as displayed, e.g. "2750".
	Calculated string `json:"calculated"`
	// Formatted carries the unit, e.g. "2750RPM".
	Formatted string    `json:"formatted"`
	At        time.Time `json:"at"`
}

// Command is a request the adapter understands plus the decoder for its
// answer. Commands are stateless and safe to reuse across polls.
type Command interface {
	Name() string
	Request() string
	Run(ctx context.Context, e Execer) (Reading, error)
}

// Factory builds a command for a unit system.
type Factory func(Units) Command

// exchange sends req and returns the cleaned response, or the adapter error
// it contained.
func exchange(ctx context.Context, e Execer, req string) (string, error) {
	raw, err := e.Exec(ctx, req)
	if err != nil {
		return "", err
	}
	cleaned := stripEcho(Clean(raw), req)
	if err := checkErrors(req, cleaned); err != nil {
		return cleaned, err
	}
	return cleaned, nil
}
