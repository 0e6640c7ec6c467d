package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Station-Manager/elm327/internal/config"
	"github.com/Station-Manager/elm327/pid"
)

func TestApplyOverridesConfig(t *testing.T) {
	cfg := config.Default()
	opts := options{
		device:    "/dev/rfcomm0",
		transport: config.TransportSerial,
		baud:      115200,
		params:    "Engine RPM, Engine Coolant Temperature",
	}
	require.NoError(t, opts.apply(cfg))

	assert.Equal(t, "/dev/rfcomm0", cfg.Adapter.Device)
	assert.Equal(t, config.TransportSerial, cfg.Adapter.Transport)
	assert.Equal(t, 115200, cfg.Adapter.BaudRate)
	assert.Equal(t, []string{"Engine RPM", "Engine Coolant Temperature"}, cfg.Poll.Parameters)
}

func TestApplyRejectsTooManyParameters(t *testing.T) {
	cfg := config.Default()
	opts := options{params: "Engine RPM,Vehicle Speed,Engine Load,Engine Coolant Temperature"}
	assert.Error(t, opts.apply(cfg))
}

func TestReadingPrinter(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 5, 0, time.UTC)
	r := pid.Reading{Name: "Engine RPM", Request: "01 0C", Value: 1726, Unit: "RPM", Calculated: "1726", Formatted: "1726RPM", At: at}

	var text bytes.Buffer
	readingPrinter(&text, false)(r)
	assert.Equal(t, "12:30:05  Engine RPM:                  1726RPM\n", text.String())

	var js bytes.Buffer
	readingPrinter(&js, true)(r)
	var got map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &got))
	assert.Equal(t, "Engine RPM", got["name"])
	assert.Equal(t, 1726.0, got["value"])
	assert.Equal(t, "1726RPM", got["formatted"])
}
