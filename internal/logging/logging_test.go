package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	log := FromWriter(&buf, zerolog.DebugLevel)

	log.Info("Connected", "address", "00:1D:A5:68:98:8B", "attempt", 2, "error", errors.New("boom"))

	m := decode(t, buf.Bytes())
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "Connected", m["message"])
	assert.Equal(t, "00:1D:A5:68:98:8B", m["address"])
	assert.EqualValues(t, 2, m["attempt"])
	assert.Equal(t, "boom", m["error"])
}

func TestOddArgumentCount(t *testing.T) {
	var buf bytes.Buffer
	FromWriter(&buf, zerolog.DebugLevel).Warn("odd", "dangling")
	assert.Equal(t, "dangling", decode(t, buf.Bytes())["!BADKEY"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := FromWriter(&buf, zerolog.WarnLevel)
	log.Debug("hidden")
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Error("shown")
	assert.Equal(t, "error", decode(t, buf.Bytes())["level"])
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	log := FromWriter(&buf, zerolog.InfoLevel).With("component", "session")
	log.Info("Polling started")
	assert.Equal(t, "session", decode(t, buf.Bytes())["component"])
}

func TestNopDropsEverything(t *testing.T) {
	log := Nop()
	log.Error("nothing", "k", "v")
	assert.NoError(t, log.Close())
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	s := &Service{Config: &Config{Level: "debug", Console: true}, Stderr: &buf}
	require.NoError(t, s.Initialize())
	s.Debug("Setup command", "command", "AT E0")
	assert.Contains(t, buf.String(), "Setup command")
	assert.Contains(t, buf.String(), "AT E0")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obd.log")
	s, err := New(Config{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)
	s.Info("written", "slot", 1)
	require.NoError(t, s.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "written", decode(t, bytes.TrimSpace(b))["message"])
}
