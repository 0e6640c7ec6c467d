package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Station-Manager/elm327/pid"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBeginAddReadings(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	id, err := s.Begin(ctx, "OBDII", "00:1D:A5:68:98:8B")
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err, "recording ids are UUIDs")

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Add(ctx, id, pid.Reading{
		Name: "Engine RPM", Request: "01 0C", Raw: "410C1AF8",
		Value: 1726, Unit: "RPM", Calculated: "1726", Formatted: "1726RPM", At: t0.Add(time.Second),
	}))
	require.NoError(t, s.Add(ctx, id, pid.Reading{
		Name: "Vehicle Speed", Request: "01 0D", Raw: "410D32",
		Value: 50, Unit: "km/h", Calculated: "50", Formatted: "50km/h", At: t0,
	}))

	rs, err := s.Readings(ctx, id)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "Vehicle Speed", rs[0].Name, "ordered by time taken")
	assert.Equal(t, t0, rs[0].At)
	assert.Equal(t, 1726.0, rs[1].Value)
	assert.Equal(t, "1726RPM", rs[1].Formatted)
}

func TestRecordingsNewestFirst(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	first, err := s.Begin(ctx, "OBDII", "AA")
	require.NoError(t, err)
	second, err := s.Begin(ctx, "Vgate", "BB")
	require.NoError(t, err)
	require.NoError(t, s.End(ctx, first))

	recs, err := s.Recordings(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, second, recs[0].ID)
	assert.True(t, recs[0].EndedAt.IsZero())
	assert.False(t, recs[1].EndedAt.IsZero())
	assert.Equal(t, "OBDII", recs[1].DeviceName)
}

func TestEndUnknown(t *testing.T) {
	s := openMemory(t)
	assert.ErrorIs(t, s.End(context.Background(), uuid.NewString()), ErrUnknownRecording)
}

func TestAddRequiresRecording(t *testing.T) {
	s := openMemory(t)
	err := s.Add(context.Background(), "missing", pid.Reading{Name: "Engine RPM"})
	assert.Error(t, err, "foreign key rejects readings without a recording")
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obd.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Begin(ctx, "OBDII", "AA")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	recs, err := s.Recordings(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
}

type warnings struct{ msgs []string }

func (w *warnings) Warn(msg string, _ ...any) { w.msgs = append(w.msgs, msg) }

func TestRecorderDisplay(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	w := &warnings{}
	rec := s.Recorder(w)

	// nothing is written outside a recording
	rec.Show(0, pid.Reading{Name: "Engine RPM", Calculated: "800"})

	require.NoError(t, rec.Start(ctx, "OBDII", "AA"))
	id := rec.ID()
	rec.Show(0, pid.Reading{Name: "Engine RPM", Calculated: "800", At: time.Now()})
	rec.Show(1, pid.Reading{Name: "Vehicle Speed", Calculated: "0", At: time.Now()})
	rec.Clear()
	require.NoError(t, rec.Stop(ctx))
	require.NoError(t, rec.Stop(ctx))
	assert.Empty(t, rec.ID())

	rs, err := s.Readings(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rs, 2)
	assert.Empty(t, w.msgs)
}
