// Package store records polled readings in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Station-Manager/elm327/pid"
)

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS recordings (
	id          TEXT PRIMARY KEY,
	device_name TEXT NOT NULL,
	address     TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT
);

CREATE TABLE IF NOT EXISTS readings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	request      TEXT NOT NULL,
	raw          TEXT NOT NULL,
	value        REAL NOT NULL,
	unit         TEXT NOT NULL,
	calculated   TEXT NOT NULL,
	formatted    TEXT NOT NULL,
	taken_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_readings_recording ON readings(recording_id, taken_at);
`

var ErrUnknownRecording = errors.New("store: unknown recording")

type Store struct {
	db *sql.DB
}

// Recording is one connected session.
type Recording struct {
	ID         string
	DeviceName string
	Address    string
	StartedAt  time.Time
	EndedAt    time.Time
}

// Open opens or creates the database at path. ":memory:" works for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	var ver int
	err := db.QueryRow("SELECT version FROM schema_meta LIMIT 1").Scan(&ver)
	if err == nil && ver >= schemaVersion {
		return nil
	}
	// A fresh database has no schema_meta; the DDL creates it.

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schemaV1); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM schema_meta"); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_meta (version) VALUES (?)", schemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a recording for a device and returns its id.
func (s *Store) Begin(ctx context.Context, deviceName, address string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recordings (id, device_name, address, started_at) VALUES (?, ?, ?, ?)`,
		id, deviceName, address, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("begin recording: %w", err)
	}
	return id, nil
}

// End stamps the recording as finished.
func (s *Store) End(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recordings SET ended_at = ? WHERE id = ?`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("end recording: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUnknownRecording
	}
	return nil
}

// Add stores one reading under a recording.
func (s *Store) Add(ctx context.Context, recordingID string, r pid.Reading) error {
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings
			(recording_id, name, request, raw, value, unit, calculated, formatted, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recordingID, r.Name, r.Request, r.Raw, r.Value, r.Unit, r.Calculated, r.Formatted, formatTime(at))
	if err != nil {
		return fmt.Errorf("add reading: %w", err)
	}
	return nil
}

// Recordings lists recordings, newest first.
func (s *Store) Recordings(ctx context.Context) ([]Recording, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_name, address, started_at, COALESCE(ended_at, '')
		FROM recordings ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		var rec Recording
		var started, ended string
		if err := rows.Scan(&rec.ID, &rec.DeviceName, &rec.Address, &started, &ended); err != nil {
			return nil, err
		}
		rec.StartedAt = parseTime(started)
		rec.EndedAt = parseTime(ended)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Readings returns a recording's readings in the order they were taken.
func (s *Store) Readings(ctx context.Context, recordingID string) ([]pid.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, request, raw, value, unit, calculated, formatted, taken_at
		FROM readings WHERE recording_id = ? ORDER BY taken_at, id`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	var out []pid.Reading
	for rows.Next() {
		var r pid.Reading
		var at string
		if err := rows.Scan(&r.Name, &r.Request, &r.Raw, &r.Value, &r.Unit, &r.Calculated, &r.Formatted, &at); err != nil {
			return nil, err
		}
		r.At = parseTime(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// timeLayout has fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}
