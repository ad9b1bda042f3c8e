// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/journal/journal.go
// Summary: SQLite journal of session lifecycles.
// Usage: Passed to session.New as the Recorder; the CLI lists recent entries.
// Notes: Write failures are logged, never returned to the session.

package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/framegrace/texelshadow/session"
)

var ErrClosed = errors.New("journal: closed")

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    network    TEXT NOT NULL,
    address    TEXT NOT NULL,
    width      INTEGER NOT NULL,
    height     INTEGER NOT NULL,
    channels   TEXT NOT NULL DEFAULT '',
    started    INTEGER NOT NULL,     -- UnixNano
    ended      INTEGER,              -- UnixNano, NULL while running
    cause      TEXT,
    error      TEXT,
    iterations INTEGER NOT NULL DEFAULT 0,
    paints     INTEGER NOT NULL DEFAULT 0,
    flushes    INTEGER NOT NULL DEFAULT 0,
    skipped    INTEGER NOT NULL DEFAULT 0,
    frames     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started);
`

// Entry is one journaled session.
type Entry struct {
	ID       string
	Network  string
	Address  string
	Width    int
	Height   int
	Channels []string
	Started  time.Time
	Ended    time.Time // zero while the session is running
	Cause    string
	Error    string
	Stats    session.Stats
}

// Running reports whether the session had not ended when the entry was read.
func (e Entry) Running() bool {
	return e.Ended.IsZero()
}

// Journal records sessions into a SQLite database.
type Journal struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}
	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(2000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func migrate(db *sql.DB) error {
	var current int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("journal: read schema version: %w", err)
	}
	if current == schemaVersion {
		return nil
	}
	if current > schemaVersion {
		return fmt.Errorf("journal: schema version %d is newer than %d", current, schemaVersion)
	}
	log.Printf("journal: migrating schema from version %d to %d", current, schemaVersion)
	if _, err := db.Exec("DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("journal: reset schema version: %w", err)
	}
	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("journal: update schema version: %w", err)
	}
	return nil
}

// SessionStarted inserts the running session.
func (j *Journal) SessionStarted(info session.Info) {
	err := j.exec(`INSERT OR REPLACE INTO sessions
		(id, network, address, width, height, channels, started)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Network, info.Address,
		info.Desktop.Width, info.Desktop.Height,
		strings.Join(info.Channels, ","), info.Started.UnixNano())
	if err != nil {
		log.Printf("journal: record start of %s: %v", info.ID, err)
	}
}

// SessionEnded stores the exit cause and counters of a session. Sessions
// that never connected are inserted here, so failed handshakes are kept too.
func (j *Journal) SessionEnded(info session.Info, sum session.Summary) {
	var errText sql.NullString
	if sum.Err != nil {
		errText = sql.NullString{String: sum.Err.Error(), Valid: true}
	}
	err := j.exec(`INSERT INTO sessions
		(id, network, address, width, height, channels, started,
		 ended, cause, error, iterations, paints, flushes, skipped, frames)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 ended = excluded.ended, cause = excluded.cause, error = excluded.error,
		 width = excluded.width, height = excluded.height,
		 iterations = excluded.iterations, paints = excluded.paints,
		 flushes = excluded.flushes, skipped = excluded.skipped, frames = excluded.frames`,
		info.ID, info.Network, info.Address,
		info.Desktop.Width, info.Desktop.Height,
		strings.Join(info.Channels, ","), info.Started.UnixNano(),
		sum.Ended.UnixNano(), sum.Cause.String(), errText,
		int64(sum.Stats.Iterations), int64(sum.Stats.Paints), int64(sum.Stats.Flushes),
		int64(sum.Stats.Skipped), int64(sum.Stats.Frames))
	if err != nil {
		log.Printf("journal: record end of %s: %v", info.ID, err)
	}
}

func (j *Journal) exec(query string, args ...any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	_, err := j.db.Exec(query, args...)
	return err
}

// Recent returns up to limit sessions, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}
	rows, err := j.db.Query(`SELECT id, network, address, width, height, channels,
		started, ended, cause, error, iterations, paints, flushes, skipped, frames
		FROM sessions ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                  Entry
			channels                           string
			started                            int64
			ended                              sql.NullInt64
			cause, errText                     sql.NullString
			iterations, paints, flushes, skips int64
			frames                             int64
		)
		if err := rows.Scan(&e.ID, &e.Network, &e.Address, &e.Width, &e.Height, &channels,
			&started, &ended, &cause, &errText, &iterations, &paints, &flushes, &skips, &frames); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		if channels != "" {
			e.Channels = strings.Split(channels, ",")
		}
		e.Started = time.Unix(0, started)
		if ended.Valid {
			e.Ended = time.Unix(0, ended.Int64)
		}
		e.Cause = cause.String
		e.Error = errText.String
		e.Stats = session.Stats{
			Iterations: uint64(iterations),
			Paints:     uint64(paints),
			Flushes:    uint64(flushes),
			Skipped:    uint64(skips),
			Frames:     uint64(frames),
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database. Later recordings are dropped.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}
