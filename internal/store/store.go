// Package store persists assistant state between runs: which messages
// have been surfaced, when checks last ran, and an audit trail of cycles
// and the actions taken in them.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database holding assistant state.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. An empty path or
// ":memory:" uses an in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS seen_messages (
			message_id TEXT PRIMARY KEY,
			thread_id  TEXT NOT NULL DEFAULT '',
			seen_at    INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cycles (
			id              TEXT PRIMARY KEY,
			started_at      INTEGER NOT NULL,
			finished_at     INTEGER,
			emails_fetched  INTEGER NOT NULL DEFAULT 0,
			emails_important INTEGER NOT NULL DEFAULT 0,
			events_found    INTEGER NOT NULL DEFAULT 0,
			status          TEXT NOT NULL DEFAULT 'running',
			detail          TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id         TEXT PRIMARY KEY,
			cycle_id   TEXT NOT NULL,
			kind       TEXT NOT NULL,
			target     TEXT NOT NULL DEFAULT '',
			detail     TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_cycle ON actions(cycle_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MarkSeen records that a message has been surfaced to the user.
func (s *Store) MarkSeen(messageID, threadID string) error {
	_, err := s.db.Exec(
		`INSERT INTO seen_messages (message_id, thread_id, seen_at) VALUES (?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING`,
		messageID, threadID, time.Now().Unix(),
	)
	return err
}

// Seen reports whether a message was already surfaced.
func (s *Store) Seen(messageID string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM seen_messages WHERE message_id = ?`, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PruneSeen deletes seen records older than maxAge and returns how many
// were removed.
func (s *Store) PruneSeen(maxAge time.Duration) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM seen_messages WHERE seen_at < ?`,
		time.Now().Add(-maxAge).Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CycleRecord is one audit row for a proactive check cycle.
type CycleRecord struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time
	EmailsFetched   int
	EmailsImportant int
	EventsFound     int
	Status          string
	Detail          string
}

// BeginCycle opens an audit record for a cycle and returns its id.
func (s *Store) BeginCycle() (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO cycles (id, started_at) VALUES (?, ?)`,
		id, time.Now().Unix())
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishCycle closes a cycle's audit record.
func (s *Store) FinishCycle(id string, emailsFetched, emailsImportant, eventsFound int, status, detail string) error {
	_, err := s.db.Exec(
		`UPDATE cycles SET finished_at = ?, emails_fetched = ?, emails_important = ?,
			events_found = ?, status = ?, detail = ? WHERE id = ?`,
		time.Now().Unix(), emailsFetched, emailsImportant, eventsFound, status, detail, id,
	)
	return err
}

// RecordAction appends one user-visible action (reply sent, event
// created, ...) to a cycle's audit trail.
func (s *Store) RecordAction(cycleID, kind, target, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO actions (id, cycle_id, kind, target, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), cycleID, kind, target, detail, time.Now().Unix(),
	)
	return err
}

// RecentCycles returns up to n cycles, newest first.
func (s *Store) RecentCycles(n int) ([]CycleRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, COALESCE(finished_at, 0), emails_fetched, emails_important,
			events_found, status, detail
		FROM cycles ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		var (
			r                     CycleRecord
			startedAt, finishedAt int64
		)
		if err := rows.Scan(&r.ID, &startedAt, &finishedAt, &r.EmailsFetched,
			&r.EmailsImportant, &r.EventsFound, &r.Status, &r.Detail); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(startedAt, 0)
		if finishedAt > 0 {
			r.FinishedAt = time.Unix(finishedAt, 0)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
