// Package audit keeps a record of reconciliation runs in an embedded
// sqlite database, queried by the status API.
package audit

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQL database connection.
type Store struct {
	db *sql.DB
}

// Run is one recorded reconciliation pass.
type Run struct {
	ID           int64     `json:"id"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	ChangedFiles int       `json:"changedFiles"`
}

const migrationRuns = `
CREATE TABLE IF NOT EXISTS reconcile_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	changed_files INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_reconcile_runs_finished ON reconcile_runs(finished_at);
`

// Open creates the database (and its directory) if needed and runs
// migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(migrationRuns); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun appends a run record.
func (s *Store) RecordRun(r Run) error {
	_, err := s.db.Exec(`
		INSERT INTO reconcile_runs (started_at, finished_at, status, message, changed_files)
		VALUES (?, ?, ?, ?, ?)
	`, r.StartedAt, r.FinishedAt, r.Status, r.Message, r.ChangedFiles)
	return err
}

// LastRun returns the most recent run, or nil when none is recorded.
func (s *Store) LastRun() (*Run, error) {
	var r Run
	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, status, message, changed_files
		FROM reconcile_runs
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Message, &r.ChangedFiles)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
