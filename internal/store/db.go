// Package store provides the durable local task store and the sync
// metadata store, colocated in one embedded SQLite database.
//
// The database runs in embedded mode with WAL so list queries stay
// cheap while the sync engine writes. Three tables:
//   - tasks: the task records, keyed by the current task identifier
//   - task_tags: bracket tags extracted from notes, for filtering
//   - sync_metadata: per-task fingerprints and sync state
//
// task_tags and sync_metadata are the closed set of tables referencing
// a task's identifier; RewriteTaskID rewrites all of them in one
// transaction when the identity reconciler swaps a local id for the
// remote canonical one.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = errors.New("task not found")

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the database at path. The caller must Close.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path, now: time.Now}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// SetClock overrides the clock used to stamp modified_at. Tests use this
// to produce deterministic conflict timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// InitSchema creates the schema if it doesn't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		id_namespace TEXT NOT NULL,
		account TEXT NOT NULL,
		tasklist_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		priority INTEGER NOT NULL DEFAULT 2,
		due TEXT,
		created_at TEXT NOT NULL,
		modified_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE TABLE IF NOT EXISTS task_tags (
		task_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (task_id, tag),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS sync_metadata (
		task_id TEXT PRIMARY KEY,
		account TEXT NOT NULL,
		local_fingerprint TEXT NOT NULL DEFAULT '',
		remote_fingerprint TEXT NOT NULL DEFAULT '',
		last_synced_at TEXT,
		sync_state TEXT NOT NULL DEFAULT 'pending_push'
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_account ON tasks(account);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_modified ON tasks(modified_at);
	CREATE INDEX IF NOT EXISTS idx_task_tags_tag ON task_tags(tag);
	CREATE INDEX IF NOT EXISTS idx_meta_account ON sync_metadata(account);
	CREATE INDEX IF NOT EXISTS idx_meta_state ON sync_metadata(sync_state);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
// RFC3339Nano preserves the exact stamp the fingerprint was computed over.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
