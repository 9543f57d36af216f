package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskmirror/taskmirror/internal/task"
)

// SyncState tracks where a task stands relative to the remote service.
type SyncState string

const (
	SyncStateSynced      SyncState = "synced"
	SyncStatePendingPush SyncState = "pending_push"
	SyncStatePendingPull SyncState = "pending_pull"
	SyncStateConflict    SyncState = "conflict"
)

// SyncMetadata is the per-task sync record, keyed by the task's current
// identifier. The fingerprints are the snapshots observed at the last
// successful reconciliation; if sync_state is synced, each side's stored
// fingerprint equals one recomputable from that side's current snapshot.
type SyncMetadata struct {
	TaskID            string
	Account           string
	LocalFingerprint  task.Fingerprint
	RemoteFingerprint task.Fingerprint
	LastSyncedAt      time.Time
	State             SyncState
}

// GetMeta returns the sync metadata for a task, or nil if the task has
// never been synced. M-absent is a valid, handled state.
func (s *Store) GetMeta(ctx context.Context, taskID string) (*SyncMetadata, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT task_id, account, local_fingerprint, remote_fingerprint, last_synced_at, sync_state
	FROM sync_metadata WHERE task_id = ?
	`, taskID)

	m, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// PutMeta inserts or replaces the sync metadata for a task.
func (s *Store) PutMeta(ctx context.Context, m *SyncMetadata) error {
	return s.putMeta(ctx, s.conn, m)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) putMeta(ctx context.Context, db execer, m *SyncMetadata) error {
	var lastSynced sql.NullString
	if !m.LastSyncedAt.IsZero() {
		lastSynced = sql.NullString{String: m.LastSyncedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
	INSERT INTO sync_metadata (task_id, account, local_fingerprint, remote_fingerprint, last_synced_at, sync_state)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(task_id) DO UPDATE SET
		account = excluded.account,
		local_fingerprint = excluded.local_fingerprint,
		remote_fingerprint = excluded.remote_fingerprint,
		last_synced_at = excluded.last_synced_at,
		sync_state = excluded.sync_state
	`,
		m.TaskID,
		m.Account,
		string(m.LocalFingerprint),
		string(m.RemoteFingerprint),
		lastSynced,
		string(m.State),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync metadata for %s: %w", m.TaskID, err)
	}
	return nil
}

// markDirty flips a synced task to pending_push after a local mutation,
// so a stored "synced" state never describes a task whose content has
// drifted. Other states already record work owed and stay put.
func (s *Store) markDirty(ctx context.Context, taskID string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE sync_metadata SET sync_state = ? WHERE task_id = ? AND sync_state = ?`,
		string(SyncStatePendingPush), taskID, string(SyncStateSynced),
	)
	if err != nil {
		return fmt.Errorf("failed to mark task %s pending: %w", taskID, err)
	}
	return nil
}

// DeleteMeta removes the sync metadata for a task. Idempotent.
func (s *Store) DeleteMeta(ctx context.Context, taskID string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM sync_metadata WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to delete sync metadata for %s: %w", taskID, err)
	}
	return nil
}

// MarkSyncState flips the sync state for a task, creating the metadata
// row if it doesn't exist yet (a failed first push leaves a local-only
// task with pending_push and no fingerprints).
func (s *Store) MarkSyncState(ctx context.Context, taskID, account string, state SyncState) error {
	m, err := s.GetMeta(ctx, taskID)
	if err != nil {
		return err
	}
	if m == nil {
		m = &SyncMetadata{TaskID: taskID, Account: account}
	}
	m.State = state
	return s.PutMeta(ctx, m)
}

// AllMeta returns all sync metadata rows for an account, keyed by task id.
func (s *Store) AllMeta(ctx context.Context, account string) (map[string]*SyncMetadata, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT task_id, account, local_fingerprint, remote_fingerprint, last_synced_at, sync_state
	FROM sync_metadata WHERE account = ?
	`, account)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync metadata: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*SyncMetadata)
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		result[m.TaskID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync metadata: %w", err)
	}
	return result, nil
}

// RewriteTaskID swaps a task's identifier in a single transaction:
// the task row, the tag index, and the sync metadata row all move to
// the new identifier, and any metadata keyed by the old one is gone.
// Only the identity reconciler calls this, exactly once per task.
func (s *Store) RewriteTaskID(ctx context.Context, oldID string, newID task.ID, meta *SyncMetadata) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The tag index references tasks(id); defer enforcement so the
	// parent and child rows can move within the same transaction.
	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to defer foreign keys: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET id = ?, id_namespace = ? WHERE id = ?`,
		newID.Value, string(newID.Namespace), oldID,
	)
	if err != nil {
		return fmt.Errorf("failed to rewrite task id %s -> %s: %w", oldID, newID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE task_tags SET task_id = ? WHERE task_id = ?`,
		newID.Value, oldID,
	); err != nil {
		return fmt.Errorf("failed to rewrite tag index %s -> %s: %w", oldID, newID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_metadata WHERE task_id = ?`, oldID); err != nil {
		return fmt.Errorf("failed to drop old sync metadata for %s: %w", oldID, err)
	}

	if meta != nil {
		meta.TaskID = newID.Value
		if err := s.putMeta(ctx, tx, meta); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit id rewrite: %w", err)
	}
	return nil
}

func scanMeta(row rowScanner) (*SyncMetadata, error) {
	var m SyncMetadata
	var localFP, remoteFP, state string
	var lastSynced sql.NullString

	if err := row.Scan(&m.TaskID, &m.Account, &localFP, &remoteFP, &lastSynced, &state); err != nil {
		return nil, err
	}

	m.LocalFingerprint = task.Fingerprint(localFP)
	m.RemoteFingerprint = task.Fingerprint(remoteFP)
	m.State = SyncState(state)
	if lastSynced.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, lastSynced.String); err == nil {
			m.LastSyncedAt = ts
		}
	}
	return &m, nil
}
