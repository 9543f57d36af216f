package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/taskmirror/taskmirror/internal/store"
	"github.com/taskmirror/taskmirror/internal/task"
)

// adoptRemoteID rewrites a locally-created task to the identifier the
// remote service assigned on first push. The store performs the rewrite
// in a single transaction across the task row, its tags, and its sync
// metadata, so a crash mid-adoption leaves either the old identity
// everywhere or the new one everywhere.
func adoptRemoteID(ctx context.Context, st *store.Store, localID task.ID, pushed *task.Task, remoteFP task.Fingerprint, syncedAt time.Time) error {
	if !localID.IsLocal() {
		return fmt.Errorf("adopt remote id: %s is not a local id", localID)
	}
	if !pushed.ID.IsRemote() {
		return fmt.Errorf("adopt remote id: pushed task %s carries no remote id", pushed.ID)
	}

	meta := &store.SyncMetadata{
		TaskID:            pushed.ID.Value,
		Account:           pushed.Account,
		LocalFingerprint:  pushed.Fingerprint(),
		RemoteFingerprint: remoteFP,
		LastSyncedAt:      syncedAt,
		State:             store.SyncStateSynced,
	}
	if err := st.RewriteTaskID(ctx, localID.Value, pushed.ID, meta); err != nil {
		return fmt.Errorf("adopt remote id %s -> %s: %w", localID, pushed.ID, err)
	}
	return nil
}
