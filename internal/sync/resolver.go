package sync

import (
	"time"

	"github.com/taskmirror/taskmirror/internal/store"
	"github.com/taskmirror/taskmirror/internal/task"
)

// Outcome is the action the engine must take for one task.
type Outcome int

const (
	// OutcomeNone: nothing exists on either side, nothing to do.
	OutcomeNone Outcome = iota

	// OutcomeUnchanged: both sides still match the last-synced
	// fingerprints.
	OutcomeUnchanged

	// OutcomePush: the local snapshot wins; write it to the remote.
	OutcomePush

	// OutcomePull: the remote snapshot wins; write it to the local store.
	OutcomePull

	// OutcomeDeleteRemote: the local deletion wins; delete remotely,
	// then purge the local record and metadata.
	OutcomeDeleteRemote

	// OutcomeDeleteLocal: the remote deletion wins; purge the local
	// record and metadata.
	OutcomeDeleteLocal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomePush:
		return "push"
	case OutcomePull:
		return "pull"
	case OutcomeDeleteRemote:
		return "delete-remote"
	case OutcomeDeleteLocal:
		return "delete-local"
	}
	return "unknown"
}

// Decision is the resolver's verdict for one task.
type Decision struct {
	Outcome Outcome

	// Conflict is true when both sides had diverged and last-writer-wins
	// picked the outcome. The batch summary counts these separately.
	Conflict bool
}

// Resolve classifies a task given its current local snapshot (nil if it
// never existed locally), its current remote snapshot (nil if absent
// remotely), and its sync metadata (nil if never synced).
//
// The classification never fails: malformed or missing timestamps and
// fingerprints degrade to the never-synced rules, which prefer the
// remote copy whenever remote data exists.
func Resolve(local, remote *task.Task, meta *store.SyncMetadata) Decision {
	localDead := local == nil || local.Deleted()
	remoteDead := remote == nil || remote.Deleted()

	if meta == nil || neverSynced(meta) {
		return resolveFirstSync(local, remote, localDead, remoteDead)
	}

	localChanged := local.Fingerprint() != meta.LocalFingerprint
	remoteChanged := remote.Fingerprint() != meta.RemoteFingerprint

	// Deletions are terminal: they beat edits unless the edit is newer
	// than the deletion event itself.
	switch {
	case localDead && remoteDead:
		return Decision{Outcome: OutcomeDeleteLocal}

	case localDead:
		deletedAt := deletionTime(local, meta)
		if remoteChanged && remote.ModifiedAt.After(deletedAt) {
			return Decision{Outcome: OutcomePull, Conflict: true}
		}
		return Decision{Outcome: OutcomeDeleteRemote}

	case remoteDead:
		deletedAt := deletionTime(remote, meta)
		if localChanged && local.ModifiedAt.After(deletedAt) {
			return Decision{Outcome: OutcomePush, Conflict: true}
		}
		return Decision{Outcome: OutcomeDeleteLocal}
	}

	switch {
	case !localChanged && !remoteChanged:
		return Decision{Outcome: OutcomeUnchanged}
	case localChanged && !remoteChanged:
		return Decision{Outcome: OutcomePush}
	case !localChanged && remoteChanged:
		return Decision{Outcome: OutcomePull}
	}

	// Both diverged: deterministic last-writer-wins on modification
	// time. Ties go to the remote copy, the canonical shared store.
	if local.ModifiedAt.After(remote.ModifiedAt) {
		return Decision{Outcome: OutcomePush, Conflict: true}
	}
	return Decision{Outcome: OutcomePull, Conflict: true}
}

// resolveFirstSync handles tasks with no usable sync metadata: fresh
// local creations, fresh remote arrivals, and the recovery state after
// a partial identity reconciliation (task keyed by a remote id, no
// metadata row).
func resolveFirstSync(local, remote *task.Task, localDead, remoteDead bool) Decision {
	switch {
	case localDead && remoteDead:
		if local != nil {
			// Soft-deleted locally, never pushed: just clean up.
			return Decision{Outcome: OutcomeDeleteLocal}
		}
		return Decision{Outcome: OutcomeNone}

	case !localDead && remoteDead:
		if remote != nil && remote.ModifiedAt.After(local.ModifiedAt) {
			// Remote tombstone newer than the local copy.
			return Decision{Outcome: OutcomeDeleteLocal}
		}
		return Decision{Outcome: OutcomePush}

	case localDead && !remoteDead:
		if local != nil && local.ModifiedAt.After(remote.ModifiedAt) {
			// Local deletion newer than the remote copy.
			return Decision{Outcome: OutcomeDeleteRemote}
		}
		return Decision{Outcome: OutcomePull}

	default:
		// Both live with no metadata: first sync. The remote copy is
		// canonical (this also covers recovery after a partial identity
		// rewrite, which must not duplicate the task).
		return Decision{Outcome: OutcomePull}
	}
}

// neverSynced reports whether a metadata row carries no usable
// fingerprints, e.g. one created by a failed first push.
func neverSynced(meta *store.SyncMetadata) bool {
	return meta.LocalFingerprint == "" && meta.RemoteFingerprint == ""
}

// deletionTime approximates when a side's deletion happened: the
// soft-deleted snapshot's modification time when available, otherwise
// the last successful sync.
func deletionTime(snapshot *task.Task, meta *store.SyncMetadata) time.Time {
	if snapshot != nil && !snapshot.ModifiedAt.IsZero() {
		return snapshot.ModifiedAt
	}
	return meta.LastSyncedAt
}
