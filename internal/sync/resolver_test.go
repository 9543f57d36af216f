package sync

import (
	"testing"
	"time"

	"github.com/taskmirror/taskmirror/internal/store"
	"github.com/taskmirror/taskmirror/internal/task"
)

var (
	t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func snap(id task.ID, title string, modified time.Time) *task.Task {
	return &task.Task{
		ID:         id,
		Title:      title,
		Status:     task.StatusPending,
		Account:    "work",
		ModifiedAt: modified,
	}
}

func syncedMeta(local, remote *task.Task, at time.Time) *store.SyncMetadata {
	return &store.SyncMetadata{
		TaskID:            remote.ID.Value,
		Account:           "work",
		LocalFingerprint:  local.Fingerprint(),
		RemoteFingerprint: remote.Fingerprint(),
		LastSyncedAt:      at,
		State:             store.SyncStateSynced,
	}
}

func TestResolveUnchanged(t *testing.T) {
	id := task.RemoteID("gt-1")
	local := snap(id, "buy milk", t0)
	remote := snap(id, "buy milk", t0)

	d := Resolve(local, remote, syncedMeta(local, remote, t0))
	if d.Outcome != OutcomeUnchanged || d.Conflict {
		t.Fatalf("got %v (conflict=%v), want unchanged", d.Outcome, d.Conflict)
	}
}

func TestResolveLocalAhead(t *testing.T) {
	id := task.RemoteID("gt-1")
	base := snap(id, "buy milk", t0)
	meta := syncedMeta(base, base, t0)

	local := snap(id, "buy oat milk", t1)
	d := Resolve(local, base, meta)
	if d.Outcome != OutcomePush || d.Conflict {
		t.Fatalf("got %v (conflict=%v), want push", d.Outcome, d.Conflict)
	}
}

func TestResolveRemoteAhead(t *testing.T) {
	id := task.RemoteID("gt-1")
	base := snap(id, "buy milk", t0)
	meta := syncedMeta(base, base, t0)

	remote := snap(id, "buy oat milk", t1)
	d := Resolve(base, remote, meta)
	if d.Outcome != OutcomePull || d.Conflict {
		t.Fatalf("got %v (conflict=%v), want pull", d.Outcome, d.Conflict)
	}
}

func TestResolveConflictLastWriterWins(t *testing.T) {
	id := task.RemoteID("gt-1")
	base := snap(id, "buy milk", t0)
	meta := syncedMeta(base, base, t0)

	local := snap(id, "local edit", t2)
	remote := snap(id, "remote edit", t1)

	d := Resolve(local, remote, meta)
	if d.Outcome != OutcomePush || !d.Conflict {
		t.Fatalf("newer local: got %v (conflict=%v), want conflicted push", d.Outcome, d.Conflict)
	}

	d = Resolve(snap(id, "local edit", t1), snap(id, "remote edit", t2), meta)
	if d.Outcome != OutcomePull || !d.Conflict {
		t.Fatalf("newer remote: got %v (conflict=%v), want conflicted pull", d.Outcome, d.Conflict)
	}
}

func TestResolveConflictTieGoesRemote(t *testing.T) {
	id := task.RemoteID("gt-1")
	base := snap(id, "buy milk", t0)
	meta := syncedMeta(base, base, t0)

	local := snap(id, "local edit", t1)
	remote := snap(id, "remote edit", t1)

	// Same inputs must yield the same verdict every time.
	for i := 0; i < 5; i++ {
		d := Resolve(local, remote, meta)
		if d.Outcome != OutcomePull || !d.Conflict {
			t.Fatalf("run %d: got %v (conflict=%v), want conflicted pull", i, d.Outcome, d.Conflict)
		}
	}
}

func TestResolveFirstSync(t *testing.T) {
	localOnly := snap(task.NewLocalID(), "new local", t0)
	d := Resolve(localOnly, nil, nil)
	if d.Outcome != OutcomePush {
		t.Fatalf("local-only: got %v, want push", d.Outcome)
	}

	remoteOnly := snap(task.RemoteID("gt-9"), "new remote", t0)
	d = Resolve(nil, remoteOnly, nil)
	if d.Outcome != OutcomePull {
		t.Fatalf("remote-only: got %v, want pull", d.Outcome)
	}

	// Both present with no metadata: the remote copy is canonical.
	id := task.RemoteID("gt-9")
	d = Resolve(snap(id, "local copy", t2), snap(id, "remote copy", t0), nil)
	if d.Outcome != OutcomePull {
		t.Fatalf("both, no metadata: got %v, want pull", d.Outcome)
	}

	d = Resolve(nil, nil, nil)
	if d.Outcome != OutcomeNone {
		t.Fatalf("neither side: got %v, want none", d.Outcome)
	}
}

func TestResolveEmptyMetadataActsAsNeverSynced(t *testing.T) {
	// A failed first push leaves a metadata row with no fingerprints.
	id := task.NewLocalID()
	local := snap(id, "pending", t0)
	meta := &store.SyncMetadata{TaskID: id.Value, Account: "work", State: store.SyncStatePendingPush}

	d := Resolve(local, nil, meta)
	if d.Outcome != OutcomePush {
		t.Fatalf("got %v, want push", d.Outcome)
	}
}

func TestResolveLocalDeletionWins(t *testing.T) {
	id := task.RemoteID("gt-1")
	base := snap(id, "buy milk", t0)
	meta := syncedMeta(base, base, t0)

	deleted := snap(id, "buy milk", t1)
	deleted.Status = task.StatusDeleted

	d := Resolve(deleted, base, meta)
	if d.Outcome != OutcomeDeleteRemote {
		t.Fatalf("got %v, want delete-remote", d.Outcome)
	}
}

func TestResolveRemoteEditOutlivesLocalDeletion(t *testing.T) {
	id := task.RemoteID("gt-1")
	base := snap(id, "buy milk", t0)
	meta := syncedMeta(base, base, t0)

	deleted := snap(id, "buy milk", t1)
	deleted.Status = task.StatusDeleted
	remote := snap(id, "urgent: buy milk", t2)

	d := Resolve(deleted, remote, meta)
	if d.Outcome != OutcomePull || !d.Conflict {
		t.Fatalf("got %v (conflict=%v), want conflicted pull", d.Outcome, d.Conflict)
	}
}

func TestResolveRemoteDeletionWins(t *testing.T) {
	id := task.RemoteID("gt-1")
	base := snap(id, "buy milk", t0)
	meta := syncedMeta(base, base, t0)

	d := Resolve(base, nil, meta)
	if d.Outcome != OutcomeDeleteLocal {
		t.Fatalf("remote gone: got %v, want delete-local", d.Outcome)
	}

	tombstone := snap(id, "buy milk", t1)
	tombstone.Status = task.StatusDeleted
	d = Resolve(base, tombstone, meta)
	if d.Outcome != OutcomeDeleteLocal {
		t.Fatalf("remote tombstone: got %v, want delete-local", d.Outcome)
	}
}

func TestResolveLocalEditOutlivesRemoteDeletion(t *testing.T) {
	id := task.RemoteID("gt-1")
	base := snap(id, "buy milk", t0)
	meta := syncedMeta(base, base, t0)

	local := snap(id, "buy milk and bread", t2)
	tombstone := snap(id, "buy milk", t1)
	tombstone.Status = task.StatusDeleted

	d := Resolve(local, tombstone, meta)
	if d.Outcome != OutcomePush || !d.Conflict {
		t.Fatalf("got %v (conflict=%v), want conflicted push", d.Outcome, d.Conflict)
	}
}

func TestResolveBothDeleted(t *testing.T) {
	id := task.RemoteID("gt-1")
	base := snap(id, "buy milk", t0)
	meta := syncedMeta(base, base, t0)

	deleted := snap(id, "buy milk", t1)
	deleted.Status = task.StatusDeleted

	d := Resolve(deleted, nil, meta)
	if d.Outcome != OutcomeDeleteLocal {
		t.Fatalf("got %v, want delete-local cleanup", d.Outcome)
	}
}

func TestResolveOrphanMetadata(t *testing.T) {
	// Metadata survives but both snapshots are gone (e.g. crash between
	// purge and metadata delete). Cleanup, no error.
	id := task.RemoteID("gt-1")
	base := snap(id, "buy milk", t0)
	meta := syncedMeta(base, base, t0)

	d := Resolve(nil, nil, meta)
	if d.Outcome != OutcomeDeleteLocal {
		t.Fatalf("got %v, want delete-local cleanup", d.Outcome)
	}
}

func TestResolveNeverSyncedDeletion(t *testing.T) {
	// Created and deleted locally before any sync: nothing to push.
	id := task.NewLocalID()
	deleted := snap(id, "short-lived", t0)
	deleted.Status = task.StatusDeleted

	d := Resolve(deleted, nil, nil)
	if d.Outcome != OutcomeDeleteLocal {
		t.Fatalf("got %v, want delete-local cleanup", d.Outcome)
	}
}
