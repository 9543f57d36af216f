package task

import (
	"testing"
	"time"
)

func baseTask() *Task {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return &Task{
		ID:         NewLocalID(),
		Title:      "Buy milk",
		Notes:      "whole, 2L [errand]",
		Status:     StatusPending,
		Priority:   2,
		Account:    "personal",
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

func TestValidate(t *testing.T) {
	tk := baseTask()
	if err := tk.Validate(); err != nil {
		t.Fatalf("valid task rejected: %v", err)
	}

	missing := baseTask()
	missing.Title = ""
	if err := missing.Validate(); err == nil {
		t.Error("expected error for empty title")
	}

	badStatus := baseTask()
	badStatus.Status = "archived"
	if err := badStatus.Validate(); err == nil {
		t.Error("expected error for unknown status")
	}

	badPriority := baseTask()
	badPriority.Priority = 7
	if err := badPriority.Validate(); err == nil {
		t.Error("expected error for out-of-range priority")
	}
}

func TestFingerprintStable(t *testing.T) {
	a := baseTask()
	b := a.Clone()

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical snapshots must produce equal fingerprints")
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := baseTask()

	edited := a.Clone()
	edited.Title = "Buy oat milk"
	if a.Fingerprint() == edited.Fingerprint() {
		t.Error("title change must change the fingerprint")
	}

	touched := a.Clone()
	touched.ModifiedAt = touched.ModifiedAt.Add(time.Minute)
	if a.Fingerprint() == touched.Fingerprint() {
		t.Error("modified_at change must change the fingerprint")
	}

	done := a.Clone()
	now := time.Now()
	done.Status = StatusCompleted
	done.CompletedAt = &now
	if a.Fingerprint() == done.Fingerprint() {
		t.Error("status change must change the fingerprint")
	}
}

func TestFingerprintIgnoresIdentity(t *testing.T) {
	a := baseTask()
	b := a.Clone()
	b.ID = RemoteID("gt-99")

	// The identity swap after first push must not look like a content
	// change, or every reconciled task would immediately re-sync.
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint must not depend on the identifier")
	}
}

func TestNilFingerprint(t *testing.T) {
	var none *Task
	if none.Fingerprint() != "" {
		t.Error("nil task must produce the empty fingerprint")
	}
	if none.Fingerprint() == baseTask().Fingerprint() {
		t.Error("empty fingerprint must not match a real one")
	}
}

func TestTags(t *testing.T) {
	tk := baseTask()
	tk.Notes = "call [work] about [budget-q3], then [work] again"

	got := tk.Tags()
	want := []string{"work", "budget-q3"}
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	tk.Notes = "no tags here"
	if tags := tk.Tags(); tags != nil {
		t.Errorf("expected no tags, got %v", tags)
	}
}

func TestIDNamespaces(t *testing.T) {
	local := NewLocalID()
	if !local.IsLocal() || local.IsRemote() {
		t.Error("NewLocalID must be in the local namespace")
	}
	if local.IsZero() {
		t.Error("generated id must not be zero")
	}

	remote := RemoteID("gt-99")
	if !remote.IsRemote() || remote.IsLocal() {
		t.Error("RemoteID must be in the remote namespace")
	}

	parsed, err := ParseID("gt-99", "remote")
	if err != nil {
		t.Fatalf("ParseID failed: %v", err)
	}
	if parsed != remote {
		t.Errorf("ParseID = %+v, want %+v", parsed, remote)
	}

	if _, err := ParseID("x", "galactic"); err == nil {
		t.Error("expected error for unknown namespace")
	}
	if _, err := ParseID("", "local"); err == nil {
		t.Error("expected error for empty value")
	}
}
