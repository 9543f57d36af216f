// Package task defines the task record shared by the local store, the
// remote client, and the sync engine, along with the tagged identifier
// scheme and the snapshot fingerprint used for change detection.
package task

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusDeleted   Status = "deleted"
)

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusCompleted, StatusDeleted:
		return true
	}
	return false
}

// Task is the unit of work mirrored between the local store and the
// remote service. Notes may embed bracket tags ("[errand]") which the
// store indexes for filtering; the sync engine treats notes as opaque.
type Task struct {
	ID       ID     `json:"-"`
	Title    string `json:"title"`
	Notes    string `json:"notes,omitempty"`
	Status   Status `json:"status"`
	Priority int    `json:"priority"` // 0-4 (P0=urgent, P4=someday)

	Due *time.Time `json:"due,omitempty"`

	TasklistID string `json:"tasklist_id,omitempty"`
	Account    string `json:"account"`

	// CreatedAt/ModifiedAt are stamped by the local store on mutation;
	// ModifiedAt is the basis for fingerprinting and conflict resolution.
	CreatedAt   time.Time  `json:"created_at"`
	ModifiedAt  time.Time  `json:"modified_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Validate checks the task for well-formedness before persisting.
func (t *Task) Validate() error {
	if t.ID.IsZero() {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 1024 {
		return fmt.Errorf("title must be 1024 characters or less (got %d)", len(t.Title))
	}
	if !ValidStatus(t.Status) {
		return fmt.Errorf("unknown status %q", t.Status)
	}
	if t.Priority < 0 || t.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", t.Priority)
	}
	if t.Account == "" {
		return fmt.Errorf("account is required")
	}
	return nil
}

// Deleted reports whether the task has been soft-deleted.
func (t *Task) Deleted() bool { return t.Status == StatusDeleted }

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.Due != nil {
		due := *t.Due
		c.Due = &due
	}
	if t.CompletedAt != nil {
		done := *t.CompletedAt
		c.CompletedAt = &done
	}
	return &c
}

// Fingerprint is an opaque, comparable summary of a task snapshot's
// mutable content. Two fingerprints are equal exactly when the snapshots
// they were computed from carry the same mutable fields and modification
// time. Callers compare fingerprints for equality only.
type Fingerprint string

// Fingerprint computes the snapshot fingerprint. It never fails for a
// well-formed task; a nil receiver yields the empty fingerprint, which
// compares unequal to every real one.
func (t *Task) Fingerprint() Fingerprint {
	if t == nil {
		return ""
	}
	h := sha256.New()
	write := func(field string) {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	write(t.Title)
	write(t.Notes)
	write(string(t.Status))
	write(strconv.Itoa(t.Priority))
	if t.Due != nil {
		write(t.Due.UTC().Format(time.RFC3339Nano))
	} else {
		write("")
	}
	if t.CompletedAt != nil {
		write(t.CompletedAt.UTC().Format(time.RFC3339Nano))
	} else {
		write("")
	}
	write(t.ModifiedAt.UTC().Format(time.RFC3339Nano))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

var bracketTag = regexp.MustCompile(`\[([A-Za-z0-9_:-]+)\]`)

// Tags extracts bracket tags embedded in the notes field. Duplicates are
// collapsed, order of first appearance is preserved.
func (t *Task) Tags() []string {
	matches := bracketTag.FindAllStringSubmatch(t.Notes, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var tags []string
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		tags = append(tags, m[1])
	}
	return tags
}
