// Package remote defines the opaque CRUD capability the sync engine
// consumes against the remote task service, plus the concrete Google
// Tasks implementation.
package remote

import (
	"context"
	"errors"

	"github.com/taskmirror/taskmirror/internal/task"
)

// Sentinel errors surfaced by remote clients.
var (
	// ErrNotFound means the remote task or task list does not exist.
	ErrNotFound = errors.New("remote task not found")

	// ErrUnauthorized means the credentials were rejected.
	ErrUnauthorized = errors.New("remote authorization failed")
)

// Client is the remote task service as the sync engine sees it: create,
// read, update, delete, and list, keyed by remote-issued identifiers
// within a remote task list. List drains pagination internally, so the
// engine always sees the complete remote set; a partial view would
// manufacture spurious local-ahead classifications.
//
// Every call does network I/O and may block. Implementations must honor
// the context and return wrapped sentinel errors where applicable.
type Client interface {
	Create(ctx context.Context, tasklist string, t *task.Task) (string, error)
	Get(ctx context.Context, tasklist, remoteID string) (*task.Task, error)
	Update(ctx context.Context, tasklist, remoteID string, t *task.Task) error
	Delete(ctx context.Context, tasklist, remoteID string) error
	List(ctx context.Context, tasklist string) ([]*task.Task, error)
}
