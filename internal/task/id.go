package task

import (
	"fmt"

	"github.com/google/uuid"
)

// Namespace identifies which identifier scheme a task ID belongs to.
// A task starts life in the local namespace and moves to the remote
// namespace exactly once, when the identity reconciler rewrites it
// after the first successful remote create. At any point in time
// exactly one namespace is authoritative for a given task.
type Namespace string

const (
	// NamespaceLocal marks an identifier generated by this machine
	// before the task has ever been pushed to the remote service.
	NamespaceLocal Namespace = "local"

	// NamespaceRemote marks the canonical identifier issued by the
	// remote service. Authoritative once assigned.
	NamespaceRemote Namespace = "remote"
)

// ID is a tagged task identifier. The zero value is invalid.
type ID struct {
	Value     string
	Namespace Namespace
}

// NewLocalID generates a fresh local-only identifier.
func NewLocalID() ID {
	return ID{Value: uuid.NewString(), Namespace: NamespaceLocal}
}

// RemoteID wraps an identifier issued by the remote service.
func RemoteID(value string) ID {
	return ID{Value: value, Namespace: NamespaceRemote}
}

// ParseID reconstructs an ID from its persisted value and namespace.
func ParseID(value, namespace string) (ID, error) {
	switch Namespace(namespace) {
	case NamespaceLocal, NamespaceRemote:
		if value == "" {
			return ID{}, fmt.Errorf("empty id value")
		}
		return ID{Value: value, Namespace: Namespace(namespace)}, nil
	default:
		return ID{}, fmt.Errorf("unknown id namespace %q", namespace)
	}
}

// IsLocal reports whether the task has never been pushed remotely.
func (id ID) IsLocal() bool { return id.Namespace == NamespaceLocal }

// IsRemote reports whether the identifier is the remote canonical one.
func (id ID) IsRemote() bool { return id.Namespace == NamespaceRemote }

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool { return id.Value == "" }

func (id ID) String() string { return id.Value }
