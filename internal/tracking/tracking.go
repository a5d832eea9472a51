// Package tracking is the change-tracking abstraction consumed by the capture
// engine: which records in a working set are new, removed or modified
// relative to their last-loaded state.
package tracking

import "context"

// State is the lifecycle state of a tracked entry relative to the store.
type State int

const (
	Detached State = iota
	Unchanged
	Added
	Modified
	Deleted
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Property is one field of a tracked entry.
type Property struct {
	Name     string
	Current  any
	Original any
	// Temporary marks a placeholder awaiting a store-assigned value.
	Temporary bool
	Key       bool
}

// Entry is a record currently monitored for field-level changes.
type Entry interface {
	Entity() any
	Table() string
	State() State
	Properties() []Property
	Property(name string) (Property, bool)
}

// Tracker exposes the working set and the store write primitive.
type Tracker interface {
	Entries() []Entry
	// Persist writes pending changes and returns the rows affected.
	// Generated values are readable from the entries once it returns.
	Persist(ctx context.Context) (int64, error)
}
