// Package audit defines the audit trail model: the immutable Record persisted
// to the audit table and the PendingEntry accumulated while capturing changes.
package audit

import (
	"time"
)

// Action is the kind of change an audit record describes.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Record is one captured change. Records are values: they are built once by
// ToRecord and only ever copied afterwards.
//
// Exactly one of {OldValue/NewValue, RecordValue} is populated, selected by
// Action: updates carry the single changed column, inserts and deletes carry
// a JSON snapshot of the row.
type Record struct {
	// ID is assigned by the store; zero until the record has been appended.
	ID          int64     `db:"id" json:"id,omitempty"`
	RefID       string    `db:"reference_id" json:"referenceId"`
	RefTable    string    `db:"reference_table" json:"referenceTable"`
	Action      Action    `db:"action_type" json:"actionType"`
	ColumnName  *string   `db:"column_name" json:"columnName,omitempty"`
	OldValue    *string   `db:"column_old_value" json:"columnOldValue,omitempty"`
	NewValue    *string   `db:"column_new_value" json:"columnNewValue,omitempty"`
	RecordValue *string   `db:"record_value" json:"recordValue,omitempty"`
	CreatedAt   time.Time `db:"created_date" json:"createdDate"`
	CreatedUser *string   `db:"created_user" json:"createdUser,omitempty"`
}

// Column returns the changed column name or "".
func (r Record) Column() string {
	return deref(r.ColumnName)
}

// Old returns the old column value or "".
func (r Record) Old() string {
	return deref(r.OldValue)
}

// New returns the new column value or "".
func (r Record) New() string {
	return deref(r.NewValue)
}

// Snapshot returns the JSON row snapshot or "".
func (r Record) Snapshot() string {
	return deref(r.RecordValue)
}

// User returns the acting user or "".
func (r Record) User() string {
	return deref(r.CreatedUser)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
