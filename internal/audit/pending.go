package audit

// PendingEntry accumulates the capture state for one tracked change until it
// can be turned into a Record.
//
// An entry with pending placeholder fields must not be finalized before the
// store has assigned their values; an update without a changed field must not
// be finalized at all.
type PendingEntry struct {
	Table  string
	Action Action

	// KeyNames preserves declaration order; the first key is the reference id.
	KeyNames []string
	Keys     map[string]any
	Old      map[string]any
	New      map[string]any

	// ChangedField is a single slot. When an update touches several columns
	// each differing column overwrites it and only the last one is kept.
	ChangedField string

	// Pending lists fields whose current value is a store placeholder.
	Pending []string
}

// NewPendingEntry creates an empty entry for table.
func NewPendingEntry(table string, action Action) *PendingEntry {
	return &PendingEntry{
		Table:  table,
		Action: action,
		Keys:   make(map[string]any),
		Old:    make(map[string]any),
		New:    make(map[string]any),
	}
}

// SetKey records a key field value, keeping first-seen order.
func (e *PendingEntry) SetKey(name string, v any) {
	if _, ok := e.Keys[name]; !ok {
		e.KeyNames = append(e.KeyNames, name)
	}
	e.Keys[name] = v
}

// MarkPending records a placeholder field for deferred resolution.
func (e *PendingEntry) MarkPending(name string) {
	e.Pending = append(e.Pending, name)
}

// RecordChange stores both sides of a differing update column and makes it
// the entry's changed field.
func (e *PendingEntry) RecordChange(name string, oldValue, newValue any) {
	e.Old[name] = oldValue
	e.New[name] = newValue
	e.ChangedField = name
}

// HasPending reports whether any field still awaits a store-assigned value.
func (e *PendingEntry) HasPending() bool {
	return len(e.Pending) > 0
}

// HasChanges reports whether the entry describes an actual delta.
func (e *PendingEntry) HasChanges() bool {
	if e.Action == ActionUpdate {
		return e.ChangedField != ""
	}
	return e.Action.Valid()
}

// Clone returns a deep copy of the entry's maps and slices; values are shared.
func (e *PendingEntry) Clone() *PendingEntry {
	c := NewPendingEntry(e.Table, e.Action)
	c.KeyNames = append([]string(nil), e.KeyNames...)
	c.Pending = append([]string(nil), e.Pending...)
	c.ChangedField = e.ChangedField
	for k, v := range e.Keys {
		c.Keys[k] = v
	}
	for k, v := range e.Old {
		c.Old[k] = v
	}
	for k, v := range e.New {
		c.New[k] = v
	}
	return c
}
