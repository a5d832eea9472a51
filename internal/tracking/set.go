package tracking

import (
	"fmt"
	"reflect"
	"sync"
)

// TrackedEntry is one struct monitored by a Set.
type TrackedEntry struct {
	ptr      reflect.Value
	schema   *Schema
	state    State
	original map[string]any
}

var _ Entry = (*TrackedEntry)(nil)

func (e *TrackedEntry) Entity() any     { return e.ptr.Interface() }
func (e *TrackedEntry) Table() string   { return e.schema.Table }
func (e *TrackedEntry) Schema() *Schema { return e.schema }

// State derives Modified from the snapshot taken at attach time.
func (e *TrackedEntry) State() State {
	if e.state == Unchanged && e.changed() {
		return Modified
	}
	return e.state
}

func (e *TrackedEntry) Properties() []Property {
	props := make([]Property, 0, len(e.schema.Fields))
	for _, f := range e.schema.Fields {
		if !f.Audited {
			continue
		}
		props = append(props, e.property(f))
	}
	return props
}

func (e *TrackedEntry) Property(name string) (Property, bool) {
	f, ok := e.schema.Field(name)
	if !ok || !f.Audited {
		return Property{}, false
	}
	return e.property(f), true
}

// ChangedColumns lists the columns whose current value differs from the
// snapshot, in declaration order.
func (e *TrackedEntry) ChangedColumns() []string {
	var cols []string
	for _, f := range e.schema.Fields {
		if !ValuesEqual(f.Value(e.ptr.Elem()), e.original[f.Column]) {
			cols = append(cols, f.Column)
		}
	}
	return cols
}

// Value reads the current value of a column.
func (e *TrackedEntry) Value(column string) (any, bool) {
	f, ok := e.schema.Field(column)
	if !ok {
		return nil, false
	}
	return f.Value(e.ptr.Elem()), true
}

// Original reads the snapshot value of a column.
func (e *TrackedEntry) Original(column string) (any, bool) {
	v, ok := e.original[column]
	return v, ok
}

// Addr returns a scan destination for a column.
func (e *TrackedEntry) Addr(column string) (any, bool) {
	f, ok := e.schema.Field(column)
	if !ok {
		return nil, false
	}
	return f.Addr(e.ptr.Elem()), true
}

func (e *TrackedEntry) property(f Field) Property {
	current := f.Value(e.ptr.Elem())
	original := current
	if e.state != Added {
		original = e.original[f.Column]
	}
	return Property{
		Name:      f.Column,
		Current:   current,
		Original:  original,
		Temporary: f.Generated && e.state == Added && isZero(current),
		Key:       f.Key,
	}
}

func isZero(v any) bool {
	return v == nil || reflect.ValueOf(v).IsZero()
}

func (e *TrackedEntry) changed() bool {
	return len(e.ChangedColumns()) > 0
}

// snapshot copies the current field values. Reference types (slices, maps)
// share backing storage with the entity, so in-place mutation of those is
// not detected.
func (e *TrackedEntry) snapshot() {
	e.original = make(map[string]any, len(e.schema.Fields))
	for _, f := range e.schema.Fields {
		e.original[f.Column] = f.Value(e.ptr.Elem())
	}
}

// Set is an in-memory working set of tracked structs. Entities are tracked
// by pointer identity.
type Set struct {
	mu      sync.Mutex
	entries []*TrackedEntry
	byPtr   map[uintptr]*TrackedEntry
}

func NewSet() *Set {
	return &Set{byPtr: make(map[uintptr]*TrackedEntry)}
}

// Add tracks v as a new record.
func (s *Set) Add(v any) error {
	return s.track(v, Added)
}

// Attach tracks v as loaded from the store; later field edits make it Modified.
func (s *Set) Attach(v any) error {
	return s.track(v, Unchanged)
}

// Remove marks v for deletion. A record added in the same unit is simply
// dropped.
func (s *Set) Remove(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(v)
	if err != nil {
		return err
	}
	if e.state == Added {
		e.state = Detached
		return nil
	}
	e.state = Deleted
	return nil
}

// Detach stops tracking v. The entry is reported as Detached until
// AcceptChanges prunes it.
func (s *Set) Detach(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(v)
	if err != nil {
		return err
	}
	e.state = Detached
	return nil
}

// Entry returns the tracked entry for v.
func (s *Set) Entry(v any) (*TrackedEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(v)
	return e, err == nil
}

// Entries returns the entries in tracking order.
func (s *Set) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e
	}
	return out
}

// Tracked returns the concrete entries in tracking order.
func (s *Set) Tracked() []*TrackedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*TrackedEntry(nil), s.entries...)
}

// AcceptChanges makes the current values the new baseline: added and
// modified entries become Unchanged, deleted and detached ones are dropped.
func (s *Set) AcceptChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		switch e.state {
		case Deleted, Detached:
			delete(s.byPtr, e.ptr.Pointer())
			continue
		}
		e.state = Unchanged
		e.snapshot()
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept
}

func (s *Set) track(v any, state State) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("tracking: %T must be a non-nil pointer to struct", v)
	}
	schema, err := SchemaOf(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.byPtr[rv.Pointer()]; ok {
		e.state = state
		e.snapshot()
		return nil
	}
	e := &TrackedEntry{ptr: rv, schema: schema, state: state}
	e.snapshot()
	s.entries = append(s.entries, e)
	s.byPtr[rv.Pointer()] = e
	return nil
}

func (s *Set) lookup(v any) (*TrackedEntry, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, fmt.Errorf("tracking: %T is not tracked", v)
	}
	e, ok := s.byPtr[rv.Pointer()]
	if !ok {
		return nil, fmt.Errorf("tracking: %T is not tracked", v)
	}
	return e, nil
}
