package audit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"audittrail/internal/core/apperror"
)

// Meta carries the values stamped on every record of one save.
type Meta struct {
	CreatedAt   time.Time
	CreatedUser *string
}

// ToRecord finalizes entry into a Record.
//
// The reference id is the string form of the first key; composite keys are
// not joined. A missing changed column on an update is a broken capture
// invariant and fails with CodeConstruction rather than being substituted.
func ToRecord(entry *PendingEntry, policy NamingPolicy, meta Meta) (Record, error) {
	if entry == nil {
		return Record{}, apperror.NewConstruction("nil pending entry")
	}
	if policy == nil {
		policy = NamingNone.Policy()
	}
	if entry.HasPending() {
		return Record{}, apperror.NewConstruction("entry has unresolved placeholder fields").
			WithDetail("table", entry.Table).
			WithDetail("fields", entry.Pending)
	}
	if len(entry.KeyNames) == 0 {
		return Record{}, apperror.NewConstruction("entry has no key fields").
			WithDetail("table", entry.Table)
	}

	rec := Record{
		RefID:       deref(FormatValue(entry.Keys[entry.KeyNames[0]])),
		RefTable:    policy(entry.Table),
		Action:      entry.Action,
		CreatedAt:   meta.CreatedAt.UTC(),
		CreatedUser: meta.CreatedUser,
	}

	switch entry.Action {
	case ActionInsert:
		snap, err := snapshot(entry.Keys, entry.New)
		if err != nil {
			return Record{}, err
		}
		rec.RecordValue = &snap
	case ActionDelete:
		snap, err := snapshot(entry.Keys, entry.Old)
		if err != nil {
			return Record{}, err
		}
		rec.RecordValue = &snap
	case ActionUpdate:
		field := entry.ChangedField
		if field == "" {
			return Record{}, apperror.NewConstruction("update entry has no changed field").
				WithDetail("table", entry.Table)
		}
		oldValue, ok := entry.Old[field]
		if !ok {
			return Record{}, missingColumn(entry, field, "old")
		}
		newValue, ok := entry.New[field]
		if !ok {
			return Record{}, missingColumn(entry, field, "new")
		}
		column := policy(field)
		rec.ColumnName = &column
		rec.OldValue = FormatValue(oldValue)
		rec.NewValue = FormatValue(newValue)
	default:
		return Record{}, apperror.NewConstruction(fmt.Sprintf("unknown action %q", entry.Action)).
			WithDetail("table", entry.Table)
	}

	return rec, nil
}

func missingColumn(entry *PendingEntry, field, side string) error {
	return apperror.NewConstruction(fmt.Sprintf("changed column %q missing from %s values", field, side)).
		WithDetail("table", entry.Table).
		WithDetail("column", field)
}

// snapshot merges keys and values into one JSON object. Key fields win on
// name clashes.
func snapshot(keys, values map[string]any) (string, error) {
	merged := make(map[string]any, len(keys)+len(values))
	for k, v := range values {
		merged[k] = v
	}
	for k, v := range keys {
		merged[k] = v
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return "", apperror.NewConstruction("marshal record snapshot").WithCause(err)
	}
	return string(b), nil
}

var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

// FormatValue renders a field value as audit text. Nil and nil pointers map to
// nil so the column stays NULL.
func FormatValue(v any) *string {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		// String declared on the pointer receiver, e.g. *big.Int.
		if st, ok := rv.Interface().(fmt.Stringer); ok && !rv.Elem().Type().Implements(stringerType) {
			s := st.String()
			return &s
		}
		rv = rv.Elem()
	}
	v = rv.Interface()

	var s string
	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	case time.Time:
		s = t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(v)
	}
	return &s
}
