package postgres

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/Masterminds/squirrel"

	"audittrail/internal/core/apperror"
	"audittrail/internal/tracking"
)

var _ tracking.Tracker = (*Session)(nil)

// Session is a tracked working set that persists itself with plain
// INSERT/UPDATE/DELETE statements. It writes through the transaction bound
// to ctx when there is one.
type Session struct {
	*tracking.Set
	txm *TxManager
}

func NewSession(txm *TxManager) *Session {
	return &Session{Set: tracking.NewSet(), txm: txm}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (s *Session) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Persist writes every pending change and returns the number of rows
// affected. Generated columns are read back into the entities, after which
// the current values become the new baseline.
func (s *Session) Persist(ctx context.Context) (int64, error) {
	var total int64

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := s.txm.GetQuerier(ctx)
		for _, e := range s.Tracked() {
			var (
				n   int64
				err error
			)
			switch e.State() {
			case tracking.Added:
				n, err = s.insert(ctx, q, e)
			case tracking.Modified:
				n, err = s.update(ctx, q, e)
			case tracking.Deleted:
				n, err = s.delete(ctx, q, e)
			default:
				continue
			}
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.AcceptChanges()
	return total, nil
}

func (s *Session) insert(ctx context.Context, q Querier, e *tracking.TrackedEntry) (int64, error) {
	schema := e.Schema()

	var (
		cols      []string
		vals      []any
		returning []string
		dest      []any
	)
	for _, f := range schema.Fields {
		v, _ := e.Value(f.Column)
		if f.Generated && (v == nil || reflect.ValueOf(v).IsZero()) {
			addr, _ := e.Addr(f.Column)
			returning = append(returning, f.Column)
			dest = append(dest, addr)
			continue
		}
		cols = append(cols, f.Column)
		vals = append(vals, v)
	}

	b := s.Builder().Insert(schema.Table).Columns(cols...).Values(vals...)
	if len(returning) > 0 {
		b = b.Suffix("RETURNING " + strings.Join(returning, ", "))
	}

	sql, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	if len(returning) == 0 {
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return 0, apperror.NewDatabase(fmt.Sprintf("insert %s", schema.Table), err)
		}
		return tag.RowsAffected(), nil
	}

	if err := q.QueryRow(ctx, sql, args...).Scan(dest...); err != nil {
		return 0, apperror.NewDatabase(fmt.Sprintf("insert %s", schema.Table), err)
	}
	assignIdentity(e)
	return 1, nil
}

func (s *Session) update(ctx context.Context, q Querier, e *tracking.TrackedEntry) (int64, error) {
	schema := e.Schema()

	b := s.Builder().Update(schema.Table)
	for _, col := range e.ChangedColumns() {
		v, _ := e.Value(col)
		b = b.Set(col, v)
	}
	where, key := keyPredicate(e)
	b = b.Where(where)

	sql, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, apperror.NewDatabase(fmt.Sprintf("update %s", schema.Table), err)
	}
	if tag.RowsAffected() == 0 {
		return 0, apperror.NewConcurrentModification(schema.Table, key)
	}
	return tag.RowsAffected(), nil
}

func (s *Session) delete(ctx context.Context, q Querier, e *tracking.TrackedEntry) (int64, error) {
	schema := e.Schema()
	where, key := keyPredicate(e)

	sql, args, err := s.Builder().Delete(schema.Table).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, apperror.NewDatabase(fmt.Sprintf("delete %s", schema.Table), err)
	}
	if tag.RowsAffected() == 0 {
		return 0, apperror.NewConcurrentModification(schema.Table, key)
	}
	return tag.RowsAffected(), nil
}

// keyPredicate matches the row by its key values as loaded, so an edited key
// column still addresses the original row.
func keyPredicate(e *tracking.TrackedEntry) (squirrel.And, map[string]any) {
	var where squirrel.And
	key := make(map[string]any)
	for _, f := range e.Schema().Keys() {
		v, _ := e.Original(f.Column)
		where = append(where, squirrel.Eq{f.Column: v})
		key[f.Column] = v
	}
	return where, key
}

// assignIdentity hands a store-generated single key to entities exposing
// AssignID (entity.Base), keeping their Identity in sync with the column.
func assignIdentity(e *tracking.TrackedEntry) {
	keys := e.Schema().Keys()
	if len(keys) != 1 || !keys[0].Generated {
		return
	}
	m := reflect.ValueOf(e.Entity()).MethodByName("AssignID")
	if !m.IsValid() || m.Type().NumIn() != 1 {
		return
	}
	v, _ := e.Value(keys[0].Column)
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || !rv.Type().AssignableTo(m.Type().In(0)) {
		return
	}
	m.Call([]reflect.Value{rv})
}
