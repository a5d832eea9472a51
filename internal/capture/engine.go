// Package capture turns a tracked working set into audit records in two
// phases: Capture runs before the business write, Resolve runs after it for
// entries whose generated fields were still placeholders.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"audittrail/internal/audit"
	"audittrail/internal/core/apperror"
	"audittrail/internal/tracking"
)

// Result is the outcome of Capture.
type Result struct {
	// Records are final and can be appended right after the business write.
	Records []audit.Record
	// Deferred holds entries that wait for store-assigned values.
	Deferred *DeferredSet
}

// Empty reports whether nothing was captured.
func (r Result) Empty() bool {
	return len(r.Records) == 0 && r.Deferred.Len() == 0
}

// Engine is stateless between calls and safe for concurrent use.
type Engine struct {
	filter     Filter
	now        func() time.Time
	skipTables map[string]struct{}
}

type Option func(*Engine)

// WithFilter restricts which entries are audited.
func WithFilter(f Filter) Option {
	return func(e *Engine) { e.filter = f }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSkipTables excludes tables from auditing, typically the audit table
// itself when audit rows are tracked through the same working set.
func WithSkipTables(tables ...string) Option {
	return func(e *Engine) {
		for _, t := range tables {
			e.skipTables[t] = struct{}{}
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:        time.Now,
		skipTables: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Capture classifies every tracked entry and builds pending changes.
// Entries whose fields are all known become records immediately; the rest are
// returned in Result.Deferred. On error, including a panic raised while
// reading a malformed field, the Result is empty and the error carries
// apperror.CodeCapture. Callers are expected to log it and carry on with the
// business write.
func (e *Engine) Capture(ctx context.Context, tracker tracking.Tracker, actingUser *string, policy audit.NamingPolicy) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = apperror.NewCapture(fmt.Errorf("panic while capturing changes: %v", r))
		}
	}()

	meta := audit.Meta{CreatedAt: e.now().UTC(), CreatedUser: actingUser}
	deferred := &DeferredSet{}
	var records []audit.Record

	for _, entry := range tracker.Entries() {
		if err := ctx.Err(); err != nil {
			return Result{}, apperror.NewCapture(err)
		}
		if e.skip(entry) {
			continue
		}
		action, ok := classify(entry.State())
		if !ok {
			continue
		}
		if e.filter != nil {
			match, err := e.filter.Match(ctx, entry.Table(), action)
			if err != nil {
				return Result{}, apperror.NewCapture(err).WithDetail("table", entry.Table())
			}
			if !match {
				continue
			}
		}

		pending := buildPending(entry, action)
		if pending.HasPending() {
			deferred.add(pending, entry)
			continue
		}
		if !pending.HasChanges() {
			continue
		}

		rec, err := audit.ToRecord(pending, policy, meta)
		if err != nil {
			return Result{}, apperror.NewCapture(err).WithDetail("table", entry.Table())
		}
		records = append(records, rec)
	}

	return Result{Records: records, Deferred: deferred}, nil
}

// Resolve finalizes deferred entries once the store has assigned their
// placeholder values. Every entry is attempted; records built before a
// failure are still returned alongside the joined error.
func (e *Engine) Resolve(ctx context.Context, deferred *DeferredSet, actingUser *string, policy audit.NamingPolicy) ([]audit.Record, error) {
	if deferred.Len() == 0 {
		return nil, nil
	}

	meta := audit.Meta{CreatedAt: e.now().UTC(), CreatedUser: actingUser}
	records := make([]audit.Record, 0, deferred.Len())
	var errs []error

	for _, item := range deferred.items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rec, err := resolveOne(item, policy, meta)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}

	if len(errs) > 0 {
		return records, apperror.NewResolve(errors.Join(errs...))
	}
	return records, nil
}

func (e *Engine) skip(entry tracking.Entry) bool {
	switch entry.Entity().(type) {
	case audit.Record, *audit.Record:
		return true
	}
	_, ok := e.skipTables[entry.Table()]
	return ok
}

func classify(state tracking.State) (audit.Action, bool) {
	switch state {
	case tracking.Added:
		return audit.ActionInsert, true
	case tracking.Deleted:
		return audit.ActionDelete, true
	case tracking.Modified:
		return audit.ActionUpdate, true
	}
	return "", false
}

func buildPending(entry tracking.Entry, action audit.Action) *audit.PendingEntry {
	pending := audit.NewPendingEntry(entry.Table(), action)

	for _, p := range entry.Properties() {
		if p.Temporary {
			pending.MarkPending(p.Name)
			continue
		}
		if p.Key {
			pending.SetKey(p.Name, p.Current)
			continue
		}

		switch action {
		case audit.ActionInsert:
			pending.New[p.Name] = p.Current
		case audit.ActionDelete:
			pending.Old[p.Name] = p.Original
		case audit.ActionUpdate:
			if !tracking.ValuesEqual(p.Original, p.Current) {
				pending.RecordChange(p.Name, p.Original, p.Current)
			}
		}
	}

	return pending
}

func resolveOne(item deferredItem, policy audit.NamingPolicy, meta audit.Meta) (audit.Record, error) {
	pending := item.pending.Clone()
	pending.Pending = nil

	var order []string
	for _, name := range item.pending.Pending {
		p, ok := item.source.Property(name)
		if !ok {
			return audit.Record{}, fmt.Errorf("%s.%s: field no longer tracked", item.pending.Table, name)
		}
		if p.Temporary {
			return audit.Record{}, fmt.Errorf("%s.%s: value still unresolved", item.pending.Table, name)
		}
		if p.Key {
			pending.SetKey(name, p.Current)
			continue
		}
		pending.New[name] = p.Current
	}

	for _, p := range item.source.Properties() {
		if _, ok := pending.Keys[p.Name]; ok {
			order = append(order, p.Name)
		}
	}
	if len(order) == len(pending.KeyNames) {
		pending.KeyNames = order
	}

	return audit.ToRecord(pending, policy, meta)
}
