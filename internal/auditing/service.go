// Package auditing sequences a save with its audit trail: capture, business
// write, deferred resolution, audit append.
package auditing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"audittrail/internal/audit"
	"audittrail/internal/capture"
	appctx "audittrail/internal/core/context"
	"audittrail/internal/core/entity"
	"audittrail/internal/tracking"
	"audittrail/pkg/logger"
)

var tracer = otel.Tracer("audittrail/auditing")

// Writer appends finalized audit records.
type Writer interface {
	Append(ctx context.Context, records []audit.Record) error
}

// Publisher receives the domain events of saved entities.
type Publisher interface {
	Publish(ctx context.Context, aggregateType, aggregateID string, events []entity.DomainEvent) error
}

// Service is safe for concurrent use; each call owns its tracker.
type Service struct {
	engine    *capture.Engine
	writer    Writer
	publisher Publisher
}

type Option func(*Service)

// WithPublisher enables domain event publication after a save.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(engine *capture.Engine, writer Writer, opts ...Option) *Service {
	s := &Service{engine: engine, writer: writer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveWithAudit persists the tracker's pending changes and records them in
// the audit trail.
//
// The returned values are those of tracker.Persist. Audit failures at any
// step are logged and never reach the caller, so the trail may have gaps;
// the business write is never blocked or undone because of auditing.
// actingUserID falls back to the user bound to ctx.
func (s *Service) SaveWithAudit(ctx context.Context, tracker tracking.Tracker, actingUserID *string, style audit.NamingStyle) (int64, error) {
	ctx, span := tracer.Start(ctx, "auditing.SaveWithAudit")
	defer span.End()

	user := appctx.ActingUser(ctx, actingUserID)
	policy := style.Policy()
	sources := s.eventSources(tracker)

	captured, err := s.engine.Capture(ctx, tracker, user, policy)
	if err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "change capture failed, saving without audit", "error", err)
	}

	rows, err := tracker.Persist(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return rows, err
	}

	written := s.append(ctx, captured.Records, "captured")

	if captured.Deferred.Len() > 0 {
		resolved, err := s.engine.Resolve(ctx, captured.Deferred, user, policy)
		if err != nil {
			span.RecordError(err)
			logger.Warn(ctx, "deferred audit resolution failed",
				"error", err, "tables", deferredTables(captured.Deferred),
				"deferred", captured.Deferred.Len(), "resolved", len(resolved))
		}
		written += s.append(ctx, resolved, "resolved")
	}

	s.publish(ctx, sources)

	span.SetAttributes(
		attribute.Int64("audit.rows_affected", rows),
		attribute.Int("audit.records", written),
	)
	return rows, nil
}

func deferredTables(d *capture.DeferredSet) []string {
	var tables []string
	for _, e := range d.Entries() {
		tables = append(tables, e.Table)
	}
	return tables
}

func (s *Service) append(ctx context.Context, records []audit.Record, phase string) int {
	if len(records) == 0 {
		return 0
	}
	if err := s.writer.Append(ctx, records); err != nil {
		logger.Warn(ctx, "audit records lost", "phase", phase, "count", len(records), "error", err)
		return 0
	}
	return len(records)
}

// eventSources is evaluated before Persist, which may drop deleted entries
// from the working set. Only entries Persist will write are kept.
func (s *Service) eventSources(tracker tracking.Tracker) []tracking.Entry {
	if s.publisher == nil {
		return nil
	}
	var out []tracking.Entry
	for _, e := range tracker.Entries() {
		switch e.State() {
		case tracking.Added, tracking.Modified, tracking.Deleted:
		default:
			continue
		}
		if src, ok := e.Entity().(entity.EventSource); ok && len(src.Events()) > 0 {
			out = append(out, e)
		}
	}
	return out
}

func (s *Service) publish(ctx context.Context, sources []tracking.Entry) {
	for _, e := range sources {
		src := e.Entity().(entity.EventSource)
		aggregateID := ""
		for _, p := range e.Properties() {
			if p.Key {
				if v := audit.FormatValue(p.Current); v != nil {
					aggregateID = *v
				}
				break
			}
		}

		if err := s.publisher.Publish(ctx, e.Table(), aggregateID, src.Events()); err != nil {
			logger.Warn(ctx, "domain events not published", "table", e.Table(), "id", aggregateID, "error", err)
			continue
		}
		src.ClearEvents()
	}
}
