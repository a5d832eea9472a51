package auditing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"audittrail/internal/audit"
	"audittrail/internal/capture"
	appctx "audittrail/internal/core/context"
	"audittrail/internal/core/entity"
	"audittrail/internal/tracking"
	"audittrail/pkg/logger"
)

type invoice struct {
	entity.Base[int64]
	Number int64  `db:"id" audit:"key,generated"`
	Status string `db:"status"`
}

type invoiceIssued struct{ Status string }

func (invoiceIssued) EventName() string { return "invoice.issued" }

// memTracker persists into memory, assigning ids from nextID.
type memTracker struct {
	*tracking.Set
	nextID   int64
	err      error
	persists int
	extra    []tracking.Entry
}

func newMemTracker() *memTracker {
	return &memTracker{Set: tracking.NewSet(), nextID: 1000}
}

func (m *memTracker) Entries() []tracking.Entry {
	return append(m.Set.Entries(), m.extra...)
}

func (m *memTracker) Persist(context.Context) (int64, error) {
	m.persists++
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for _, e := range m.Tracked() {
		switch e.State() {
		case tracking.Added:
			inv := e.Entity().(*invoice)
			m.nextID++
			inv.Number = m.nextID
			inv.AssignID(m.nextID)
			n++
		case tracking.Modified, tracking.Deleted:
			n++
		}
	}
	m.AcceptChanges()
	return n, nil
}

type recordingWriter struct {
	batches [][]audit.Record
	err     error
}

func (w *recordingWriter) Append(_ context.Context, records []audit.Record) error {
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, records)
	return nil
}

type published struct {
	table, id string
	events    []entity.DomainEvent
}

type recordingPublisher struct {
	calls []published
}

func (p *recordingPublisher) Publish(_ context.Context, table, id string, events []entity.DomainEvent) error {
	p.calls = append(p.calls, published{table, id, events})
	return nil
}

type brokenEntry struct{}

func (brokenEntry) Entity() any           { return struct{}{} }
func (brokenEntry) Table() string         { return "broken" }
func (brokenEntry) State() tracking.State { return tracking.Added }
func (brokenEntry) Properties() []tracking.Property {
	panic("malformed value")
}
func (brokenEntry) Property(string) (tracking.Property, bool) { return tracking.Property{}, false }

func observedContext() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.WithLogger(context.Background(), logger.NewFromCore(core)), logs
}

func newService(w Writer, opts ...Option) *Service {
	engine := capture.NewEngine(capture.WithClock(func() time.Time {
		return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	}))
	return NewService(engine, w, opts...)
}

func strPtr(s string) *string { return &s }

func TestSaveWithAudit_TwoPhases(t *testing.T) {
	ctx, _ := observedContext()
	tracker := newMemTracker()
	existing := &invoice{Base: entity.NewBase[int64](7), Number: 7, Status: "draft"}
	fresh := &invoice{Status: "new"}
	require.NoError(t, tracker.Attach(existing))
	require.NoError(t, tracker.Add(fresh))
	existing.Status = "issued"

	w := &recordingWriter{}
	rows, err := newService(w).SaveWithAudit(ctx, tracker, strPtr("alice"), audit.NamingSnake)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)

	require.Len(t, w.batches, 2)

	require.Len(t, w.batches[0], 1)
	update := w.batches[0][0]
	assert.Equal(t, audit.ActionUpdate, update.Action)
	assert.Equal(t, "7", update.RefID)
	assert.Equal(t, "status", update.Column())
	assert.Equal(t, "draft", update.Old())
	assert.Equal(t, "issued", update.New())
	assert.Equal(t, "alice", update.User())

	require.Len(t, w.batches[1], 1)
	insert := w.batches[1][0]
	assert.Equal(t, audit.ActionInsert, insert.Action)
	assert.Equal(t, "1001", insert.RefID)
	assert.Equal(t, "invoices", insert.RefTable)
	assert.JSONEq(t, `{"id":1001,"status":"new"}`, insert.Snapshot())
}

func TestSaveWithAudit_UserFromContext(t *testing.T) {
	ctx, _ := observedContext()
	ctx = appctx.WithUserID(ctx, "ctx-user")
	tracker := newMemTracker()
	inv := &invoice{Number: 1, Status: "a"}
	require.NoError(t, tracker.Attach(inv))
	inv.Status = "b"

	w := &recordingWriter{}
	_, err := newService(w).SaveWithAudit(ctx, tracker, nil, audit.NamingNone)
	require.NoError(t, err)
	require.Len(t, w.batches, 1)
	assert.Equal(t, "ctx-user", w.batches[0][0].User())
}

func TestSaveWithAudit_CaptureFailureDoesNotBlockWrite(t *testing.T) {
	ctx, logs := observedContext()
	tracker := newMemTracker()
	tracker.extra = []tracking.Entry{brokenEntry{}}
	inv := &invoice{Number: 1, Status: "a"}
	require.NoError(t, tracker.Attach(inv))
	inv.Status = "b"

	w := &recordingWriter{}
	rows, err := newService(w).SaveWithAudit(ctx, tracker, nil, audit.NamingSnake)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Equal(t, 1, tracker.persists)
	assert.Empty(t, w.batches)
	assert.Equal(t, 1, logs.FilterMessage("change capture failed, saving without audit").Len())
}

func TestSaveWithAudit_PersistErrorSurfaces(t *testing.T) {
	ctx, _ := observedContext()
	boom := errors.New("unique violation")
	tracker := newMemTracker()
	tracker.err = boom
	inv := &invoice{Number: 1, Status: "a"}
	require.NoError(t, tracker.Attach(inv))
	inv.Status = "b"

	w := &recordingWriter{}
	_, err := newService(w).SaveWithAudit(ctx, tracker, nil, audit.NamingSnake)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, w.batches)
}

func TestSaveWithAudit_AuditWriteFailureIsSwallowed(t *testing.T) {
	ctx, logs := observedContext()
	tracker := newMemTracker()
	require.NoError(t, tracker.Add(&invoice{Status: "new"}))

	w := &recordingWriter{err: errors.New("audit table missing")}
	rows, err := newService(w).SaveWithAudit(ctx, tracker, nil, audit.NamingSnake)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	lost := logs.FilterMessage("audit records lost")
	require.Equal(t, 1, lost.Len())
	assert.Equal(t, "resolved", lost.All()[0].ContextMap()["phase"])
}

func TestSaveWithAudit_NothingToAudit(t *testing.T) {
	ctx, _ := observedContext()
	tracker := newMemTracker()
	require.NoError(t, tracker.Attach(&invoice{Number: 1, Status: "a"}))

	w := &recordingWriter{}
	rows, err := newService(w).SaveWithAudit(ctx, tracker, nil, audit.NamingSnake)
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Empty(t, w.batches)
}

func TestSaveWithAudit_PublishesDomainEvents(t *testing.T) {
	ctx, _ := observedContext()
	tracker := newMemTracker()
	inv := &invoice{Status: "new"}
	inv.AddEvent(invoiceIssued{Status: "new"})
	require.NoError(t, tracker.Add(inv))

	pub := &recordingPublisher{}
	_, err := newService(&recordingWriter{}, WithPublisher(pub)).SaveWithAudit(ctx, tracker, nil, audit.NamingSnake)
	require.NoError(t, err)

	require.Len(t, pub.calls, 1)
	assert.Equal(t, "invoices", pub.calls[0].table)
	assert.Equal(t, "1001", pub.calls[0].id)
	require.Len(t, pub.calls[0].events, 1)
	assert.Equal(t, "invoice.issued", pub.calls[0].events[0].EventName())
	assert.Empty(t, inv.Events())
}

func TestSaveWithAudit_SkipsEventsOfUnsavedEntities(t *testing.T) {
	ctx, _ := observedContext()
	tracker := newMemTracker()

	dropped := &invoice{Status: "new"}
	dropped.AddEvent(invoiceIssued{Status: "new"})
	require.NoError(t, tracker.Add(dropped))
	require.NoError(t, tracker.Remove(dropped))

	untouched := &invoice{Base: entity.NewBase[int64](9), Number: 9, Status: "paid"}
	untouched.AddEvent(invoiceIssued{Status: "paid"})
	require.NoError(t, tracker.Attach(untouched))

	pub := &recordingPublisher{}
	rows, err := newService(&recordingWriter{}, WithPublisher(pub)).SaveWithAudit(ctx, tracker, nil, audit.NamingSnake)
	require.NoError(t, err)

	assert.Zero(t, rows)
	assert.Empty(t, pub.calls)
	assert.Len(t, dropped.Events(), 1)
	assert.Len(t, untouched.Events(), 1)
}

func TestDeferredTables(t *testing.T) {
	tracker := newMemTracker()
	require.NoError(t, tracker.Add(&invoice{Status: "new"}))

	engine := capture.NewEngine()
	res, err := engine.Capture(context.Background(), tracker, nil, audit.NamingSnake.Policy())
	require.NoError(t, err)

	assert.Equal(t, []string{"invoices"}, deferredTables(res.Deferred))
	assert.Nil(t, deferredTables(nil))
}
