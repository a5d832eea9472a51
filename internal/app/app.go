// Package app wires configuration, storage and the audit pipeline together.
package app

import (
	"context"
	"fmt"

	"audittrail/internal/audit"
	"audittrail/internal/auditing"
	"audittrail/internal/capture"
	"audittrail/internal/config"
	"audittrail/internal/infrastructure/storage/postgres"
	"audittrail/pkg/logger"
)

// App holds the long-lived components.
type App struct {
	cfg     config.Config
	style   audit.NamingStyle
	pool    *postgres.Pool
	db      postgres.DB
	txm     *postgres.TxManager
	store   *postgres.AuditStore
	outbox  *postgres.OutboxPublisher
	service *auditing.Service
}

// New connects to the database and builds the pipeline.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := postgres.NewPool(ctx, cfg.DBPool())
	if err != nil {
		return nil, err
	}
	a, err := NewWithDB(cfg, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	a.pool = pool
	return a, nil
}

// NewWithDB builds the pipeline over an existing connection.
func NewWithDB(cfg config.Config, db postgres.DB) (*App, error) {
	txm := postgres.NewTxManager(db)

	store, err := postgres.NewAuditStore(txm,
		postgres.WithAuditTable(cfg.Audit.Table),
		postgres.WithCompressThreshold(cfg.Audit.CompressThreshold),
	)
	if err != nil {
		return nil, err
	}

	opts := []capture.Option{capture.WithSkipTables(cfg.Audit.Table)}
	if cfg.Audit.Filter != "" {
		filter, err := capture.NewCELFilter(cfg.Audit.Filter)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("AUDIT_FILTER: %w", err)
		}
		opts = append(opts, capture.WithFilter(filter))
	}

	outbox := postgres.NewOutboxPublisher(txm)
	service := auditing.NewService(capture.NewEngine(opts...), store, auditing.WithPublisher(outbox))

	return &App{
		cfg:     cfg,
		style:   cfg.NamingStyle(),
		db:      db,
		txm:     txm,
		store:   store,
		outbox:  outbox,
		service: service,
	}, nil
}

func (a *App) AuditStore() *postgres.AuditStore { return a.store }
func (a *App) Service() *auditing.Service       { return a.service }

// NewSession returns an empty tracked working set.
func (a *App) NewSession() *postgres.Session {
	return postgres.NewSession(a.txm)
}

// NewUnitOfWork returns a unit in the configured transaction mode.
func (a *App) NewUnitOfWork() *postgres.UnitOfWork {
	return postgres.NewUnitOfWork(a.db, a.cfg.Audit.ExplicitTx, a.cfg.TxOptions())
}

// Save runs stage against a fresh session inside one unit of work, then
// saves it with audit and commits. actingUser may be nil.
func (a *App) Save(ctx context.Context, actingUser *string, stage func(ctx context.Context, s *postgres.Session) error) (int64, error) {
	uow := a.NewUnitOfWork()
	defer func() {
		if err := uow.Close(ctx); err != nil {
			logger.Error(ctx, "close unit of work", "error", err)
		}
	}()

	ctx, err := uow.Begin(ctx)
	if err != nil {
		return 0, err
	}

	session := a.NewSession()
	if err := stage(ctx, session); err != nil {
		return 0, err
	}

	rows, err := a.service.SaveWithAudit(ctx, session, actingUser, a.style)
	if err != nil {
		return 0, err
	}
	if err := uow.Commit(ctx); err != nil {
		return 0, err
	}
	return rows, nil
}

// Migrate creates the audit and outbox tables.
func (a *App) Migrate(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return err
	}
	return a.outbox.Migrate(ctx)
}

// Close releases the pool when New opened it.
func (a *App) Close() {
	a.store.Close()
	if a.pool != nil {
		postgres.LogPoolStats(context.Background(), a.pool)
		a.pool.Close()
	}
}
