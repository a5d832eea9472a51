package postgres

import (
	"context"
	"sync"

	"audittrail/internal/core/apperror"
	"audittrail/internal/core/tx"
	"audittrail/pkg/logger"
)

var _ tx.UnitOfWork = (*UnitOfWork)(nil)

type uowState int

const (
	uowIdle uowState = iota
	uowBegan
	uowCommitted
	uowRolledBack
)

func (s uowState) String() string {
	switch s {
	case uowIdle:
		return "idle"
	case uowBegan:
		return "began"
	case uowCommitted:
		return "committed"
	case uowRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// UnitOfWork owns one explicit transaction for its lifetime. With explicit
// set to false it relies on whatever transaction the caller already has and
// every method is a no-op.
type UnitOfWork struct {
	db       DB
	explicit bool
	opts     TxOptions

	mu    sync.Mutex
	state uowState
	tx    *Tx
}

func NewUnitOfWork(db DB, explicit bool, opts TxOptions) *UnitOfWork {
	return &UnitOfWork{db: db, explicit: explicit, opts: opts}
}

// Explicit reports whether the unit opens its own transaction.
func (u *UnitOfWork) Explicit() bool { return u.explicit }

// Begin opens the transaction and returns ctx bound to it.
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if !u.explicit {
		return ctx, nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != uowIdle {
		return ctx, apperror.NewUnitOfWork("begin", u.state.String())
	}

	pgxTx, err := beginTx(ctx, u.db, u.opts)
	if err != nil {
		return ctx, apperror.NewDatabase("begin unit of work", err)
	}

	u.tx = &Tx{Tx: pgxTx, explicit: true}
	u.state = uowBegan
	logger.Debug(ctx, "unit of work began")
	return withTx(ctx, u.tx), nil
}

// Commit commits and clears the transaction handle.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if !u.explicit {
		return nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != uowBegan {
		return apperror.NewUnitOfWork("commit", u.state.String())
	}

	t := u.tx
	u.tx = nil
	if err := t.Commit(ctx); err != nil {
		// pgx closes the transaction on a failed commit
		u.state = uowRolledBack
		return apperror.NewDatabase("commit unit of work", err)
	}
	u.state = uowCommitted
	return nil
}

// Rollback aborts and clears the transaction handle.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if !u.explicit {
		return nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != uowBegan {
		return apperror.NewUnitOfWork("rollback", u.state.String())
	}

	t := u.tx
	u.tx = nil
	u.state = uowRolledBack
	if err := t.Rollback(context.WithoutCancel(ctx)); err != nil {
		return apperror.NewDatabase("rollback unit of work", err)
	}
	return nil
}

// Close rolls back a transaction that was begun but never finished. It may be
// deferred right after construction and called any number of times.
func (u *UnitOfWork) Close(ctx context.Context) error {
	if !u.explicit {
		return nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.tx == nil {
		return nil
	}

	t := u.tx
	u.tx = nil
	u.state = uowRolledBack
	if err := t.Rollback(context.Background()); err != nil {
		logger.Error(ctx, "unit of work rollback on close failed", "error", err)
		return apperror.NewDatabase("rollback unit of work", err)
	}
	logger.Debug(ctx, "unit of work rolled back on close")
	return nil
}
