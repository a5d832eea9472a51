// Package tx provides transaction management abstractions.
// Domain code depends on these interfaces; the pgx implementation lives in
// infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs a function inside a database transaction.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// UnitOfWork is an explicit transaction boundary owned by a single caller.
//
// In explicit mode Begin opens a transaction and returns a context bound to
// it, so every writer using that context joins the transaction. Commit and
// Rollback end it; calling either without Begin, or after the transaction
// already ended, is misuse and fails. Close is idempotent and rolls back a
// transaction that is still open.
//
// In ambient mode all four methods are no-ops and never fail.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}
