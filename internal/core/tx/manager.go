// Package tx defines the transaction boundary used by domain services.
// Concrete pgx-backed implementations live in infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs a function inside a database transaction.
// The ledger relies on it for the append path: balance lock, movement
// insert, lot updates, view upserts and outbox writes commit together.
type Manager interface {
	// RunInTransaction executes fn within a transaction, committing on
	// nil error and rolling back otherwise. Nested calls reuse the
	// transaction already carried by ctx.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager adds read-only transactions for query paths.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction; writes fail.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
