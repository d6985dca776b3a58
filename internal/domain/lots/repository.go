// Package lots provides the lot sub-ledger: per-lot residual quantities
// for batch traceability.
package lots

import (
	"context"
	"time"

	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
)

// Repository defines operations for lot persistence.
// Lots are never deleted; exhausted lots remain for traceability.
type Repository interface {
	// Create inserts a new lot.
	Create(ctx context.Context, lot *entity.Lot) error

	// GetByID retrieves a lot.
	GetByID(ctx context.Context, lotID id.ID) (*entity.Lot, error)

	// GetForUpdate retrieves a lot with a row lock. Concurrent draws against
	// the same lot serialize on this lock so residual never goes negative.
	GetForUpdate(ctx context.Context, lotID id.ID) (*entity.Lot, error)

	// UpdateResidual persists a new residual quantity.
	UpdateResidual(ctx context.Context, lotID id.ID, residual int64) error

	// ListByStock returns lots for a (product, warehouse) pair.
	ListByStock(ctx context.Context, productID, warehouseID id.ID, filter StatusFilter) ([]*entity.Lot, error)
}

// StatusFilter narrows lot status queries.
type StatusFilter struct {
	// IncludeExhausted includes lots with zero residual
	IncludeExhausted bool

	// ExpiringBefore returns only lots expiring before the given time
	ExpiringBefore *time.Time

	Limit  int
	Offset int
}
