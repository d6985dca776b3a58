package views

import (
	"context"

	"magazzino/internal/core/id"
)

// Repository defines persistence for the aggregate stock view.
type Repository interface {
	// Upsert writes one view row (eager maintenance, inside the append tx).
	Upsert(ctx context.Context, row StockRow) error

	// RefreshAll recomputes the whole view from balances in one
	// transaction (idempotent DELETE + INSERT ... SELECT). Readers see the
	// pre- or post-refresh snapshot, never a mix.
	RefreshAll(ctx context.Context) error

	// RefreshProduct recomputes the view rows of a single product.
	RefreshProduct(ctx context.Context, productID id.ID) error

	// StockByWarehouse returns the per-warehouse rows for a product.
	StockByWarehouse(ctx context.Context, productID id.ID) ([]StockRow, error)

	// Valuation aggregates the view into per-product totals.
	Valuation(ctx context.Context) (ValuationReport, error)
}
