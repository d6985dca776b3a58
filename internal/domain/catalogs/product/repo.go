package product

import (
	"context"

	"magazzino/internal/core/id"
	"magazzino/internal/domain"
)

// Repository defines the interface for Product persistence.
// The derived quantity_on_hand and average_cost columns have no direct
// write path here; the ledger repository refreshes them inside its own
// transactions.
type Repository interface {
	domain.CatalogRepository[*Product]

	// FindByBarcode retrieves a product by barcode.
	FindByBarcode(ctx context.Context, barcode string) (*Product, error)

	// GetForUpdate retrieves a product with row lock.
	GetForUpdate(ctx context.Context, id id.ID) (*Product, error)

	// FindBelowReorder retrieves products with quantity_on_hand <=
	// reorder_point. Products with a zero reorder point are excluded;
	// zero means alerting is off, not "alert when empty".
	FindBelowReorder(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Product], error)
}
