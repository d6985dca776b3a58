package warehouse

import (
	"context"

	"magazzino/internal/core/id"
	"magazzino/internal/domain"
)

// Repository defines the interface for Warehouse persistence.
type Repository interface {
	domain.CatalogRepository[*Warehouse]

	// GetForUpdate retrieves warehouse with row lock (for transactional updates).
	GetForUpdate(ctx context.Context, id id.ID) (*Warehouse, error)

	// ClearPrimary clears the primary flag on all warehouses (before setting a new one).
	ClearPrimary(ctx context.Context) error
}
