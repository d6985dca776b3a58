package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"magazzino/internal/domain/catalogs/warehouse"
	"magazzino/internal/infrastructure/storage/postgres"
)

const warehouseTable = "cat_warehouses"

// WarehouseRepo implements warehouse.Repository.
type WarehouseRepo struct {
	*BaseCatalogRepo[*warehouse.Warehouse]
}

// NewWarehouseRepo creates a new warehouse repository.
func NewWarehouseRepo() *WarehouseRepo {
	return &WarehouseRepo{
		BaseCatalogRepo: NewBaseCatalogRepo[*warehouse.Warehouse](
			warehouseTable,
			postgres.ExtractDBColumns[warehouse.Warehouse](),
			func() *warehouse.Warehouse { return &warehouse.Warehouse{} },
		),
	}
}

// ClearPrimary clears the primary flag on all warehouses.
func (r *WarehouseRepo) ClearPrimary(ctx context.Context) error {
	q := r.Builder().
		Update(warehouseTable).
		Set("is_primary", false).
		Where(squirrel.Eq{"is_primary": true})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	_, err = querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("clear primary: %w", err)
	}

	return nil
}
