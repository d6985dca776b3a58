package views

import (
	"context"
	"time"

	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
	"magazzino/internal/domain"
	"magazzino/internal/domain/catalogs/product"
	"magazzino/internal/domain/catalogs/warehouse"
	"magazzino/pkg/logger"
)

// ProductFinder lists products for the shortage alert.
type ProductFinder interface {
	FindBelowReorder(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*product.Product], error)
}

// Service answers the read contracts over the aggregate views and keeps
// them maintained in the configured mode.
type Service struct {
	repo     Repository
	products ProductFinder
	mode     RefreshMode
}

// NewService creates the views service.
func NewService(repo Repository, products ProductFinder, mode RefreshMode) *Service {
	return &Service{
		repo:     repo,
		products: products,
		mode:     mode,
	}
}

// Mode returns the configured refresh mode.
func (s *Service) Mode() RefreshMode {
	return s.mode
}

// ApplyMovement implements eager maintenance: upsert the affected view row
// inside the ledger's append transaction. No-op in lazy mode. The product
// and warehouse supply the denormalized names; leaving them blank would
// let the upsert clobber names an earlier refresh filled in.
func (s *Service) ApplyMovement(ctx context.Context, m *entity.Movement, b *entity.StockBalance, p *product.Product, wh *warehouse.Warehouse) error {
	if s.mode != RefreshEager {
		return nil
	}
	return s.repo.Upsert(ctx, StockRow{
		ProductID:     b.ProductID,
		ProductCode:   p.Code,
		ProductName:   p.Name,
		WarehouseID:   b.WarehouseID,
		WarehouseName: wh.Name,
		Quantity:      b.Quantity,
		AverageCost:   b.AverageCost,
		Value:         b.Value(),
		RefreshedAt:   time.Now().UTC(),
	})
}

// Refresh recomputes the whole view. Idempotent and safe to run
// concurrently with appends. Failures are logged by the caller, never
// propagated into the ledger.
func (s *Service) Refresh(ctx context.Context) error {
	start := time.Now()
	if err := s.repo.RefreshAll(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "stock view refreshed", "took", time.Since(start))
	return nil
}

// RefreshProduct recomputes the view rows of one product. Used by the
// outbox relay after a movement event in lazy mode.
func (s *Service) RefreshProduct(ctx context.Context, productID id.ID) error {
	return s.repo.RefreshProduct(ctx, productID)
}

// StockByWarehouse returns per-warehouse quantity and value for a product.
func (s *Service) StockByWarehouse(ctx context.Context, productID id.ID) ([]StockRow, error) {
	return s.repo.StockByWarehouse(ctx, productID)
}

// BelowReorder lists products with quantity_on_hand <= reorder_point.
func (s *Service) BelowReorder(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*product.Product], error) {
	return s.products.FindBelowReorder(ctx, filter)
}

// Valuation returns the total stock valuation per product.
func (s *Service) Valuation(ctx context.Context) (ValuationReport, error) {
	return s.repo.Valuation(ctx)
}
