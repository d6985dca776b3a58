package lots

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
	"magazzino/internal/core/types"
	"magazzino/pkg/logger"
)

// Service maintains per-lot residual quantities. All mutating methods are
// called by the ledger inside its append transaction; they never open
// transactions of their own.
type Service struct {
	repo Repository
}

// NewService creates a new lot tracker service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreditRequest describes a new lot created by an inbound movement
// (or manually for pre-existing stock).
type CreditRequest struct {
	ProductID   id.ID
	WarehouseID id.ID
	Code        string
	Quantity    types.Quantity
	UnitCost    decimal.Decimal
	ProducedAt  *time.Time
	ExpiresAt   *time.Time
}

// Credit creates a new lot with residual equal to the initial quantity.
func (s *Service) Credit(ctx context.Context, req CreditRequest) (*entity.Lot, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperror.NewNonPositiveQuantity(req.Quantity.String())
	}
	if req.Code == "" {
		return nil, apperror.NewValidation("lot code is required").
			WithDetail("field", "code")
	}
	if req.UnitCost.IsNegative() {
		return nil, apperror.NewValidation("lot unit cost cannot be negative").
			WithDetail("field", "unitCost")
	}

	lot := entity.NewLot(req.ProductID, req.WarehouseID, req.Code, req.Quantity, req.UnitCost)
	lot.ProducedAt = req.ProducedAt
	lot.ExpiresAt = req.ExpiresAt

	if err := s.repo.Create(ctx, lot); err != nil {
		return nil, fmt.Errorf("create lot: %w", err)
	}

	logger.Info(ctx, "lot credited",
		"lot_id", lot.ID,
		"product_id", req.ProductID,
		"quantity", req.Quantity.String(),
	)

	return lot, nil
}

// Reserve decrements a lot's residual for an outbound movement. The lot is
// locked for the duration of the surrounding transaction; a rejected draw
// leaves the residual untouched.
func (s *Service) Reserve(ctx context.Context, lotID, productID, warehouseID id.ID, quantity types.Quantity) (*entity.Lot, error) {
	if !quantity.IsPositive() {
		return nil, apperror.NewNonPositiveQuantity(quantity.String())
	}

	lot, err := s.repo.GetForUpdate(ctx, lotID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewLotNotFound(lotID.String())
		}
		return nil, fmt.Errorf("lock lot: %w", err)
	}

	// The lot must belong to the movement's product and warehouse
	if lot.ProductID != productID || lot.WarehouseID != warehouseID {
		return nil, apperror.NewLotNotFound(lotID.String()).
			WithDetail("product_id", productID.String()).
			WithDetail("warehouse_id", warehouseID.String())
	}

	if lot.ResidualQuantity < quantity {
		return nil, apperror.NewLotExhausted(
			lotID.String(),
			quantity.String(),
			lot.ResidualQuantity.String(),
		)
	}

	lot.ResidualQuantity = lot.ResidualQuantity.Sub(quantity)
	if err := s.repo.UpdateResidual(ctx, lotID, lot.ResidualQuantity.Int64Scaled()); err != nil {
		return nil, fmt.Errorf("update lot residual: %w", err)
	}

	return lot, nil
}

// Status lists lots and residuals for a (product, warehouse) pair.
func (s *Service) Status(ctx context.Context, productID, warehouseID id.ID, filter StatusFilter) ([]*entity.Lot, error) {
	return s.repo.ListByStock(ctx, productID, warehouseID, filter)
}

// Get retrieves a single lot.
func (s *Service) Get(ctx context.Context, lotID id.ID) (*entity.Lot, error) {
	lot, err := s.repo.GetByID(ctx, lotID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewLotNotFound(lotID.String())
		}
		return nil, err
	}
	return lot, nil
}
