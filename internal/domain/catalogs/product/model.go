// Package product provides the Product catalog.
// Products carry the derived quantity-on-hand and average-cost caches
// maintained by the ledger; those two fields are never edited directly.
package product

import (
	"context"

	"github.com/shopspring/decimal"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/entity"
	"magazzino/internal/core/types"
)

// Product represents a stock-keeping item.
type Product struct {
	entity.Catalog

	// Barcode is the item barcode (EAN-13, etc.)
	Barcode *string `db:"barcode" json:"barcode,omitempty"`

	// Unit is the unit of measure (pcs, kg, l)
	Unit string `db:"unit" json:"unit"`

	// Description is a detailed description
	Description *string `db:"description" json:"description,omitempty"`

	// ReorderPoint triggers the below-reorder alert when
	// quantity_on_hand <= reorder_point. Zero disables alerting for
	// the product.
	ReorderPoint types.Quantity `db:"reorder_point" json:"reorderPoint"`

	// MinimumStock is the hard floor for planning reports
	MinimumStock types.Quantity `db:"minimum_stock" json:"minimumStock"`

	// TrackLots indicates if the item is tracked by batch/lot
	TrackLots bool `db:"track_lots" json:"trackLots"`

	// IsActive indicates if the product can appear on new movements
	IsActive bool `db:"is_active" json:"isActive"`

	// QuantityOnHand is the derived total across warehouses.
	// Mutated only by the ledger inside its transactions.
	QuantityOnHand types.Quantity `db:"quantity_on_hand" json:"quantityOnHand"`

	// AverageCost is the derived value-weighted average across warehouses.
	// Null until a cost basis exists.
	AverageCost decimal.NullDecimal `db:"average_cost" json:"averageCost"`
}

// NewProduct creates a new Product with required fields.
func NewProduct(code, name, unit string) *Product {
	return &Product{
		Catalog:  entity.NewCatalog(code, name),
		Unit:     unit,
		IsActive: true,
	}
}

// Validate implements entity.Validatable interface.
func (p *Product) Validate(ctx context.Context) error {
	if err := p.Catalog.Validate(ctx); err != nil {
		return err
	}

	if p.Unit == "" {
		return apperror.NewValidation("unit is required").
			WithDetail("field", "unit")
	}

	if p.ReorderPoint.IsNegative() {
		return apperror.NewValidation("reorder point cannot be negative").
			WithDetail("field", "reorderPoint")
	}

	if p.MinimumStock.IsNegative() {
		return apperror.NewValidation("minimum stock cannot be negative").
			WithDetail("field", "minimumStock")
	}

	return nil
}

// IsBelowReorder reports whether the cached on-hand quantity is at or
// below the reorder point.
func (p *Product) IsBelowReorder() bool {
	return p.QuantityOnHand <= p.ReorderPoint
}

// StockValue returns quantity_on_hand × average_cost, zero without a basis.
func (p *Product) StockValue() decimal.Decimal {
	if !p.AverageCost.Valid {
		return decimal.Zero
	}
	return p.QuantityOnHand.Decimal().Mul(p.AverageCost.Decimal)
}
