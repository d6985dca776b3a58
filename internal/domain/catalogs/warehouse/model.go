// Package warehouse provides the Warehouse catalog.
// Warehouses represent physical locations holding stock.
package warehouse

import (
	"context"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/entity"
)

// WarehouseType defines the type of warehouse.
type WarehouseType string

const (
	TypeMain         WarehouseType = "main"
	TypeDistribution WarehouseType = "distribution"
	TypeRetail       WarehouseType = "retail"
	TypeProduction   WarehouseType = "production"
	TypeTransit      WarehouseType = "transit"
)

// Warehouse represents a storage location for goods.
type Warehouse struct {
	entity.Catalog

	// Type defines the warehouse category
	Type WarehouseType `db:"type" json:"type"`

	// Address is the physical address
	Address *string `db:"address" json:"address,omitempty"`

	// IsActive indicates if warehouse is operational. Deactivation is soft
	// state; a warehouse referenced by movement history is never removed.
	IsActive bool `db:"is_active" json:"isActive"`

	// IsPrimary marks the tenant's primary warehouse. At most one may be
	// primary; enforced at creation by clearing others, not recomputed.
	IsPrimary bool `db:"is_primary" json:"isPrimary"`

	// ManagesLocations indicates bin/location management inside the warehouse
	ManagesLocations bool `db:"manages_locations" json:"managesLocations"`

	// AllowNegativeStock permits outbound movements to drive on-hand
	// quantity below zero at this warehouse
	AllowNegativeStock bool `db:"allow_negative_stock" json:"allowNegativeStock"`

	// Description
	Description *string `db:"description" json:"description,omitempty"`
}

// NewWarehouse creates a new Warehouse with required fields.
func NewWarehouse(code, name string, whType WarehouseType) *Warehouse {
	return &Warehouse{
		Catalog:  entity.NewCatalog(code, name),
		Type:     whType,
		IsActive: true,
	}
}

// Validate implements entity.Validatable interface.
func (w *Warehouse) Validate(ctx context.Context) error {
	if err := w.Catalog.Validate(ctx); err != nil {
		return err
	}

	if !isValidWarehouseType(w.Type) {
		return apperror.NewValidation("invalid warehouse type").
			WithDetail("field", "type").
			WithDetail("value", string(w.Type))
	}

	return nil
}

// CanAcceptStock returns true if warehouse can accept stock.
func (w *Warehouse) CanAcceptStock() bool {
	return w.IsActive && !w.IsFolder
}

// CanIssueStock returns true if warehouse can issue stock.
func (w *Warehouse) CanIssueStock(negativeAllowed bool) bool {
	return w.IsActive && !w.IsFolder && (negativeAllowed || w.AllowNegativeStock)
}

func isValidWarehouseType(t WarehouseType) bool {
	switch t {
	case TypeMain, TypeDistribution, TypeRetail, TypeProduction, TypeTransit:
		return true
	}
	return false
}
