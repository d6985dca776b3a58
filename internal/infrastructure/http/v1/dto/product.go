package dto

import (
	"magazzino/internal/core/entity"
	"magazzino/internal/core/types"
	"magazzino/internal/domain/catalogs/product"
)

// --- Request DTOs ---

// CreateProductRequest is the request body for creating a product.
type CreateProductRequest struct {
	Code         string            `json:"code"`
	Name         string            `json:"name" binding:"required"`
	Unit         string            `json:"unit" binding:"required"`
	Barcode      *string           `json:"barcode"`
	Description  *string           `json:"description"`
	ReorderPoint types.Quantity    `json:"reorderPoint"`
	MinimumStock types.Quantity    `json:"minimumStock"`
	TrackLots    bool              `json:"trackLots"`
	IsActive     *bool             `json:"isActive"`
	ParentID     *string           `json:"parentId"`
	IsFolder     bool              `json:"isFolder"`
	Attributes   entity.Attributes `json:"attributes"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateProductRequest) ToEntity() *product.Product {
	p := product.NewProduct(r.Code, r.Name, r.Unit)
	p.Barcode = r.Barcode
	p.Description = r.Description
	p.ReorderPoint = r.ReorderPoint
	p.MinimumStock = r.MinimumStock
	p.TrackLots = r.TrackLots
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	p.ParentID = r.ParentID
	p.IsFolder = r.IsFolder
	p.Attributes = r.Attributes
	return p
}

// UpdateProductRequest is the request body for updating a product.
// The derived quantityOnHand and averageCost fields are not accepted here;
// only the ledger writes them.
type UpdateProductRequest struct {
	Code         string            `json:"code"`
	Name         string            `json:"name" binding:"required"`
	Unit         string            `json:"unit" binding:"required"`
	Barcode      *string           `json:"barcode,omitempty"`
	Description  *string           `json:"description,omitempty"`
	ReorderPoint types.Quantity    `json:"reorderPoint"`
	MinimumStock types.Quantity    `json:"minimumStock"`
	TrackLots    bool              `json:"trackLots"`
	IsActive     bool              `json:"isActive"`
	ParentID     *string           `json:"parentId,omitempty"`
	IsFolder     bool              `json:"isFolder"`
	Attributes   entity.Attributes `json:"attributes"`
	Version      int               `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdateProductRequest) ApplyTo(p *product.Product) {
	p.Code = r.Code
	p.Name = r.Name
	p.Unit = r.Unit
	p.Barcode = r.Barcode
	p.Description = r.Description
	p.ReorderPoint = r.ReorderPoint
	p.MinimumStock = r.MinimumStock
	p.TrackLots = r.TrackLots
	p.IsActive = r.IsActive
	p.ParentID = r.ParentID
	p.IsFolder = r.IsFolder
	p.Attributes = r.Attributes
	p.Version = r.Version
}

// --- Response DTOs ---

// ProductResponse is the response body for a product.
type ProductResponse struct {
	ID             string            `json:"id"`
	Code           string            `json:"code"`
	Name           string            `json:"name"`
	Unit           string            `json:"unit"`
	Barcode        *string           `json:"barcode,omitempty"`
	Description    *string           `json:"description,omitempty"`
	ReorderPoint   types.Quantity    `json:"reorderPoint"`
	MinimumStock   types.Quantity    `json:"minimumStock"`
	TrackLots      bool              `json:"trackLots"`
	IsActive       bool              `json:"isActive"`
	QuantityOnHand types.Quantity    `json:"quantityOnHand"`
	AverageCost    *string           `json:"averageCost,omitempty"`
	StockValue     string            `json:"stockValue"`
	BelowReorder   bool              `json:"belowReorder"`
	ParentID       *string           `json:"parentId,omitempty"`
	IsFolder       bool              `json:"isFolder"`
	DeletionMark   bool              `json:"deletionMark"`
	Version        int               `json:"version"`
	Attributes     entity.Attributes `json:"attributes,omitempty"`
}

// FromProduct creates response DTO from domain entity.
func FromProduct(p *product.Product) *ProductResponse {
	resp := &ProductResponse{
		ID:             p.ID.String(),
		Code:           p.Code,
		Name:           p.Name,
		Unit:           p.Unit,
		Barcode:        p.Barcode,
		Description:    p.Description,
		ReorderPoint:   p.ReorderPoint,
		MinimumStock:   p.MinimumStock,
		TrackLots:      p.TrackLots,
		IsActive:       p.IsActive,
		QuantityOnHand: p.QuantityOnHand,
		StockValue:     p.StockValue().String(),
		BelowReorder:   p.IsBelowReorder(),
		ParentID:       p.ParentID,
		IsFolder:       p.IsFolder,
		DeletionMark:   p.DeletionMark,
		Version:        p.Version,
		Attributes:     p.Attributes,
	}
	if p.AverageCost.Valid {
		s := p.AverageCost.Decimal.String()
		resp.AverageCost = &s
	}
	return resp
}
