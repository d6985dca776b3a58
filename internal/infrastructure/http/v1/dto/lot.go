package dto

import (
	"time"

	"magazzino/internal/core/entity"
	"magazzino/internal/core/types"
)

// LotResponse is the response body for a lot.
type LotResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	WarehouseID string `json:"warehouseId"`
	Code        string `json:"code"`

	InitialQuantity  types.Quantity `json:"initialQuantity"`
	ResidualQuantity types.Quantity `json:"residualQuantity"`
	UnitCost         string         `json:"unitCost"`

	Exhausted bool `json:"exhausted"`
	Expired   bool `json:"expired"`

	ProducedAt *time.Time `json:"producedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// FromLot creates response DTO from domain entity.
func FromLot(l *entity.Lot, now time.Time) *LotResponse {
	return &LotResponse{
		ID:               l.ID.String(),
		ProductID:        l.ProductID.String(),
		WarehouseID:      l.WarehouseID.String(),
		Code:             l.Code,
		InitialQuantity:  l.InitialQuantity,
		ResidualQuantity: l.ResidualQuantity,
		UnitCost:         l.UnitCost.String(),
		Exhausted:        l.IsExhausted(),
		Expired:          l.IsExpired(now),
		ProducedAt:       l.ProducedAt,
		ExpiresAt:        l.ExpiresAt,
		CreatedAt:        l.CreatedAt,
	}
}

// LotListResponse wraps a lot status listing.
type LotListResponse struct {
	Items []*LotResponse `json:"items"`
}

// FromLots creates a list response from lot entities.
func FromLots(items []*entity.Lot, now time.Time) *LotListResponse {
	resp := &LotListResponse{Items: make([]*LotResponse, len(items))}
	for i, l := range items {
		resp.Items[i] = FromLot(l, now)
	}
	return resp
}
