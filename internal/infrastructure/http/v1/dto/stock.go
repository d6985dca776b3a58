package dto

import (
	"time"

	"magazzino/internal/domain/views"
)

// --- Response DTOs for the aggregate stock view ---

// StockRowResponse is one (product, warehouse) view row.
type StockRowResponse struct {
	ProductID   string `json:"productId"`
	ProductCode string `json:"productCode"`
	ProductName string `json:"productName"`

	WarehouseID   string `json:"warehouseId"`
	WarehouseName string `json:"warehouseName"`

	Quantity    string  `json:"quantity"`
	AverageCost *string `json:"averageCost,omitempty"`
	Value       string  `json:"value"`

	RefreshedAt time.Time `json:"refreshedAt"`
}

// FromStockRow converts a view row to response DTO.
func FromStockRow(row views.StockRow) StockRowResponse {
	resp := StockRowResponse{
		ProductID:     row.ProductID.String(),
		ProductCode:   row.ProductCode,
		ProductName:   row.ProductName,
		WarehouseID:   row.WarehouseID.String(),
		WarehouseName: row.WarehouseName,
		Quantity:      row.Quantity.String(),
		Value:         row.Value.String(),
		RefreshedAt:   row.RefreshedAt,
	}
	if row.AverageCost.Valid {
		s := row.AverageCost.Decimal.String()
		resp.AverageCost = &s
	}
	return resp
}

// StockByWarehouseResponse lists a product's stock across warehouses.
type StockByWarehouseResponse struct {
	ProductID string             `json:"productId"`
	Items     []StockRowResponse `json:"items"`
}

// ValuationRowResponse is one product total in the valuation report.
type ValuationRowResponse struct {
	ProductID   string  `json:"productId"`
	ProductCode string  `json:"productCode"`
	ProductName string  `json:"productName"`
	Quantity    string  `json:"quantity"`
	AverageCost *string `json:"averageCost,omitempty"`
	Value       string  `json:"value"`
}

// ValuationResponse is the full stock valuation report.
type ValuationResponse struct {
	Rows       []ValuationRowResponse `json:"rows"`
	TotalValue string                 `json:"totalValue"`
	AsOf       time.Time              `json:"asOf"`
}

// FromValuation converts a domain valuation report to response DTO.
func FromValuation(report views.ValuationReport) ValuationResponse {
	resp := ValuationResponse{
		Rows:       make([]ValuationRowResponse, len(report.Rows)),
		TotalValue: report.TotalValue.String(),
		AsOf:       report.AsOf,
	}
	for i, row := range report.Rows {
		r := ValuationRowResponse{
			ProductID:   row.ProductID.String(),
			ProductCode: row.ProductCode,
			ProductName: row.ProductName,
			Quantity:    row.Quantity.String(),
			Value:       row.Value.String(),
		}
		if row.AverageCost.Valid {
			s := row.AverageCost.Decimal.String()
			r.AverageCost = &s
		}
		resp.Rows[i] = r
	}
	return resp
}

// StockAlertsResponse lists products at or below their reorder point.
type StockAlertsResponse struct {
	Items      []*ProductResponse `json:"items"`
	TotalCount int64              `json:"totalCount"`
}
