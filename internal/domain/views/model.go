// Package views provides derived, refreshable projections of the movement
// ledger: stock by warehouse, total valuation, and shortage alerts. Nothing
// here is authoritative; every row is rebuildable from the ledger.
package views

import (
	"time"

	"github.com/shopspring/decimal"

	"magazzino/internal/core/id"
	"magazzino/internal/core/types"
)

// RefreshMode selects how the stock view tracks the ledger.
type RefreshMode string

const (
	// RefreshEager updates the view row synchronously inside the append
	// transaction. Simpler correctness, more write latency.
	RefreshEager RefreshMode = "eager"

	// RefreshLazy recomputes the view in the background (outbox relay and
	// periodic worker). Readers may see data as of the last refresh.
	RefreshLazy RefreshMode = "lazy"
)

// ParseRefreshMode maps a config string to a RefreshMode, defaulting to eager.
func ParseRefreshMode(s string) RefreshMode {
	if s == string(RefreshLazy) {
		return RefreshLazy
	}
	return RefreshEager
}

// StockRow is one (product, warehouse) projection row.
type StockRow struct {
	ProductID   id.ID  `db:"product_id" json:"productId"`
	ProductCode string `db:"product_code" json:"productCode"`
	ProductName string `db:"product_name" json:"productName"`

	WarehouseID   id.ID  `db:"warehouse_id" json:"warehouseId"`
	WarehouseName string `db:"warehouse_name" json:"warehouseName"`

	Quantity    types.Quantity      `db:"quantity" json:"quantity"`
	AverageCost decimal.NullDecimal `db:"average_cost" json:"averageCost"`
	Value       decimal.Decimal     `db:"value" json:"value"`

	RefreshedAt time.Time `db:"refreshed_at" json:"refreshedAt"`
}

// ValuationRow aggregates one product across warehouses.
type ValuationRow struct {
	ProductID   id.ID               `db:"product_id" json:"productId"`
	ProductCode string              `db:"product_code" json:"productCode"`
	ProductName string              `db:"product_name" json:"productName"`
	Quantity    types.Quantity      `db:"quantity" json:"quantity"`
	AverageCost decimal.NullDecimal `db:"average_cost" json:"averageCost"`
	Value       decimal.Decimal     `db:"value" json:"value"`
}

// ValuationReport is the full stock valuation.
type ValuationReport struct {
	Rows       []ValuationRow  `json:"rows"`
	TotalValue decimal.Decimal `json:"totalValue"`
	AsOf       time.Time       `json:"asOf"`
}
