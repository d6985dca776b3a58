// Package ledger provides the append-only movement ledger: the system of
// record for every stock-affecting event, plus the valuation engine that
// keeps per-(product, warehouse) quantities and weighted-average costs
// consistent with it.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"magazzino/internal/core/id"
	"magazzino/internal/core/types"
)

// AppendRequest is the movement-request payload submitted by the
// order/invoice workflow (external to this system).
type AppendRequest struct {
	ProductID   id.ID
	WarehouseID id.ID
	ReasonCode  string

	// Quantity must be strictly positive; direction comes from the reason.
	Quantity types.Quantity

	// UnitCost is required for inbound reasons that update average cost and
	// must be absent for outbound reasons.
	UnitCost *decimal.Decimal

	// LotID draws an existing lot (outbound); LotCode creates one (inbound).
	LotID   *id.ID
	LotCode string

	// ExpiresAt optionally stamps the lot created by an inbound movement
	ExpiresAt *time.Time

	// DestinationWarehouseID is required for transfer reasons
	DestinationWarehouseID *id.ID

	SourceDocumentType string
	SourceDocumentID   string

	// OccurredAt is the business date; defaults to now
	OccurredAt time.Time

	Note string
}

// HasSourceDocument reports whether a source document reference is present.
func (r AppendRequest) HasSourceDocument() bool {
	return r.SourceDocumentType != "" && r.SourceDocumentID != ""
}

// TransferRequest moves stock between two warehouses as one atomic pair
// of ledger entries.
type TransferRequest struct {
	ProductID     id.ID
	OriginID      id.ID
	DestinationID id.ID
	Quantity      types.Quantity

	// UnitCost is only a fallback for when the origin has no cost basis;
	// the origin's current average always wins.
	UnitCost *decimal.Decimal

	// LotID optionally draws the origin leg from a specific lot
	LotID *id.ID

	SourceDocumentType string
	SourceDocumentID   string

	OccurredAt time.Time
	Note       string
}

// HistoryFilter selects a page of movement history for a product.
// Results are ordered by seq descending; After is the keyset cursor
// (return movements with seq < After).
type HistoryFilter struct {
	ProductID   id.ID
	WarehouseID *id.ID
	ReasonCode  string
	From        *time.Time
	To          *time.Time

	// After is the exclusive seq cursor from the previous page; zero means
	// start from the newest movement.
	After int64

	Limit int
}

// DefaultHistoryLimit bounds unpaginated history requests.
const DefaultHistoryLimit = 50
