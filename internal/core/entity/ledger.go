// Package entity provides core domain entities.
package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"magazzino/internal/core/id"
	"magazzino/internal/core/types"
)

// RecordType defines movement direction in the ledger.
type RecordType string

const (
	// RecordTypeReceipt increases on-hand quantity (carico)
	RecordTypeReceipt RecordType = "receipt"
	// RecordTypeExpense decreases on-hand quantity (scarico)
	RecordTypeExpense RecordType = "expense"
)

// SourceDocument references the external document that produced a movement.
// The producing workflow (orders, invoices) lives outside this system.
type SourceDocument struct {
	Type string `db:"source_document_type" json:"type"`
	ID   string `db:"source_document_id" json:"id"`
}

// Movement is one append-only ledger entry representing a stock-affecting event.
// Movements are immutable once persisted: corrections are recorded as new
// movements with an offsetting reason, never as edits.
type Movement struct {
	// ID is the public identifier (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Seq is the DB-assigned monotonic ledger position (BIGINT identity).
	// Never reused; history is ordered by seq descending.
	Seq int64 `db:"seq" json:"seq"`

	// Number is the human-readable document number (e.g. MOV-2026-00001)
	Number string `db:"number" json:"number"`

	ProductID   id.ID `db:"product_id" json:"productId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	// ReasonCode identifies the movement reason from the catalog
	ReasonCode string `db:"reason_code" json:"reasonCode"`

	// RecordType: receipt or expense, derived from the reason's sign
	// (for transfers, from the leg)
	RecordType RecordType `db:"record_type" json:"recordType"`

	// Quantity is always strictly positive; the effective signed delta
	// is SignedQuantity()
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// UnitCost is the cost applied by this movement: the caller-supplied cost
	// for costed receipts, the running average at issue time for expenses.
	// Null when no cost basis exists.
	UnitCost decimal.NullDecimal `db:"unit_cost" json:"unitCost"`

	// TotalCost = quantity × unit cost, derived at append time
	TotalCost decimal.NullDecimal `db:"total_cost" json:"totalCost"`

	// LotID references the lot credited or drawn by this movement
	LotID *id.ID `db:"lot_id" json:"lotId,omitempty"`

	// TransferID links the two legs of a warehouse transfer
	TransferID *id.ID `db:"transfer_id" json:"transferId,omitempty"`

	// DestinationWarehouseID is set on transfer-outbound legs only,
	// identifying where the paired receipt landed
	DestinationWarehouseID *id.ID `db:"destination_warehouse_id" json:"destinationWarehouseId,omitempty"`

	// Source document reference (required by some reasons)
	SourceDocumentType *string `db:"source_document_type" json:"sourceDocumentType,omitempty"`
	SourceDocumentID   *string `db:"source_document_id" json:"sourceDocumentId,omitempty"`

	// OccurredAt is the business date of the event
	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`

	// CreatedAt is when the ledger recorded the event
	CreatedAt time.Time `db:"created_at" json:"createdAt"`

	CreatedBy string `db:"created_by" json:"createdBy,omitempty"`

	Note string `db:"note" json:"note,omitempty"`
}

// NewMovement creates a movement with generated ID and creation timestamp.
// Seq and Number are assigned at persist time.
func NewMovement(productID, warehouseID id.ID, reasonCode string, recordType RecordType, quantity types.Quantity, occurredAt time.Time) *Movement {
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return &Movement{
		ID:          id.New(),
		ProductID:   productID,
		WarehouseID: warehouseID,
		ReasonCode:  reasonCode,
		RecordType:  recordType,
		Quantity:    quantity,
		OccurredAt:  occurredAt,
		CreatedAt:   time.Now().UTC(),
	}
}

// SignedQuantity returns quantity with sign based on record type.
// Receipt = positive, Expense = negative.
func (m *Movement) SignedQuantity() types.Quantity {
	if m.RecordType == RecordTypeExpense {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// IsTransferLeg reports whether this movement belongs to a transfer pair.
func (m *Movement) IsTransferLeg() bool {
	return m.TransferID != nil
}

// SourceDocument returns the source document reference, if present.
func (m *Movement) SourceDocument() *SourceDocument {
	if m.SourceDocumentType == nil || m.SourceDocumentID == nil {
		return nil
	}
	return &SourceDocument{Type: *m.SourceDocumentType, ID: *m.SourceDocumentID}
}

// StockBalance is the authoritative running quantity and weighted-average
// cost per (product, warehouse). Mutated only inside ledger transactions,
// always rebuildable by replaying movements.
type StockBalance struct {
	// Dimensions
	ProductID   id.ID `db:"product_id" json:"productId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	// Resources
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// AverageCost is null until a cost basis exists; retained when quantity
	// returns to zero so the basis survives a stockout.
	AverageCost decimal.NullDecimal `db:"average_cost" json:"averageCost"`

	// Metadata
	LastMovementSeq int64     `db:"last_movement_seq" json:"lastMovementSeq"`
	LastMovementAt  time.Time `db:"last_movement_at" json:"lastMovementAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// Value returns quantity × average cost, zero when no cost basis exists.
func (b *StockBalance) Value() decimal.Decimal {
	if !b.AverageCost.Valid {
		return decimal.Zero
	}
	return b.Quantity.Decimal().Mul(b.AverageCost.Decimal)
}

// Lot is a tracked sub-quantity of a product with its own residual balance
// and cost. Lots are never deleted; exhausted lots remain for traceability.
type Lot struct {
	ID id.ID `db:"id" json:"id"`

	ProductID   id.ID `db:"product_id" json:"productId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	// Code is the batch identifier (supplier lot number, production batch)
	Code string `db:"code" json:"code"`

	// InitialQuantity is fixed at creation; residual only ever decreases.
	// Invariant: 0 <= residual <= initial.
	InitialQuantity  types.Quantity `db:"initial_quantity" json:"initialQuantity"`
	ResidualQuantity types.Quantity `db:"residual_quantity" json:"residualQuantity"`

	UnitCost decimal.Decimal `db:"unit_cost" json:"unitCost"`

	ProducedAt *time.Time `db:"produced_at" json:"producedAt,omitempty"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expiresAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewLot creates a lot with residual equal to the initial quantity.
func NewLot(productID, warehouseID id.ID, code string, quantity types.Quantity, unitCost decimal.Decimal) *Lot {
	return &Lot{
		ID:               id.New(),
		ProductID:        productID,
		WarehouseID:      warehouseID,
		Code:             code,
		InitialQuantity:  quantity,
		ResidualQuantity: quantity,
		UnitCost:         unitCost,
		CreatedAt:        time.Now().UTC(),
	}
}

// IsExhausted reports whether the lot has no residual quantity left.
func (l *Lot) IsExhausted() bool {
	return l.ResidualQuantity.IsZero()
}

// IsExpired reports whether the lot is past its expiry date.
func (l *Lot) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}
