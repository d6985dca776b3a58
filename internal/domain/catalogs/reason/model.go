// Package reason provides the MovementReason catalog.
// Reasons fix a movement's direction and behavioral flags; every ledger
// entry references exactly one reason.
package reason

import (
	"context"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/entity"
)

// Kind defines the movement category a reason belongs to.
type Kind string

const (
	KindInbound  Kind = "inbound"  // carico
	KindOutbound Kind = "outbound" // scarico
	KindTransfer Kind = "transfer" // trasferimento
)

// System reason codes seeded into every tenant database.
const (
	CodePurchase           = "PURCHASE"
	CodeSale               = "SALE"
	CodeCustomerReturn     = "CUSTOMER_RETURN"
	CodeSupplierReturn     = "SUPPLIER_RETURN"
	CodeTransfer           = "TRANSFER"
	CodeAdjustmentIncrease = "ADJ_INCREASE"
	CodeAdjustmentDecrease = "ADJ_DECREASE"
	CodeOpeningBalance     = "OPENING_BALANCE"
)

// MovementReason is a catalog entry fixing a movement's sign and flags.
// Sign and kind are immutable once the reason has been referenced by any
// movement; changing them retroactively would corrupt historical valuation.
type MovementReason struct {
	entity.Catalog

	// Kind: inbound, outbound, or transfer
	Kind Kind `db:"kind" json:"kind"`

	// Sign is +1 for inbound, -1 for outbound and transfer (the origin leg).
	// Fixed by kind, stored for direct use in replay queries.
	Sign int `db:"sign" json:"sign"`

	// UpdatesAverageCost: inbound reasons that recost require a unit cost
	// and blend it into the running average
	UpdatesAverageCost bool `db:"updates_average_cost" json:"updatesAverageCost"`

	// RequiresSourceDocument: appends without a source document reference
	// are rejected
	RequiresSourceDocument bool `db:"requires_source_document" json:"requiresSourceDocument"`

	// AllowNegativeStock permits outbound movements to drive on-hand
	// quantity below zero (back-ordered sales). OR'ed with the warehouse
	// flag at append time.
	AllowNegativeStock bool `db:"allow_negative_stock" json:"allowNegativeStock"`

	// IsSystem marks seeded reasons that reject mutation
	IsSystem bool `db:"is_system" json:"isSystem"`

	// IsActive: inactive reasons still resolve for history display but
	// are rejected for new appends
	IsActive bool `db:"is_active" json:"isActive"`
}

// SignForKind returns the ledger sign fixed by the reason kind.
func SignForKind(k Kind) int {
	if k == KindInbound {
		return 1
	}
	return -1
}

// NewMovementReason creates a reason with the sign derived from its kind.
func NewMovementReason(code, name string, kind Kind) *MovementReason {
	return &MovementReason{
		Catalog:  entity.NewCatalog(code, name),
		Kind:     kind,
		Sign:     SignForKind(kind),
		IsActive: true,
	}
}

// Validate implements entity.Validatable interface.
func (r *MovementReason) Validate(ctx context.Context) error {
	if err := r.Catalog.Validate(ctx); err != nil {
		return err
	}

	if !isValidKind(r.Kind) {
		return apperror.NewValidation("invalid reason kind").
			WithDetail("field", "kind").
			WithDetail("value", string(r.Kind))
	}

	if r.Sign != SignForKind(r.Kind) {
		return apperror.NewValidation("sign does not match kind").
			WithDetail("field", "sign").
			WithDetail("kind", string(r.Kind))
	}

	if r.Kind != KindInbound && r.UpdatesAverageCost {
		return apperror.NewValidation("only inbound reasons may update average cost").
			WithDetail("field", "updatesAverageCost")
	}

	return nil
}

// CanAppend reports whether new movements may reference this reason.
func (r *MovementReason) CanAppend() bool {
	return r.IsActive && !r.DeletionMark
}

// RecordType returns the ledger direction for a non-transfer reason.
func (r *MovementReason) RecordType() entity.RecordType {
	if r.Kind == KindInbound {
		return entity.RecordTypeReceipt
	}
	return entity.RecordTypeExpense
}

func isValidKind(k Kind) bool {
	switch k {
	case KindInbound, KindOutbound, KindTransfer:
		return true
	}
	return false
}
