package ledger

import (
	"github.com/shopspring/decimal"

	"magazzino/internal/core/types"
)

// CostState is the running quantity and weighted-average cost of one
// (product, warehouse) pair. The zero value means "no stock, no cost basis".
//
// All arithmetic is decimal; floating point would drift across thousands
// of movements.
type CostState struct {
	Quantity    types.Quantity
	AverageCost decimal.NullDecimal
}

// HasCostBasis reports whether an average cost has ever been established.
// The basis survives a stockout: quantity returning to zero does not clear it.
func (s CostState) HasCostBasis() bool {
	return s.AverageCost.Valid
}

// Value returns quantity × average cost, zero without a basis.
func (s CostState) Value() decimal.Decimal {
	if !s.AverageCost.Valid {
		return decimal.Zero
	}
	return s.Quantity.Decimal().Mul(s.AverageCost.Decimal)
}

// Receive applies an inbound movement and returns the new state plus the
// movement's derived total cost.
//
// Costed receipt into existing stock blends by the moving weighted average:
//
//	new_avg = (old_qty × old_avg + delta × unit_cost) / new_qty
//
// The first costed receipt (or a receipt into zero/negative stock) sets the
// average directly. An uncosted receipt moves quantity only.
func (s CostState) Receive(delta types.Quantity, unitCost decimal.NullDecimal) (CostState, decimal.NullDecimal) {
	next := CostState{
		Quantity:    s.Quantity.Add(delta),
		AverageCost: s.AverageCost,
	}

	if !unitCost.Valid {
		return next, decimal.NullDecimal{}
	}

	totalCost := delta.Decimal().Mul(unitCost.Decimal)

	switch {
	case !s.AverageCost.Valid, s.Quantity.IsZero(), s.Quantity.IsNegative():
		// No blendable basis: the incoming cost becomes the average.
		next.AverageCost = decimal.NullDecimal{
			Decimal: types.RoundCost(unitCost.Decimal),
			Valid:   true,
		}
	default:
		oldValue := s.Quantity.Decimal().Mul(s.AverageCost.Decimal)
		newAvg := oldValue.Add(totalCost).
			DivRound(next.Quantity.Decimal(), types.CostScale)
		if newAvg.IsNegative() {
			newAvg = decimal.Zero
		}
		next.AverageCost = decimal.NullDecimal{Decimal: newAvg, Valid: true}
	}

	return next, decimal.NullDecimal{Decimal: totalCost, Valid: true}
}

// Issue applies an outbound movement. Quantity goes down, the average cost
// never changes (outbound never alters the cost basis, even at or below
// zero stock). The derived total cost is delta × current average, which is
// what reporting sees as the value removed from stock.
func (s CostState) Issue(delta types.Quantity) (CostState, decimal.NullDecimal) {
	next := CostState{
		Quantity:    s.Quantity.Sub(delta),
		AverageCost: s.AverageCost,
	}

	if !s.AverageCost.Valid {
		return next, decimal.NullDecimal{}
	}

	totalCost := delta.Decimal().Mul(s.AverageCost.Decimal)
	return next, decimal.NullDecimal{Decimal: totalCost, Valid: true}
}

// Replay folds a movement history into a CostState from scratch.
// Incremental maintenance must be provably equivalent to this function;
// the property tests exercise exactly that.
func Replay(movements []ReplayEntry) CostState {
	var state CostState
	for _, m := range movements {
		if m.Receipt {
			state, _ = state.Receive(m.Quantity, m.UnitCost)
		} else {
			state, _ = state.Issue(m.Quantity)
		}
	}
	return state
}

// ReplayEntry is the minimal movement projection needed to rebuild a balance.
type ReplayEntry struct {
	Receipt  bool
	Quantity types.Quantity
	UnitCost decimal.NullDecimal
}
