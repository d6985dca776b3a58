package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"magazzino/internal/core/types"
)

func qty(t *testing.T, s string) types.Quantity {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad quantity %q: %v", s, err)
	}
	return types.NewQuantityFromDecimal(d)
}

func cost(t *testing.T, s string) decimal.NullDecimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad cost %q: %v", s, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func assertAvg(t *testing.T, state CostState, want string) {
	t.Helper()
	if !state.AverageCost.Valid {
		t.Fatalf("expected average cost %s, got none", want)
	}
	if !state.AverageCost.Decimal.Equal(decimal.RequireFromString(want)) {
		t.Errorf("average cost = %s, want %s", state.AverageCost.Decimal, want)
	}
}

func TestCostState_FirstReceiptSetsAverage(t *testing.T) {
	var state CostState

	state, total := state.Receive(qty(t, "100"), cost(t, "30"))

	if got := state.Quantity; got != qty(t, "100") {
		t.Errorf("quantity = %s, want 100", got)
	}
	assertAvg(t, state, "30")
	if !total.Valid || !total.Decimal.Equal(decimal.RequireFromString("3000")) {
		t.Errorf("total cost = %v, want 3000", total)
	}
}

func TestCostState_ReceiveBlendsWeightedAverage(t *testing.T) {
	tests := []struct {
		name     string
		startQty string
		startAvg string
		delta    string
		unitCost string
		wantQty  string
		wantAvg  string
	}{
		{"equal quantities", "10", "10", "10", "20", "20", "15"},
		{"weighted toward stock", "30", "10", "10", "20", "40", "12.5"},
		{"repeating decimal rounds at 6", "1", "1", "2", "2", "3", "1.666667"},
		{"same cost keeps average", "50", "30", "25", "30", "75", "30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := CostState{
				Quantity:    qty(t, tt.startQty),
				AverageCost: cost(t, tt.startAvg),
			}

			state, _ = state.Receive(qty(t, tt.delta), cost(t, tt.unitCost))

			if got := state.Quantity; got != qty(t, tt.wantQty) {
				t.Errorf("quantity = %s, want %s", got, tt.wantQty)
			}
			assertAvg(t, state, tt.wantAvg)
		})
	}
}

func TestCostState_UncostedReceiveMovesQuantityOnly(t *testing.T) {
	state := CostState{Quantity: qty(t, "10"), AverageCost: cost(t, "30")}

	state, total := state.Receive(qty(t, "5"), decimal.NullDecimal{})

	if got := state.Quantity; got != qty(t, "15") {
		t.Errorf("quantity = %s, want 15", got)
	}
	assertAvg(t, state, "30")
	if total.Valid {
		t.Errorf("uncosted receipt produced total cost %s", total.Decimal)
	}
}

func TestCostState_ReceiveIntoNonPositiveStockResetsAverage(t *testing.T) {
	tests := []struct {
		name     string
		startQty string
	}{
		{"zero stock", "0"},
		{"negative stock", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := CostState{
				Quantity:    qty(t, tt.startQty),
				AverageCost: cost(t, "10"),
			}

			state, _ = state.Receive(qty(t, "20"), cost(t, "40"))

			// The stale average is not blendable; the incoming cost wins.
			assertAvg(t, state, "40")
		})
	}
}

func TestCostState_IssueKeepsAverage(t *testing.T) {
	state := CostState{Quantity: qty(t, "100"), AverageCost: cost(t, "30")}

	state, total := state.Issue(qty(t, "30"))

	if got := state.Quantity; got != qty(t, "70") {
		t.Errorf("quantity = %s, want 70", got)
	}
	assertAvg(t, state, "30")
	if !total.Valid || !total.Decimal.Equal(decimal.RequireFromString("900")) {
		t.Errorf("value removed = %v, want 900", total)
	}
}

func TestCostState_IssueBelowZeroKeepsAverage(t *testing.T) {
	state := CostState{Quantity: qty(t, "10"), AverageCost: cost(t, "30")}

	state, _ = state.Issue(qty(t, "25"))

	if got := state.Quantity; got != qty(t, "-15") {
		t.Errorf("quantity = %s, want -15", got)
	}
	// Outbound never touches the cost basis, even through zero.
	assertAvg(t, state, "30")
}

func TestCostState_IssueWithoutBasis(t *testing.T) {
	state := CostState{Quantity: qty(t, "10")}

	state, total := state.Issue(qty(t, "3"))

	if got := state.Quantity; got != qty(t, "7") {
		t.Errorf("quantity = %s, want 7", got)
	}
	if state.AverageCost.Valid {
		t.Errorf("issue created a cost basis: %s", state.AverageCost.Decimal)
	}
	if total.Valid {
		t.Errorf("issue without basis produced total cost %s", total.Decimal)
	}
}

func TestCostState_BasisSurvivesStockout(t *testing.T) {
	var state CostState
	state, _ = state.Receive(qty(t, "10"), cost(t, "12"))
	state, _ = state.Issue(qty(t, "10"))

	if !state.Quantity.IsZero() {
		t.Fatalf("quantity = %s, want 0", state.Quantity)
	}
	if !state.HasCostBasis() {
		t.Fatal("cost basis cleared by stockout")
	}
	assertAvg(t, state, "12")
}

// Inbound/outbound/transfer flow: a purchase of 100 at cost 30, a sale of
// 30, then a transfer of 20 to a second warehouse at the origin average.
func TestCostState_ReceiptIssueTransferFlow(t *testing.T) {
	var origin CostState

	origin, _ = origin.Receive(qty(t, "100"), cost(t, "30"))
	if got := origin.Quantity; got != qty(t, "100") {
		t.Fatalf("after receipt: quantity = %s, want 100", got)
	}
	assertAvg(t, origin, "30")

	origin, removed := origin.Issue(qty(t, "30"))
	if got := origin.Quantity; got != qty(t, "70") {
		t.Fatalf("after sale: quantity = %s, want 70", got)
	}
	assertAvg(t, origin, "30")
	if !removed.Decimal.Equal(decimal.RequireFromString("900")) {
		t.Errorf("value removed by sale = %s, want 900", removed.Decimal)
	}

	// Transfer: expense at the origin, receipt at the destination
	// carrying the origin's average.
	origin, _ = origin.Issue(qty(t, "20"))
	var dest CostState
	dest, _ = dest.Receive(qty(t, "20"), origin.AverageCost)

	if got := origin.Quantity; got != qty(t, "50") {
		t.Errorf("origin quantity = %s, want 50", got)
	}
	if got := dest.Quantity; got != qty(t, "20") {
		t.Errorf("destination quantity = %s, want 20", got)
	}
	assertAvg(t, dest, "30")
	if !dest.Value().Equal(decimal.RequireFromString("600")) {
		t.Errorf("destination value = %s, want 600", dest.Value())
	}
}

func TestCostState_Value(t *testing.T) {
	state := CostState{Quantity: qty(t, "70"), AverageCost: cost(t, "30")}
	if !state.Value().Equal(decimal.RequireFromString("2100")) {
		t.Errorf("value = %s, want 2100", state.Value())
	}

	noBasis := CostState{Quantity: qty(t, "70")}
	if !noBasis.Value().IsZero() {
		t.Errorf("value without basis = %s, want 0", noBasis.Value())
	}
}

func TestReplay_MatchesIncrementalFold(t *testing.T) {
	entries := []ReplayEntry{
		{Receipt: true, Quantity: qty(t, "100"), UnitCost: cost(t, "30")},
		{Receipt: false, Quantity: qty(t, "30")},
		{Receipt: true, Quantity: qty(t, "50"), UnitCost: cost(t, "36")},
		{Receipt: false, Quantity: qty(t, "40")},
		{Receipt: true, Quantity: qty(t, "10"), UnitCost: decimal.NullDecimal{}},
		{Receipt: false, Quantity: qty(t, "90")},
		{Receipt: true, Quantity: qty(t, "25"), UnitCost: cost(t, "41.5")},
	}

	var incremental CostState
	for _, e := range entries {
		if e.Receipt {
			incremental, _ = incremental.Receive(e.Quantity, e.UnitCost)
		} else {
			incremental, _ = incremental.Issue(e.Quantity)
		}
	}

	replayed := Replay(entries)

	if replayed.Quantity != incremental.Quantity {
		t.Errorf("replay quantity = %s, incremental = %s", replayed.Quantity, incremental.Quantity)
	}
	if replayed.AverageCost.Valid != incremental.AverageCost.Valid {
		t.Fatalf("replay basis = %v, incremental = %v", replayed.AverageCost.Valid, incremental.AverageCost.Valid)
	}
	if replayed.AverageCost.Valid && !replayed.AverageCost.Decimal.Equal(incremental.AverageCost.Decimal) {
		t.Errorf("replay average = %s, incremental = %s", replayed.AverageCost.Decimal, incremental.AverageCost.Decimal)
	}
}

func TestReplay_EmptyHistory(t *testing.T) {
	state := Replay(nil)
	if !state.Quantity.IsZero() || state.AverageCost.Valid {
		t.Errorf("replay of empty history = %+v, want zero state", state)
	}
}
