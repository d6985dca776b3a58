package reason

import (
	"context"
	"testing"

	"magazzino/internal/core/entity"
)

func TestSignForKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindInbound, 1},
		{KindOutbound, -1},
		{KindTransfer, -1},
	}
	for _, tt := range tests {
		if got := SignForKind(tt.kind); got != tt.want {
			t.Errorf("SignForKind(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestNewMovementReason(t *testing.T) {
	r := NewMovementReason("SCRAP", "Scrap write-off", KindOutbound)

	if r.Sign != -1 {
		t.Errorf("sign = %d, want -1", r.Sign)
	}
	if !r.IsActive {
		t.Error("new reason is not active")
	}
	if r.IsSystem {
		t.Error("new reason is marked system")
	}
	if !r.CanAppend() {
		t.Error("new reason cannot append")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MovementReason)
		wantErr bool
	}{
		{"valid", func(r *MovementReason) {}, false},
		{"invalid kind", func(r *MovementReason) { r.Kind = "storno" }, true},
		{"sign contradicts kind", func(r *MovementReason) { r.Sign = -1 }, true},
		{"outbound updating average", func(r *MovementReason) {
			r.Kind = KindOutbound
			r.Sign = -1
			r.UpdatesAverageCost = true
		}, true},
		{"missing name", func(r *MovementReason) { r.Name = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewMovementReason("TEST", "Test reason", KindInbound)
			tt.mutate(r)
			err := r.Validate(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanAppend(t *testing.T) {
	r := NewMovementReason("TEST", "Test reason", KindInbound)

	if !r.CanAppend() {
		t.Error("active reason cannot append")
	}

	r.IsActive = false
	if r.CanAppend() {
		t.Error("inactive reason can append")
	}

	r.IsActive = true
	r.DeletionMark = true
	if r.CanAppend() {
		t.Error("deletion-marked reason can append")
	}
}

func TestRecordType(t *testing.T) {
	if got := NewMovementReason("IN", "In", KindInbound).RecordType(); got != entity.RecordTypeReceipt {
		t.Errorf("inbound record type = %s, want receipt", got)
	}
	if got := NewMovementReason("OUT", "Out", KindOutbound).RecordType(); got != entity.RecordTypeExpense {
		t.Errorf("outbound record type = %s, want expense", got)
	}
}

func TestSystemReasons(t *testing.T) {
	reasons := SystemReasons()
	if len(reasons) != 8 {
		t.Fatalf("system reasons = %d, want 8", len(reasons))
	}

	byCode := make(map[string]*MovementReason, len(reasons))
	for _, r := range reasons {
		if !r.IsSystem {
			t.Errorf("%s is not marked system", r.Code)
		}
		if !r.IsActive {
			t.Errorf("%s is not active", r.Code)
		}
		if err := r.Validate(context.Background()); err != nil {
			t.Errorf("%s does not validate: %v", r.Code, err)
		}
		if _, dup := byCode[r.Code]; dup {
			t.Errorf("duplicate code %s", r.Code)
		}
		byCode[r.Code] = r
	}

	// The flags the ledger's validation depends on.
	if r := byCode[CodePurchase]; !r.UpdatesAverageCost || !r.RequiresSourceDocument {
		t.Error("PURCHASE must recost and require a source document")
	}
	if r := byCode[CodeSale]; r.UpdatesAverageCost || !r.RequiresSourceDocument {
		t.Error("SALE must cost out at average and require a source document")
	}
	if r := byCode[CodeTransfer]; r.Kind != KindTransfer {
		t.Error("TRANSFER must be a transfer kind")
	}
	if r := byCode[CodeAdjustmentDecrease]; !r.AllowNegativeStock {
		t.Error("ADJ_DECREASE must permit negative stock")
	}
	if r := byCode[CodeOpeningBalance]; r.Kind != KindInbound || !r.UpdatesAverageCost {
		t.Error("OPENING_BALANCE must be a costed inbound")
	}
}
