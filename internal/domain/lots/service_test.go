package lots

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
	"magazzino/internal/core/types"
)

type fakeRepo struct {
	lots map[id.ID]*entity.Lot
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{lots: make(map[id.ID]*entity.Lot)}
}

func (r *fakeRepo) Create(_ context.Context, lot *entity.Lot) error {
	copied := *lot
	r.lots[lot.ID] = &copied
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, lotID id.ID) (*entity.Lot, error) {
	if l, ok := r.lots[lotID]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, apperror.NewNotFound("lot", lotID.String())
}

func (r *fakeRepo) GetForUpdate(ctx context.Context, lotID id.ID) (*entity.Lot, error) {
	return r.GetByID(ctx, lotID)
}

func (r *fakeRepo) UpdateResidual(_ context.Context, lotID id.ID, residual int64) error {
	l, ok := r.lots[lotID]
	if !ok {
		return apperror.NewNotFound("lot", lotID.String())
	}
	l.ResidualQuantity = types.NewQuantityFromInt64Scaled(residual)
	return nil
}

func (r *fakeRepo) ListByStock(_ context.Context, productID, warehouseID id.ID, filter StatusFilter) ([]*entity.Lot, error) {
	var out []*entity.Lot
	for _, l := range r.lots {
		if l.ProductID != productID || l.WarehouseID != warehouseID {
			continue
		}
		if !filter.IncludeExhausted && l.IsExhausted() {
			continue
		}
		if filter.ExpiringBefore != nil && (l.ExpiresAt == nil || !l.ExpiresAt.Before(*filter.ExpiringBefore)) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func qty(t *testing.T, s string) types.Quantity {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad quantity %q: %v", s, err)
	}
	return types.NewQuantityFromDecimal(d)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error code %s, got nil", code)
	}
	if !apperror.IsCode(err, code) {
		t.Fatalf("expected error code %s, got %v", code, err)
	}
}

func TestCredit(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	productID, warehouseID := id.New(), id.New()
	expires := time.Now().AddDate(1, 0, 0)

	lot, err := svc.Credit(context.Background(), CreditRequest{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Code:        "BATCH-2026-001",
		Quantity:    qty(t, "120"),
		UnitCost:    decimal.RequireFromString("4.25"),
		ExpiresAt:   &expires,
	})
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	if lot.InitialQuantity != qty(t, "120") {
		t.Errorf("initial = %s, want 120", lot.InitialQuantity)
	}
	if lot.ResidualQuantity != lot.InitialQuantity {
		t.Errorf("residual = %s, want initial %s", lot.ResidualQuantity, lot.InitialQuantity)
	}
	if lot.ExpiresAt == nil || !lot.ExpiresAt.Equal(expires) {
		t.Errorf("expires = %v, want %v", lot.ExpiresAt, expires)
	}
	if _, ok := repo.lots[lot.ID]; !ok {
		t.Error("lot not persisted")
	}
}

func TestCredit_Validation(t *testing.T) {
	svc := NewService(newFakeRepo())

	tests := []struct {
		name     string
		req      CreditRequest
		wantCode string
	}{
		{
			name: "zero quantity",
			req: CreditRequest{
				ProductID: id.New(), WarehouseID: id.New(),
				Code: "B-1", UnitCost: decimal.RequireFromString("1"),
			},
			wantCode: apperror.CodeNonPositiveQuantity,
		},
		{
			name: "missing code",
			req: CreditRequest{
				ProductID: id.New(), WarehouseID: id.New(),
				Quantity: types.NewQuantityFromFloat64(5), UnitCost: decimal.RequireFromString("1"),
			},
			wantCode: apperror.CodeValidation,
		},
		{
			name: "negative cost",
			req: CreditRequest{
				ProductID: id.New(), WarehouseID: id.New(),
				Code: "B-1", Quantity: types.NewQuantityFromFloat64(5),
				UnitCost: decimal.RequireFromString("-1"),
			},
			wantCode: apperror.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Credit(context.Background(), tt.req)
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestReserve(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	productID, warehouseID := id.New(), id.New()

	lot, err := svc.Credit(context.Background(), CreditRequest{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Code:        "BATCH-1",
		Quantity:    qty(t, "50"),
		UnitCost:    decimal.RequireFromString("30"),
	})
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	reserved, err := svc.Reserve(context.Background(), lot.ID, productID, warehouseID, qty(t, "10"))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if reserved.ResidualQuantity != qty(t, "40") {
		t.Errorf("residual = %s, want 40", reserved.ResidualQuantity)
	}
	if got := repo.lots[lot.ID].ResidualQuantity; got != qty(t, "40") {
		t.Errorf("persisted residual = %s, want 40", got)
	}

	// Draw the rest down to exactly zero; the lot stays for traceability.
	_, err = svc.Reserve(context.Background(), lot.ID, productID, warehouseID, qty(t, "40"))
	if err != nil {
		t.Fatalf("final draw failed: %v", err)
	}
	if got := repo.lots[lot.ID]; !got.IsExhausted() {
		t.Errorf("residual = %s, want exhausted", got.ResidualQuantity)
	}

	// Any further draw is rejected.
	_, err = svc.Reserve(context.Background(), lot.ID, productID, warehouseID, qty(t, "0.0001"))
	assertCode(t, err, apperror.CodeLotExhausted)
}

func TestReserve_Errors(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	productID, warehouseID := id.New(), id.New()

	lot, err := svc.Credit(context.Background(), CreditRequest{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Code:        "BATCH-1",
		Quantity:    qty(t, "10"),
		UnitCost:    decimal.RequireFromString("30"),
	})
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	t.Run("zero quantity", func(t *testing.T) {
		_, err := svc.Reserve(context.Background(), lot.ID, productID, warehouseID, 0)
		assertCode(t, err, apperror.CodeNonPositiveQuantity)
	})

	t.Run("unknown lot", func(t *testing.T) {
		_, err := svc.Reserve(context.Background(), id.New(), productID, warehouseID, qty(t, "1"))
		assertCode(t, err, apperror.CodeLotNotFound)
	})

	t.Run("wrong product", func(t *testing.T) {
		_, err := svc.Reserve(context.Background(), lot.ID, id.New(), warehouseID, qty(t, "1"))
		assertCode(t, err, apperror.CodeLotNotFound)
	})

	t.Run("wrong warehouse", func(t *testing.T) {
		_, err := svc.Reserve(context.Background(), lot.ID, productID, id.New(), qty(t, "1"))
		assertCode(t, err, apperror.CodeLotNotFound)
	})

	t.Run("over-draw", func(t *testing.T) {
		_, err := svc.Reserve(context.Background(), lot.ID, productID, warehouseID, qty(t, "11"))
		assertCode(t, err, apperror.CodeLotExhausted)

		// The rejected draw left the residual untouched.
		if got := repo.lots[lot.ID].ResidualQuantity; got != qty(t, "10") {
			t.Errorf("residual = %s, want 10", got)
		}
	})
}

func TestStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	productID, warehouseID := id.New(), id.New()
	ctx := context.Background()

	soon := time.Now().Add(24 * time.Hour)
	later := time.Now().AddDate(1, 0, 0)

	expiring, err := svc.Credit(ctx, CreditRequest{
		ProductID: productID, WarehouseID: warehouseID,
		Code: "B-EXPIRING", Quantity: qty(t, "5"),
		UnitCost: decimal.RequireFromString("2"), ExpiresAt: &soon,
	})
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if _, err := svc.Credit(ctx, CreditRequest{
		ProductID: productID, WarehouseID: warehouseID,
		Code: "B-FRESH", Quantity: qty(t, "5"),
		UnitCost: decimal.RequireFromString("2"), ExpiresAt: &later,
	}); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	drained, err := svc.Credit(ctx, CreditRequest{
		ProductID: productID, WarehouseID: warehouseID,
		Code: "B-DRAINED", Quantity: qty(t, "5"),
		UnitCost: decimal.RequireFromString("2"),
	})
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if _, err := svc.Reserve(ctx, drained.ID, productID, warehouseID, qty(t, "5")); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	live, err := svc.Status(ctx, productID, warehouseID, StatusFilter{})
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if len(live) != 2 {
		t.Errorf("live lots = %d, want 2", len(live))
	}

	all, err := svc.Status(ctx, productID, warehouseID, StatusFilter{IncludeExhausted: true})
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all lots = %d, want 3", len(all))
	}

	cutoff := time.Now().Add(48 * time.Hour)
	expiringSoon, err := svc.Status(ctx, productID, warehouseID, StatusFilter{ExpiringBefore: &cutoff})
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if len(expiringSoon) != 1 || expiringSoon[0].ID != expiring.ID {
		t.Errorf("expiring lots = %d, want only B-EXPIRING", len(expiringSoon))
	}
}

func TestGet(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	_, err := svc.Get(context.Background(), id.New())
	assertCode(t, err, apperror.CodeLotNotFound)
}
