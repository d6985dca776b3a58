package views

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
	"magazzino/internal/core/types"
	"magazzino/internal/domain"
	"magazzino/internal/domain/catalogs/product"
	"magazzino/internal/domain/catalogs/warehouse"
)

type recordingRepo struct {
	upserts          []StockRow
	refreshed        int
	refreshedProduct []id.ID
}

func (r *recordingRepo) Upsert(_ context.Context, row StockRow) error {
	r.upserts = append(r.upserts, row)
	return nil
}

func (r *recordingRepo) RefreshAll(_ context.Context) error {
	r.refreshed++
	return nil
}

func (r *recordingRepo) RefreshProduct(_ context.Context, productID id.ID) error {
	r.refreshedProduct = append(r.refreshedProduct, productID)
	return nil
}

func (r *recordingRepo) StockByWarehouse(_ context.Context, _ id.ID) ([]StockRow, error) {
	return nil, nil
}

func (r *recordingRepo) Valuation(_ context.Context) (ValuationReport, error) {
	return ValuationReport{}, nil
}

type stubFinder struct {
	result domain.ListResult[*product.Product]
}

func (f *stubFinder) FindBelowReorder(_ context.Context, _ domain.ListFilter) (domain.ListResult[*product.Product], error) {
	return f.result, nil
}

func TestParseRefreshMode(t *testing.T) {
	tests := []struct {
		in   string
		want RefreshMode
	}{
		{"eager", RefreshEager},
		{"lazy", RefreshLazy},
		{"", RefreshEager},
		{"unknown", RefreshEager},
	}
	for _, tt := range tests {
		if got := ParseRefreshMode(tt.in); got != tt.want {
			t.Errorf("ParseRefreshMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestApplyMovement_EagerUpsertsViewRow(t *testing.T) {
	repo := &recordingRepo{}
	svc := NewService(repo, &stubFinder{}, RefreshEager)

	p := product.NewProduct("PRD-00042", "Hex bolt M8", "pcs")
	wh := warehouse.NewWarehouse("WH-001", "Central warehouse", warehouse.TypeMain)
	bal := &entity.StockBalance{
		ProductID:   p.ID,
		WarehouseID: wh.ID,
		Quantity:    types.NewQuantityFromFloat64(70),
		AverageCost: decimal.NullDecimal{Decimal: decimal.RequireFromString("30"), Valid: true},
	}

	if err := svc.ApplyMovement(context.Background(), &entity.Movement{}, bal, p, wh); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if len(repo.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(repo.upserts))
	}
	row := repo.upserts[0]
	if row.ProductID != bal.ProductID || row.WarehouseID != bal.WarehouseID {
		t.Errorf("row dimensions = %s/%s, want %s/%s", row.ProductID, row.WarehouseID, bal.ProductID, bal.WarehouseID)
	}
	if row.ProductCode != "PRD-00042" || row.ProductName != "Hex bolt M8" {
		t.Errorf("row product = %q/%q, want PRD-00042/Hex bolt M8", row.ProductCode, row.ProductName)
	}
	if row.WarehouseName != "Central warehouse" {
		t.Errorf("row warehouse name = %q, want Central warehouse", row.WarehouseName)
	}
	if row.Quantity != bal.Quantity {
		t.Errorf("row quantity = %s, want %s", row.Quantity, bal.Quantity)
	}
	if !row.Value.Equal(decimal.RequireFromString("2100")) {
		t.Errorf("row value = %s, want 2100", row.Value)
	}
	if row.RefreshedAt.IsZero() {
		t.Error("row has no refresh timestamp")
	}
}

func TestApplyMovement_LazyIsNoOp(t *testing.T) {
	repo := &recordingRepo{}
	svc := NewService(repo, &stubFinder{}, RefreshLazy)

	bal := &entity.StockBalance{ProductID: id.New(), WarehouseID: id.New()}
	p := product.NewProduct("PRD-00001", "Washer", "pcs")
	wh := warehouse.NewWarehouse("WH-002", "Retail store", warehouse.TypeRetail)
	if err := svc.ApplyMovement(context.Background(), &entity.Movement{}, bal, p, wh); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if len(repo.upserts) != 0 {
		t.Errorf("lazy mode wrote %d view rows", len(repo.upserts))
	}
}

func TestRefreshProduct_Delegates(t *testing.T) {
	repo := &recordingRepo{}
	svc := NewService(repo, &stubFinder{}, RefreshLazy)

	productID := id.New()
	if err := svc.RefreshProduct(context.Background(), productID); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if len(repo.refreshedProduct) != 1 || repo.refreshedProduct[0] != productID {
		t.Errorf("refreshed = %v, want [%s]", repo.refreshedProduct, productID)
	}
}

func TestBelowReorder_Delegates(t *testing.T) {
	low := product.NewProduct("PRD-00001", "Copy paper A4", "pack")
	finder := &stubFinder{result: domain.ListResult[*product.Product]{
		Items:      []*product.Product{low},
		TotalCount: 1,
	}}
	svc := NewService(&recordingRepo{}, finder, RefreshEager)

	res, err := svc.BelowReorder(context.Background(), domain.ListFilter{})
	if err != nil {
		t.Fatalf("below reorder failed: %v", err)
	}
	if res.TotalCount != 1 || len(res.Items) != 1 || res.Items[0].Code != "PRD-00001" {
		t.Errorf("result = %+v, want the one shortage product", res)
	}
}
