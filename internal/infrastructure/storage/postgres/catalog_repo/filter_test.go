package catalog_repo

import (
	"context"
	"testing"

	"magazzino/internal/domain/filter"
)

func TestApplyAdvancedFilters_Operators(t *testing.T) {
	repo := NewBaseCatalogRepo[any]("products", []string{"id", "code", "name", "reorder_point"}, func() any { return nil })
	ctx := context.Background()

	tests := []struct {
		name     string
		item     filter.Item
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "Greater",
			item:     filter.Item{Field: "reorder_point", Operator: filter.Greater, Value: 10},
			wantSQL:  "SELECT id, code, name, reorder_point FROM products WHERE reorder_point > $1",
			wantArgs: []any{10},
		},
		{
			name:     "Less",
			item:     filter.Item{Field: "reorder_point", Operator: filter.Less, Value: 5},
			wantSQL:  "SELECT id, code, name, reorder_point FROM products WHERE reorder_point < $1",
			wantArgs: []any{5},
		},
		{
			name:     "Equal",
			item:     filter.Item{Field: "code", Operator: filter.Equal, Value: "PRD-00001"},
			wantSQL:  "SELECT id, code, name, reorder_point FROM products WHERE code = $1",
			wantArgs: []any{"PRD-00001"},
		},
		{
			name:     "Contains",
			item:     filter.Item{Field: "name", Operator: filter.Contains, Value: "bolt"},
			wantSQL:  "SELECT id, code, name, reorder_point FROM products WHERE name ILIKE $1",
			wantArgs: []any{"%bolt%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseQ := repo.baseSelect(ctx)
			q, err := repo.applyAdvancedFilters(ctx, baseQ, []filter.Item{tt.item})
			if err != nil {
				t.Fatalf("applyAdvancedFilters failed: %v", err)
			}

			sql, args, err := q.ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}

			if sql != tt.wantSQL {
				t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", tt.wantSQL, sql)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("Args count mismatch\nwant: %d\ngot:  %d", len(tt.wantArgs), len(args))
			}
			if args[0] != tt.wantArgs[0] {
				t.Errorf("Args mismatch\nwant: %v\ngot:  %v", tt.wantArgs[0], args[0])
			}
		})
	}
}

func TestApplyAdvancedFilters_RejectsUnknownColumn(t *testing.T) {
	repo := NewBaseCatalogRepo[any]("products", []string{"id", "code"}, func() any { return nil })
	ctx := context.Background()

	_, err := repo.applyAdvancedFilters(ctx, repo.baseSelect(ctx), []filter.Item{
		{Field: "average_cost; DROP TABLE products", Operator: filter.Equal, Value: 1},
	})
	if err == nil {
		t.Fatal("expected error for non-whitelisted column")
	}
}
