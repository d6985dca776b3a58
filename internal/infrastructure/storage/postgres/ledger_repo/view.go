package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"magazzino/internal/core/id"
	"magazzino/internal/domain/views"
	"magazzino/internal/infrastructure/storage/postgres"
)

const stockViewTable = "rep_stock_view"

// refreshSelect recomputes view rows from balances and catalogs. Used by
// both full and per-product refresh; quantity scale (1e4) cancels nowhere
// here, value stays in cost units because quantity converts via /10000.
const refreshSelect = `
	SELECT b.product_id,
	       p.code,
	       p.name,
	       b.warehouse_id,
	       w.name,
	       b.quantity,
	       b.average_cost,
	       COALESCE((b.quantity / 10000.0) * b.average_cost, 0),
	       now()
	FROM reg_stock_balances b
	JOIN cat_products p ON p.id = b.product_id
	JOIN cat_warehouses w ON w.id = b.warehouse_id
`

// ViewRepo implements views.Repository.
type ViewRepo struct {
	builder squirrel.StatementBuilderType
}

// NewViewRepo creates a new stock view repository.
func NewViewRepo() *ViewRepo {
	return &ViewRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ViewRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// Upsert writes one view row. Called inside the append transaction in eager
// mode, so the row is never newer than the balance it mirrors.
func (r *ViewRepo) Upsert(ctx context.Context, row views.StockRow) error {
	sql := `
		INSERT INTO rep_stock_view (
			product_id, product_code, product_name,
			warehouse_id, warehouse_name,
			quantity, average_cost, value, refreshed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (product_id, warehouse_id) DO UPDATE SET
			product_code = EXCLUDED.product_code,
			product_name = EXCLUDED.product_name,
			warehouse_name = EXCLUDED.warehouse_name,
			quantity = EXCLUDED.quantity,
			average_cost = EXCLUDED.average_cost,
			value = EXCLUDED.value,
			refreshed_at = EXCLUDED.refreshed_at
	`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	_, err := querier.Exec(ctx, sql,
		row.ProductID, row.ProductCode, row.ProductName,
		row.WarehouseID, row.WarehouseName,
		row.Quantity, row.AverageCost, row.Value, row.RefreshedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert stock view row: %w", err)
	}

	return nil
}

// RefreshAll rebuilds the whole view in one transaction. Idempotent:
// re-running converges to the same rows. Readers see the pre- or
// post-refresh snapshot, never a mix.
func (r *ViewRepo) RefreshAll(ctx context.Context) error {
	txm := r.getTxManager(ctx)
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := txm.GetQuerier(ctx)

		if _, err := querier.Exec(ctx, "DELETE FROM "+stockViewTable); err != nil {
			return fmt.Errorf("clear stock view: %w", err)
		}

		insertSQL := `
			INSERT INTO rep_stock_view (
				product_id, product_code, product_name,
				warehouse_id, warehouse_name,
				quantity, average_cost, value, refreshed_at
			)` + refreshSelect

		if _, err := querier.Exec(ctx, insertSQL); err != nil {
			return fmt.Errorf("rebuild stock view: %w", err)
		}

		return nil
	})
}

// RefreshProduct recomputes the view rows of a single product.
func (r *ViewRepo) RefreshProduct(ctx context.Context, productID id.ID) error {
	txm := r.getTxManager(ctx)
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := txm.GetQuerier(ctx)

		if _, err := querier.Exec(ctx,
			"DELETE FROM "+stockViewTable+" WHERE product_id = $1", productID); err != nil {
			return fmt.Errorf("clear stock view rows: %w", err)
		}

		insertSQL := `
			INSERT INTO rep_stock_view (
				product_id, product_code, product_name,
				warehouse_id, warehouse_name,
				quantity, average_cost, value, refreshed_at
			)` + refreshSelect + ` WHERE b.product_id = $1`

		if _, err := querier.Exec(ctx, insertSQL, productID); err != nil {
			return fmt.Errorf("rebuild stock view rows: %w", err)
		}

		return nil
	})
}

// StockByWarehouse returns the per-warehouse rows for a product.
func (r *ViewRepo) StockByWarehouse(ctx context.Context, productID id.ID) ([]views.StockRow, error) {
	q := r.builder.Select(
		"product_id", "product_code", "product_name",
		"warehouse_id", "warehouse_name",
		"quantity", "average_cost", "value", "refreshed_at",
	).From(stockViewTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("warehouse_name ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []views.StockRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select stock by warehouse: %w", err)
	}

	return rows, nil
}

// Valuation aggregates the view into per-product totals.
func (r *ViewRepo) Valuation(ctx context.Context) (views.ValuationReport, error) {
	report := views.ValuationReport{AsOf: time.Now().UTC()}

	sql := `
		SELECT product_id,
		       product_code,
		       product_name,
		       SUM(quantity)::bigint AS quantity,
		       CASE
		           WHEN SUM(quantity) FILTER (WHERE average_cost IS NOT NULL AND quantity > 0) > 0
		           THEN ROUND(
		               SUM(quantity * average_cost) FILTER (WHERE average_cost IS NOT NULL AND quantity > 0)
		               / SUM(quantity) FILTER (WHERE average_cost IS NOT NULL AND quantity > 0),
		               6)
		       END AS average_cost,
		       SUM(value) AS value
		FROM rep_stock_view
		GROUP BY product_id, product_code, product_name
		ORDER BY product_code
	`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &report.Rows, sql); err != nil {
		return report, fmt.Errorf("select valuation: %w", err)
	}

	for _, row := range report.Rows {
		report.TotalValue = report.TotalValue.Add(row.Value)
	}

	return report, nil
}

// Ensure interface compliance.
var _ views.Repository = (*ViewRepo)(nil)
