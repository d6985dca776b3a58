// Package ledger_repo provides PostgreSQL persistence for the movement
// ledger, lots, and the aggregate stock view.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
	"magazzino/internal/core/types"
	"magazzino/internal/domain/ledger"
	"magazzino/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "doc_movements"
	balancesTable  = "reg_stock_balances"
)

var movementCols = []string{
	"id", "seq", "number",
	"product_id", "warehouse_id", "reason_code", "record_type",
	"quantity", "unit_cost", "total_cost",
	"lot_id", "transfer_id", "destination_warehouse_id",
	"source_document_type", "source_document_id",
	"occurred_at", "created_at", "created_by", "note",
}

// MovementRepo implements ledger.Repository.
//
// There is deliberately no UPDATE or DELETE path for movements here; the
// table additionally carries a trigger rejecting both.
type MovementRepo struct {
	builder squirrel.StatementBuilderType
}

// NewMovementRepo creates a new movement ledger repository.
func NewMovementRepo() *MovementRepo {
	return &MovementRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *MovementRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// Insert appends a movement and reads back the DB-assigned seq.
func (r *MovementRepo) Insert(ctx context.Context, m *entity.Movement) error {
	q := r.builder.Insert(movementsTable).
		Columns(
			"id", "number",
			"product_id", "warehouse_id", "reason_code", "record_type",
			"quantity", "unit_cost", "total_cost",
			"lot_id", "transfer_id", "destination_warehouse_id",
			"source_document_type", "source_document_id",
			"occurred_at", "created_at", "created_by", "note",
		).
		Values(
			m.ID, m.Number,
			m.ProductID, m.WarehouseID, m.ReasonCode, m.RecordType,
			m.Quantity, m.UnitCost, m.TotalCost,
			m.LotID, m.TransferID, m.DestinationWarehouseID,
			m.SourceDocumentType, m.SourceDocumentID,
			m.OccurredAt, m.CreatedAt, m.CreatedBy, m.Note,
		).
		Suffix("RETURNING seq")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&m.Seq); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}

	return nil
}

// GetByID retrieves a single movement.
func (r *MovementRepo) GetByID(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	q := r.builder.Select(movementCols...).
		From(movementsTable).
		Where(squirrel.Eq{"id": movementID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m entity.Movement
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(movementsTable, movementID.String())
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}

	return &m, nil
}

// History returns a page of movements ordered by seq descending.
// Keyset pagination on seq: one extra row is fetched to detect more pages.
func (r *MovementRepo) History(ctx context.Context, filter ledger.HistoryFilter) (ledger.HistoryPage, error) {
	var page ledger.HistoryPage

	limit := filter.Limit
	if limit <= 0 {
		limit = ledger.DefaultHistoryLimit
	}

	q := r.builder.Select(movementCols...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": filter.ProductID})

	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.ReasonCode != "" {
		q = q.Where(squirrel.Eq{"reason_code": filter.ReasonCode})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"occurred_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"occurred_at": *filter.To})
	}
	if filter.After > 0 {
		q = q.Where(squirrel.Lt{"seq": filter.After})
	}

	q = q.OrderBy("seq DESC").Limit(uint64(limit + 1))

	sql, args, err := q.ToSql()
	if err != nil {
		return page, fmt.Errorf("build query: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &page.Items, sql, args...); err != nil {
		return page, fmt.Errorf("select history: %w", err)
	}

	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
		page.HasMore = true
		page.NextAfter = page.Items[limit-1].Seq
	}

	return page, nil
}

// LockBalance returns the (product, warehouse) balance row under FOR UPDATE,
// creating a zero row first if none exists. All appends to the same pair
// serialize on this lock.
func (r *MovementRepo) LockBalance(ctx context.Context, productID, warehouseID id.ID) (*entity.StockBalance, error) {
	querier := r.getTxManager(ctx).GetQuerier(ctx)

	ensureSQL := `
		INSERT INTO reg_stock_balances (product_id, warehouse_id, quantity, last_movement_seq, last_movement_at, updated_at)
		VALUES ($1, $2, 0, 0, now(), now())
		ON CONFLICT (product_id, warehouse_id) DO NOTHING
	`
	if _, err := querier.Exec(ctx, ensureSQL, productID, warehouseID); err != nil {
		return nil, fmt.Errorf("ensure balance row: %w", err)
	}

	lockSQL := `
		SELECT product_id, warehouse_id, quantity, average_cost,
		       last_movement_seq, last_movement_at, updated_at
		FROM reg_stock_balances
		WHERE product_id = $1 AND warehouse_id = $2
		FOR UPDATE
	`

	var balance entity.StockBalance
	if err := pgxscan.Get(ctx, querier, &balance, lockSQL, productID, warehouseID); err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}

	return &balance, nil
}

// SaveBalance persists the running quantity and average cost.
func (r *MovementRepo) SaveBalance(ctx context.Context, b *entity.StockBalance) error {
	q := r.builder.Update(balancesTable).
		Set("quantity", b.Quantity).
		Set("average_cost", b.AverageCost).
		Set("last_movement_seq", b.LastMovementSeq).
		Set("last_movement_at", b.LastMovementAt).
		Set("updated_at", b.UpdatedAt).
		Where(squirrel.Eq{
			"product_id":   b.ProductID,
			"warehouse_id": b.WarehouseID,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("save balance: row %s/%s missing, LockBalance not called", b.ProductID, b.WarehouseID)
	}

	return nil
}

// GetBalance reads a balance without locking. A missing row reads as zero.
func (r *MovementRepo) GetBalance(ctx context.Context, productID, warehouseID id.ID) (*entity.StockBalance, error) {
	q := r.builder.Select(
		"product_id", "warehouse_id", "quantity", "average_cost",
		"last_movement_seq", "last_movement_at", "updated_at",
	).From(balancesTable).
		Where(squirrel.Eq{
			"product_id":   productID,
			"warehouse_id": warehouseID,
		}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var balance entity.StockBalance
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &balance, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return &entity.StockBalance{
				ProductID:   productID,
				WarehouseID: warehouseID,
			}, nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}

	return &balance, nil
}

// RefreshProductTotals recomputes the product's derived quantity_on_hand and
// value-weighted average_cost from its balance rows. The quantity scale
// cancels in the division, so the result is a plain unit cost.
func (r *MovementRepo) RefreshProductTotals(ctx context.Context, productID id.ID) error {
	sql := `
		UPDATE cat_products p SET
			quantity_on_hand = t.qty,
			average_cost = t.avg_cost,
			updated_at = now()
		FROM (
			SELECT
				COALESCE(SUM(quantity), 0)::bigint AS qty,
				CASE
					WHEN COALESCE(SUM(quantity) FILTER (WHERE average_cost IS NOT NULL AND quantity > 0), 0) > 0
					THEN ROUND(
						SUM(quantity * average_cost) FILTER (WHERE average_cost IS NOT NULL AND quantity > 0)
						/ SUM(quantity) FILTER (WHERE average_cost IS NOT NULL AND quantity > 0),
						6)
				END AS avg_cost
			FROM reg_stock_balances
			WHERE product_id = $1
		) t
		WHERE p.id = $1
	`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, productID); err != nil {
		return fmt.Errorf("refresh product totals: %w", err)
	}

	return nil
}

// replayRow is the minimal movement projection used for balance rebuilds.
type replayRow struct {
	RecordType string              `db:"record_type"`
	Quantity   int64               `db:"quantity"`
	UnitCost   decimal.NullDecimal `db:"unit_cost"`
}

// ReplayEntries returns movements for a pair in ledger order.
func (r *MovementRepo) ReplayEntries(ctx context.Context, productID, warehouseID id.ID) ([]ledger.ReplayEntry, error) {
	sql := `
		SELECT record_type, quantity, unit_cost
		FROM doc_movements
		WHERE product_id = $1 AND warehouse_id = $2
		ORDER BY seq
	`

	var rows []replayRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, productID, warehouseID); err != nil {
		return nil, fmt.Errorf("select replay entries: %w", err)
	}

	entries := make([]ledger.ReplayEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, ledger.ReplayEntry{
			Receipt:  row.RecordType == string(entity.RecordTypeReceipt),
			Quantity: types.NewQuantityFromInt64Scaled(row.Quantity),
			UnitCost: row.UnitCost,
		})
	}

	return entries, nil
}

// Ensure interface compliance.
var _ ledger.Repository = (*MovementRepo)(nil)
