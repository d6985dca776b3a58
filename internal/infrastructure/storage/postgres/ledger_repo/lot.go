package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
	"magazzino/internal/domain/lots"
	"magazzino/internal/infrastructure/storage/postgres"
)

const lotsTable = "reg_lots"

var lotCols = []string{
	"id", "product_id", "warehouse_id", "code",
	"initial_quantity", "residual_quantity", "unit_cost",
	"produced_at", "expires_at", "created_at",
}

// LotRepo implements lots.Repository.
// Lots are append-then-decrement only; there is no delete.
type LotRepo struct {
	builder squirrel.StatementBuilderType
}

// NewLotRepo creates a new lot repository.
func NewLotRepo() *LotRepo {
	return &LotRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LotRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// Create inserts a new lot.
func (r *LotRepo) Create(ctx context.Context, lot *entity.Lot) error {
	q := r.builder.Insert(lotsTable).
		Columns(lotCols...).
		Values(
			lot.ID, lot.ProductID, lot.WarehouseID, lot.Code,
			lot.InitialQuantity, lot.ResidualQuantity, lot.UnitCost,
			lot.ProducedAt, lot.ExpiresAt, lot.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}

	return nil
}

// GetByID retrieves a lot.
func (r *LotRepo) GetByID(ctx context.Context, lotID id.ID) (*entity.Lot, error) {
	return r.get(ctx, lotID, false)
}

// GetForUpdate retrieves a lot with a row lock. Concurrent draws against the
// same lot serialize here.
func (r *LotRepo) GetForUpdate(ctx context.Context, lotID id.ID) (*entity.Lot, error) {
	return r.get(ctx, lotID, true)
}

func (r *LotRepo) get(ctx context.Context, lotID id.ID, forUpdate bool) (*entity.Lot, error) {
	q := r.builder.Select(lotCols...).
		From(lotsTable).
		Where(squirrel.Eq{"id": lotID})

	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	} else {
		q = q.Limit(1)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lot entity.Lot
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &lot, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(lotsTable, lotID.String())
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}

	return &lot, nil
}

// UpdateResidual persists a new residual quantity (scaled integer).
func (r *LotRepo) UpdateResidual(ctx context.Context, lotID id.ID, residual int64) error {
	q := r.builder.Update(lotsTable).
		Set("residual_quantity", residual).
		Where(squirrel.Eq{"id": lotID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update lot residual: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(lotsTable, lotID.String())
	}

	return nil
}

// ListByStock returns lots for a (product, warehouse) pair, oldest first.
func (r *LotRepo) ListByStock(ctx context.Context, productID, warehouseID id.ID, filter lots.StatusFilter) ([]*entity.Lot, error) {
	q := r.builder.Select(lotCols...).
		From(lotsTable).
		Where(squirrel.Eq{
			"product_id":   productID,
			"warehouse_id": warehouseID,
		})

	if !filter.IncludeExhausted {
		q = q.Where(squirrel.Gt{"residual_quantity": 0})
	}
	if filter.ExpiringBefore != nil {
		q = q.Where(squirrel.NotEq{"expires_at": nil}).
			Where(squirrel.Lt{"expires_at": *filter.ExpiringBefore})
	}

	q = q.OrderBy("created_at ASC", "id ASC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*entity.Lot
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}

	return items, nil
}

// Ensure interface compliance.
var _ lots.Repository = (*LotRepo)(nil)
