package catalog_repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"magazzino/internal/domain/catalogs/reason"
	"magazzino/internal/infrastructure/storage/postgres"
)

const reasonTable = "cat_movement_reasons"

// ReasonRepo implements reason.Repository.
type ReasonRepo struct {
	*BaseCatalogRepo[*reason.MovementReason]
}

// NewReasonRepo creates a new movement reason repository.
func NewReasonRepo() *ReasonRepo {
	return &ReasonRepo{
		BaseCatalogRepo: NewBaseCatalogRepo[*reason.MovementReason](
			reasonTable,
			postgres.ExtractDBColumns[reason.MovementReason](),
			func() *reason.MovementReason { return &reason.MovementReason{} },
		),
	}
}

// IsReferenced reports whether any ledger movement carries the reason code.
// Kind and sign are frozen once history exists.
func (r *ReasonRepo) IsReferenced(ctx context.Context, code string) (bool, error) {
	sql := `SELECT 1 FROM doc_movements WHERE reason_code = $1 LIMIT 1`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var one int
	err := querier.QueryRow(ctx, sql, code).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check reason referenced: %w", err)
	}

	return true, nil
}
