package reason

import (
	"context"

	"magazzino/internal/domain"
)

// Repository defines the interface for MovementReason persistence.
type Repository interface {
	domain.CatalogRepository[*MovementReason]

	// IsReferenced reports whether any ledger movement references the reason code.
	// Used to freeze sign/kind once history exists.
	IsReferenced(ctx context.Context, code string) (bool, error)
}
