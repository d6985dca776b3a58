package ledger

import (
	"context"

	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
)

// Repository defines persistence for the movement ledger.
// Deliberately narrow: there is no update or delete for movements, at the
// interface level or below it. Corrections are new offsetting movements.
type Repository interface {
	// Insert appends a movement and assigns its monotonic Seq.
	Insert(ctx context.Context, m *entity.Movement) error

	// GetByID retrieves a single movement.
	GetByID(ctx context.Context, movementID id.ID) (*entity.Movement, error)

	// History returns a page of movements ordered by seq descending.
	History(ctx context.Context, filter HistoryFilter) (HistoryPage, error)

	// LockBalance returns the (product, warehouse) balance row under
	// FOR UPDATE, creating a zero row first if none exists. Appends to the
	// same pair serialize on this lock; different pairs never block each
	// other.
	LockBalance(ctx context.Context, productID, warehouseID id.ID) (*entity.StockBalance, error)

	// SaveBalance persists the running quantity and average cost.
	SaveBalance(ctx context.Context, b *entity.StockBalance) error

	// GetBalance reads a balance without locking.
	GetBalance(ctx context.Context, productID, warehouseID id.ID) (*entity.StockBalance, error)

	// RefreshProductTotals recomputes the product's derived quantity_on_hand
	// and value-weighted average_cost from its balances. Runs inside the
	// append transaction.
	RefreshProductTotals(ctx context.Context, productID id.ID) error

	// ReplayEntries returns the minimal movement projection for a
	// (product, warehouse) pair in seq order, for rebuilding a balance
	// from scratch.
	ReplayEntries(ctx context.Context, productID, warehouseID id.ID) ([]ReplayEntry, error)
}

// HistoryPage is one page of reverse-chronological movement history.
type HistoryPage struct {
	Items []*entity.Movement `json:"items"`

	// NextAfter is the cursor for the following page; zero when exhausted.
	NextAfter int64 `json:"nextAfter,omitempty"`

	HasMore bool `json:"hasMore"`
}
