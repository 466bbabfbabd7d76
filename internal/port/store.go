package port

import (
	"context"
	"time"

	"stock-service/internal/models"
)

// BalanceFilter narrows a balance listing. Zero values mean no filter.
type BalanceFilter struct {
	ItemID     int64
	LocationID int64
	Limit      int
	Offset     int
}

// Store is the storage port the stock, reservation and report services are
// written against. Bound to the Postgres adapter in production and to the
// in-memory adapter in tests and dev runs.
type Store interface {
	// WithinTx runs fn inside one atomic transaction. fn's reads of balance
	// rows lock them until commit, so concurrent mutations of the same
	// (item, location) pair serialize. Any error aborts the whole unit.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	ListBalances(ctx context.Context, f BalanceFilter) ([]models.Balance, error)
	SummaryByLocation(ctx context.Context, limit int) ([]models.LocationSummary, error)
	TurnoverByItem(ctx context.Context, from, to *time.Time) ([]models.ItemTurnover, error)

	// Order collaborator reads (read-only contract).
	OrderItems(ctx context.Context, orderID int64) ([]models.OrderLine, error)
	OrderLocation(ctx context.Context, orderID int64) (int64, error)

	Ping(ctx context.Context) error
}

// Tx is the transactional view handed to WithinTx closures.
type Tx interface {
	// BalanceForUpdate reads and row-locks a balance. Returns nil for a
	// pair that has never been mutated.
	BalanceForUpdate(ctx context.Context, itemID, locationID int64) (*models.Balance, error)

	// ApplyBalanceDelta upserts the pair and increments quantity/reserved
	// by the given deltas, returning the post-update row. Callers must have
	// validated invariants under the row lock first.
	ApplyBalanceDelta(ctx context.Context, itemID, locationID int64, qtyDelta, reservedDelta int) (*models.Balance, error)

	// OperationExists checks the idempotency signature.
	OperationExists(ctx context.Context, opType, sourceType string, sourceID, itemID int64, qty int) (bool, error)

	InsertOperation(ctx context.Context, op *models.Operation) error
}
