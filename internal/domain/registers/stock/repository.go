// Package stock implements the stock ledger: current balances per
// (product, variant, branch) and the append-only movement trail.
package stock

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Repository defines storage operations for the stock ledger.
//
// Every quantity mutation is a single atomic statement on one entry row; the
// repository never reads a balance and writes it back. Implementations pick up
// an active transaction from ctx.
type Repository interface {
	// Entry reads

	// GetEntry returns the entry for key or a NOT_FOUND AppError.
	GetEntry(ctx context.Context, key entity.StockKey) (*entity.StockEntry, error)

	// FindByCode resolves a barcode or SKU within a branch. Barcode wins when
	// both match different entries.
	FindByCode(ctx context.Context, code string, branchID id.ID) (*entity.StockEntry, error)

	// ListEntries returns entries matching the filter.
	ListEntries(ctx context.Context, filter EntryFilter) ([]entity.StockEntry, error)

	// SumQuantityByProduct totals quantity over active entries of a product.
	SumQuantityByProduct(ctx context.Context, productID id.ID) (types.Quantity, error)

	// Entry writes

	// UpsertEntry creates the entry with zero quantity when absent and returns
	// the stored row. An existing row is returned unchanged.
	UpsertEntry(ctx context.Context, seed EntrySeed) (*entity.StockEntry, error)

	// Decrement subtracts qty only if enough is on hand (minus reservations
	// when respectReservations is set). ok is false when the condition failed;
	// entry is then the current row, or nil when no row exists.
	Decrement(ctx context.Context, key entity.StockKey, qty types.Quantity, respectReservations bool) (entry *entity.StockEntry, ok bool, err error)

	// Increment adds delta. With incomingCost set, the weighted-average cost
	// merge is applied in the same statement.
	Increment(ctx context.Context, key entity.StockKey, delta types.Quantity, incomingCost *types.Money) (*entity.StockEntry, error)

	// Compensate adds a signed delta clamped at zero. Used only to undo work
	// when transactions are unavailable.
	Compensate(ctx context.Context, key entity.StockKey, delta types.Quantity) error

	// SetQuantity stores an absolute quantity and returns the prior value.
	SetQuantity(ctx context.Context, key entity.StockKey, qty types.Quantity) (prev types.Quantity, entry *entity.StockEntry, err error)

	// SetCost overwrites the unit cost.
	SetCost(ctx context.Context, key entity.StockKey, cost types.Money) error

	// AdjustReserved changes the reserved quantity. Positive deltas require
	// enough unreserved stock (ok=false otherwise); negative deltas clamp at zero.
	AdjustReserved(ctx context.Context, key entity.StockKey, delta types.Quantity) (entry *entity.StockEntry, ok bool, err error)

	// SetReorderLevels updates reorder settings and the derived flag.
	SetReorderLevels(ctx context.Context, key entity.StockKey, point, quantity types.Quantity) (*entity.StockEntry, error)

	// SetProductActive flips is_active on every entry of a product. A non-nil
	// snapshot is stored as the deleted-product description.
	SetProductActive(ctx context.Context, productID id.ID, active bool, snapshot *string) (int64, error)

	// Movements

	// InsertMovements appends movements.
	InsertMovements(ctx context.Context, movements []entity.StockMovement) error

	// ListMovements returns movements newest first.
	ListMovements(ctx context.Context, filter MovementFilter) ([]entity.StockMovement, error)

	// DeleteExpiredMovements removes movements whose retention ended before t.
	DeleteExpiredMovements(ctx context.Context, before time.Time) (int64, error)
}

// EntrySeed carries the denormalized product data of a new entry.
type EntrySeed struct {
	Key       entity.StockKey
	IsActive  bool
	SKU       string
	Barcode   string
	CostPrice types.Money
}

// EntryFilter for listing entries.
type EntryFilter struct {
	BranchID     *id.ID
	ProductID    *id.ID
	OnlyActive   bool
	NeedsReorder bool
	OutOfStock   bool
	Limit        int
	Offset       int
}

// MovementFilter for filtering movement history.
type MovementFilter struct {
	ProductID *id.ID
	BranchID  *id.ID
	Type      *entity.MovementType
	Reference *entity.Reference
	FromDate  *time.Time
	ToDate    *time.Time
	Limit     int
	Offset    int
}

// DefaultListLimit caps list queries without an explicit limit.
const DefaultListLimit = 100

// NormalizedLimit returns a usable page size.
func NormalizedLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}
