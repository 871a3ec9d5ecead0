package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/registers/stock"
)

// StockRepo implements stock.Repository. Every method is one critical
// section, the in-memory counterpart of a single conditional UPDATE.
type StockRepo struct {
	store *Store
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a stock repository on store.
func NewStockRepo(store *Store) *StockRepo {
	return &StockRepo{store: store}
}

func notFound(key entity.StockKey) error {
	return apperror.NewNotFound("stock entry", key.String())
}

// mutate applies fn to the stored entry and saves the result unless fn
// returns false.
func (r *StockRepo) mutate(ctx context.Context, key entity.StockKey, fn func(e *entity.StockEntry) bool) (*entity.StockEntry, bool, error) {
	var (
		out     *entity.StockEntry
		applied bool
	)
	err := r.store.write(ctx, func(st *state) error {
		e, ok := st.entries[key]
		if !ok {
			return notFound(key)
		}
		if applied = fn(&e); applied {
			e.UpdatedAt = time.Now().UTC()
			st.entries[key] = e
		}
		out = &e
		return nil
	})
	return out, applied, err
}

func touchMovement(e *entity.StockEntry) {
	now := time.Now().UTC()
	e.LastMovementAt = &now
	e.NeedsReorder = entity.ComputeNeedsReorder(e.Quantity, e.ReorderPoint)
}

// GetEntry implements stock.Repository.
func (r *StockRepo) GetEntry(ctx context.Context, key entity.StockKey) (*entity.StockEntry, error) {
	var out *entity.StockEntry
	err := r.store.read(func(st *state) error {
		e, ok := st.entries[key]
		if !ok {
			return notFound(key)
		}
		out = &e
		return nil
	})
	return out, err
}

// FindByCode implements stock.Repository.
func (r *StockRepo) FindByCode(ctx context.Context, code string, branchID id.ID) (*entity.StockEntry, error) {
	var best *entity.StockEntry
	rank := func(e *entity.StockEntry) int {
		n := 0
		if e.Barcode == code {
			n += 2
		}
		if e.IsActive {
			n++
		}
		return n
	}
	err := r.store.read(func(st *state) error {
		for _, e := range st.entries {
			if e.BranchID != branchID || (e.Barcode != code && e.SKU != code) {
				continue
			}
			if best == nil || rank(&e) > rank(best) {
				best = &e
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, apperror.NewNotFound("stock entry", code).
			WithDetail("branch_id", branchID.String())
	}
	return best, nil
}

func compareKeys(a, b entity.StockKey) int {
	if c := cmp.Compare(a.ProductID.String(), b.ProductID.String()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Variant, b.Variant); c != 0 {
		return c
	}
	return cmp.Compare(a.BranchID.String(), b.BranchID.String())
}

// ListEntries implements stock.Repository.
func (r *StockRepo) ListEntries(ctx context.Context, f stock.EntryFilter) ([]entity.StockEntry, error) {
	out := []entity.StockEntry{}
	_ = r.store.read(func(st *state) error {
		for _, e := range st.entries {
			switch {
			case f.BranchID != nil && e.BranchID != *f.BranchID,
				f.ProductID != nil && e.ProductID != *f.ProductID,
				f.OnlyActive && !e.IsActive,
				f.NeedsReorder && !e.NeedsReorder,
				f.OutOfStock && e.Quantity > 0:
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b entity.StockEntry) int { return compareKeys(a.Key(), b.Key()) })
	return page(out, f.Offset, stock.NormalizedLimit(f.Limit)), nil
}

func page[T any](items []T, offset, limit int) []T {
	start := min(max(offset, 0), len(items))
	end := min(start+limit, len(items))
	return items[start:end]
}

// SumQuantityByProduct implements stock.Repository.
func (r *StockRepo) SumQuantityByProduct(ctx context.Context, productID id.ID) (types.Quantity, error) {
	var total types.Quantity
	_ = r.store.read(func(st *state) error {
		for _, e := range st.entries {
			if e.ProductID == productID && e.IsActive {
				total += e.Quantity
			}
		}
		return nil
	})
	return total, nil
}

// UpsertEntry implements stock.Repository.
func (r *StockRepo) UpsertEntry(ctx context.Context, seed stock.EntrySeed) (*entity.StockEntry, error) {
	var out entity.StockEntry
	err := r.store.write(ctx, func(st *state) error {
		if e, ok := st.entries[seed.Key]; ok {
			out = e
			return nil
		}
		now := time.Now().UTC()
		out = entity.StockEntry{
			ID:        id.New(),
			ProductID: seed.Key.ProductID,
			Variant:   seed.Key.Variant,
			BranchID:  seed.Key.BranchID,
			CostPrice: seed.CostPrice,
			IsActive:  seed.IsActive,
			SKU:       seed.SKU,
			Barcode:   seed.Barcode,
			CreatedAt: now,
			UpdatedAt: now,
		}
		st.entries[seed.Key] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Decrement implements stock.Repository.
func (r *StockRepo) Decrement(ctx context.Context, key entity.StockKey, qty types.Quantity, respectReservations bool) (*entity.StockEntry, bool, error) {
	e, ok, err := r.mutate(ctx, key, func(e *entity.StockEntry) bool {
		if e.Sellable(respectReservations) < qty || e.Quantity < qty {
			return false
		}
		e.Quantity -= qty
		touchMovement(e)
		return true
	})
	if apperror.IsNotFound(err) {
		return nil, false, nil
	}
	return e, ok, err
}

// Increment implements stock.Repository.
func (r *StockRepo) Increment(ctx context.Context, key entity.StockKey, delta types.Quantity, incomingCost *types.Money) (*entity.StockEntry, error) {
	e, _, err := r.mutate(ctx, key, func(e *entity.StockEntry) bool {
		if incomingCost != nil {
			e.CostPrice = stock.WeightedAverageCost(e.Quantity, e.CostPrice, delta, *incomingCost)
		}
		e.Quantity += delta
		touchMovement(e)
		return true
	})
	return e, err
}

// Compensate implements stock.Repository.
func (r *StockRepo) Compensate(ctx context.Context, key entity.StockKey, delta types.Quantity) error {
	_, _, err := r.mutate(ctx, key, func(e *entity.StockEntry) bool {
		e.Quantity = max(e.Quantity+delta, 0)
		e.NeedsReorder = entity.ComputeNeedsReorder(e.Quantity, e.ReorderPoint)
		return true
	})
	return err
}

// SetQuantity implements stock.Repository.
func (r *StockRepo) SetQuantity(ctx context.Context, key entity.StockKey, qty types.Quantity) (types.Quantity, *entity.StockEntry, error) {
	var prev types.Quantity
	e, _, err := r.mutate(ctx, key, func(e *entity.StockEntry) bool {
		prev = e.Quantity
		e.Quantity = qty
		touchMovement(e)
		return true
	})
	if err != nil {
		return 0, nil, err
	}
	return prev, e, nil
}

// SetCost implements stock.Repository.
func (r *StockRepo) SetCost(ctx context.Context, key entity.StockKey, cost types.Money) error {
	_, _, err := r.mutate(ctx, key, func(e *entity.StockEntry) bool {
		e.CostPrice = cost
		return true
	})
	return err
}

// AdjustReserved implements stock.Repository.
func (r *StockRepo) AdjustReserved(ctx context.Context, key entity.StockKey, delta types.Quantity) (*entity.StockEntry, bool, error) {
	e, ok, err := r.mutate(ctx, key, func(e *entity.StockEntry) bool {
		if delta > 0 && e.Quantity-e.ReservedQuantity < delta {
			return false
		}
		e.ReservedQuantity = max(e.ReservedQuantity+delta, 0)
		return true
	})
	if apperror.IsNotFound(err) {
		return nil, false, nil
	}
	return e, ok, err
}

// SetReorderLevels implements stock.Repository.
func (r *StockRepo) SetReorderLevels(ctx context.Context, key entity.StockKey, point, quantity types.Quantity) (*entity.StockEntry, error) {
	e, _, err := r.mutate(ctx, key, func(e *entity.StockEntry) bool {
		e.ReorderPoint = point
		e.ReorderQuantity = quantity
		e.NeedsReorder = entity.ComputeNeedsReorder(e.Quantity, point)
		return true
	})
	return e, err
}

// SetProductActive implements stock.Repository.
func (r *StockRepo) SetProductActive(ctx context.Context, productID id.ID, active bool, snapshot *string) (int64, error) {
	var n int64
	err := r.store.write(ctx, func(st *state) error {
		now := time.Now().UTC()
		for key, e := range st.entries {
			if e.ProductID != productID {
				continue
			}
			e.IsActive = active
			switch {
			case snapshot != nil:
				s := *snapshot
				e.DeletedProductSnapshot = &s
			case active:
				e.DeletedProductSnapshot = nil
			}
			e.UpdatedAt = now
			st.entries[key] = e
			n++
		}
		return nil
	})
	return n, err
}

// InsertMovements implements stock.Repository.
func (r *StockRepo) InsertMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	return r.store.write(ctx, func(st *state) error {
		st.movements = append(st.movements, movements...)
		return nil
	})
}

// ListMovements implements stock.Repository.
func (r *StockRepo) ListMovements(ctx context.Context, f stock.MovementFilter) ([]entity.StockMovement, error) {
	out := []entity.StockMovement{}
	_ = r.store.read(func(st *state) error {
		for _, m := range st.movements {
			switch {
			case f.ProductID != nil && m.ProductID != *f.ProductID,
				f.BranchID != nil && m.BranchID != *f.BranchID,
				f.Type != nil && m.Type != *f.Type,
				f.Reference != nil && m.Reference.Kind != f.Reference.Kind,
				f.Reference != nil && f.Reference.ID != "" && m.Reference.ID != f.Reference.ID,
				f.FromDate != nil && m.CreatedAt.Before(*f.FromDate),
				f.ToDate != nil && m.CreatedAt.After(*f.ToDate):
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b entity.StockMovement) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	return page(out, f.Offset, stock.NormalizedLimit(f.Limit)), nil
}

// DeleteExpiredMovements implements stock.Repository.
func (r *StockRepo) DeleteExpiredMovements(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.store.write(ctx, func(st *state) error {
		kept := make([]entity.StockMovement, 0, len(st.movements))
		for _, m := range st.movements {
			if m.ExpiresAt.Before(before) {
				n++
				continue
			}
			kept = append(kept, m)
		}
		st.movements = kept
		return nil
	})
	return n, err
}
