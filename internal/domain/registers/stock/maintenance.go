package stock

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// ReservationInput is the input of Reserve and Release.
type ReservationInput struct {
	ProductID id.ID          `json:"productId"`
	Variant   entity.Variant `json:"variant,omitempty"`
	BranchID  id.ID          `json:"branchId"`
	Quantity  types.Quantity `json:"quantity"`
}

func (in ReservationInput) key() entity.StockKey {
	return entity.StockKey{ProductID: in.ProductID, Variant: in.Variant, BranchID: in.BranchID}
}

func (in ReservationInput) validate() error {
	if id.IsNil(in.ProductID) || id.IsNil(in.BranchID) {
		return apperror.NewValidation("product and branch are required")
	}
	if !in.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity").
			WithDetail("value", in.Quantity.String())
	}
	return nil
}

// Reserve holds quantity for a checkout. It fails with INSUFFICIENT_STOCK when
// the unreserved quantity cannot cover it. Reservations write no movement.
func (s *Service) Reserve(ctx context.Context, in ReservationInput) (*entity.StockEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	key := in.key()

	var entry *entity.StockEntry
	err := s.runBatch(ctx, "reserve", func(ctx context.Context, b *batchState) error {
		e, ok, err := s.repo.AdjustReserved(ctx, key, in.Quantity)
		if err != nil {
			return fmt.Errorf("reserve %s: %w", key, err)
		}
		if !ok {
			var available types.Quantity
			if e != nil {
				available = e.Available()
			}
			s.metrics.ShortageRejected("reserve")
			return apperror.NewInsufficientStock(
				in.ProductID.String(), string(in.Variant),
				in.Quantity.String(), available.String(),
			)
		}
		b.touch(e)
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Release gives back reserved quantity, never dropping below zero.
func (s *Service) Release(ctx context.Context, in ReservationInput) (*entity.StockEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	key := in.key()

	var entry *entity.StockEntry
	err := s.runBatch(ctx, "release", func(ctx context.Context, b *batchState) error {
		e, ok, err := s.repo.AdjustReserved(ctx, key, in.Quantity.Neg())
		if err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		if !ok || e == nil {
			return apperror.NewNotFound("stock entry", key.String())
		}
		b.touch(e)
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// AdjustmentLine is one line of a bulk adjustment. With Absolute set, Quantity
// is the new on-hand quantity; otherwise it is a signed delta.
type AdjustmentLine struct {
	ProductID id.ID          `json:"productId"`
	Variant   entity.Variant `json:"variant,omitempty"`
	BranchID  id.ID          `json:"branchId"`
	Quantity  types.Quantity `json:"quantity"`
	Absolute  bool           `json:"absolute"`
	Reason    string         `json:"reason,omitempty"`
}

// BulkAdjustInput is the input of BulkAdjust.
type BulkAdjustInput struct {
	BatchID string
	Lines   []AdjustmentLine
	Reason  string
	ActorID string
}

// AdjustmentResult is the outcome of one bulk line.
type AdjustmentResult struct {
	Line  int                `json:"line"`
	OK    bool               `json:"ok"`
	Entry *entity.StockEntry `json:"entry,omitempty"`
	Error *apperror.AppError `json:"error,omitempty"`
}

// BulkAdjust applies every line on its own. A failing line is reported in its
// result and does not stop or undo the others.
func (s *Service) BulkAdjust(ctx context.Context, in BulkAdjustInput) []AdjustmentResult {
	ref := entity.AdjustmentRef(in.BatchID)
	results := make([]AdjustmentResult, len(in.Lines))
	failed := 0
	for i, line := range in.Lines {
		reason := line.Reason
		if reason == "" {
			reason = in.Reason
		}
		entry, err := s.adjustLine(ctx, line, ref, reason, in.ActorID)
		results[i] = AdjustmentResult{Line: i, OK: err == nil, Entry: entry}
		if err != nil {
			failed++
			appErr, ok := apperror.AsAppError(err)
			if !ok {
				appErr = apperror.NewInternal(err)
			}
			results[i].Error = appErr
		}
	}

	logger.Info(ctx, "bulk stock adjustment applied",
		"batch_id", in.BatchID,
		"lines", len(in.Lines),
		"failed", failed,
	)
	return results
}

func (s *Service) adjustLine(ctx context.Context, line AdjustmentLine, ref entity.Reference, reason, actorID string) (*entity.StockEntry, error) {
	if line.Absolute {
		res, err := s.SetStock(ctx, SetStockInput{
			ProductID: line.ProductID,
			Variant:   line.Variant,
			BranchID:  line.BranchID,
			Quantity:  line.Quantity,
			Reason:    reason,
			ActorID:   actorID,
			Reference: &ref,
		})
		if err != nil {
			return nil, err
		}
		return res.Entry, nil
	}

	in := BatchInput{
		BranchID:     line.BranchID,
		Reference:    ref,
		ActorID:      actorID,
		Note:         reason,
		MovementType: entity.MovementAdjustment,
		Items: []Item{{
			ProductID: line.ProductID,
			Variant:   line.Variant,
			Quantity:  line.Quantity.Abs(),
		}},
	}

	var (
		res *BatchResult
		err error
	)
	switch {
	case line.Quantity.IsPositive():
		res, err = s.RestoreBatch(ctx, in)
	case line.Quantity.IsNegative():
		res, err = s.DecrementBatch(ctx, in)
	default:
		return nil, apperror.NewValidation("adjustment quantity must not be zero")
	}
	if err != nil {
		return nil, err
	}
	return s.repo.GetEntry(ctx, res.Items[0].Key)
}

// SetReorderLevels updates the reorder point and quantity of an entry.
func (s *Service) SetReorderLevels(ctx context.Context, key entity.StockKey, point, quantity types.Quantity) (*entity.StockEntry, error) {
	if point.IsNegative() || quantity.IsNegative() {
		return nil, apperror.NewValidation("reorder levels must not be negative")
	}
	var entry *entity.StockEntry
	err := s.runBatch(ctx, "reorder", func(ctx context.Context, b *batchState) error {
		b.alerts = true
		if _, err := s.ensureEntry(ctx, key); err != nil {
			return err
		}
		e, err := s.repo.SetReorderLevels(ctx, key, point, quantity)
		if err != nil {
			return fmt.Errorf("set reorder levels %s: %w", key, err)
		}
		b.touch(e)
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DeactivateProduct marks every entry of a deleted product inactive and keeps
// a description of it for historical reports.
func (s *Service) DeactivateProduct(ctx context.Context, productID id.ID, snapshot string) (int64, error) {
	var snap *string
	if snapshot != "" {
		snap = &snapshot
	}
	return s.setProductActive(ctx, productID, false, snap)
}

// ActivateProduct marks every entry of a product active again.
func (s *Service) ActivateProduct(ctx context.Context, productID id.ID) (int64, error) {
	return s.setProductActive(ctx, productID, true, nil)
}

func (s *Service) setProductActive(ctx context.Context, productID id.ID, active bool, snapshot *string) (int64, error) {
	var n int64
	err := s.runBatch(ctx, "product_active", func(ctx context.Context, b *batchState) error {
		var err error
		n, err = s.repo.SetProductActive(ctx, productID, active, snapshot)
		if err != nil {
			return fmt.Errorf("set product active: %w", err)
		}
		entries, err := s.repo.ListEntries(ctx, EntryFilter{ProductID: &productID, Limit: 1000})
		if err != nil {
			return fmt.Errorf("list entries: %w", err)
		}
		for i := range entries {
			b.touch(&entries[i])
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info(ctx, "product stock activity changed",
		"product_id", productID,
		"active", active,
		"entries", n,
	)
	return n, nil
}
