package stock

import (
	"context"
	"errors"
	"fmt"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

// undoLog records compensating steps for work applied outside a transaction.
// A nil log ignores pushes; it is used when the store rolls back on its own.
type undoLog struct {
	steps []func(ctx context.Context) error
}

func (u *undoLog) push(step func(ctx context.Context) error) {
	if u == nil {
		return
	}
	u.steps = append(u.steps, step)
}

func (u *undoLog) len() int {
	if u == nil {
		return 0
	}
	return len(u.steps)
}

// rollback runs the steps newest first. Every step is attempted.
func (u *undoLog) rollback(ctx context.Context) error {
	var errs []error
	for i := len(u.steps) - 1; i >= 0; i-- {
		if err := u.steps[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// batchState is the per-call scratchpad of a ledger operation.
type batchState struct {
	undo    *undoLog
	touched []*entity.StockEntry
	alerts  bool
}

func (b *batchState) touch(e *entity.StockEntry) {
	if e != nil {
		b.touched = append(b.touched, e)
	}
}

// runBatch executes fn atomically. With transaction support the store rolls
// back on error. Without it fn runs step by step and the recorded undo steps
// are applied in reverse order when fn fails.
//
// On success the post-commit work (cache invalidation, alerts, projection) is
// attached to the outermost transaction. On failure touched entries are still
// dropped from the lookup cache.
func (s *Service) runBatch(ctx context.Context, op string, fn func(ctx context.Context, b *batchState) error) error {
	b := &batchState{}
	if !s.txm.SupportsTransactions() {
		b.undo = &undoLog{}
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := fn(ctx, b); err != nil {
			return err
		}
		tx.AfterCommit(ctx, func(ctx context.Context) { s.afterCommit(ctx, b) })
		return nil
	})
	if err == nil {
		return nil
	}
	defer s.invalidate(b.touched)
	if b.undo.len() == 0 {
		return err
	}

	// Compensation must finish even if the request was cancelled.
	cctx := context.WithoutCancel(ctx)
	steps := b.undo.len()
	if cerr := b.undo.rollback(cctx); cerr != nil {
		logger.Error(ctx, "stock compensation failed",
			"op", op,
			"steps", steps,
			"error", cerr,
			"original_error", err,
		)
		return fmt.Errorf("%w (compensation failed: %v)", err, cerr)
	}
	s.metrics.Compensated(op, steps)
	logger.Warn(ctx, "stock batch compensated",
		"op", op,
		"steps", steps,
		"error", err,
	)
	return err
}

// afterCommit runs once the change is durable.
func (s *Service) afterCommit(ctx context.Context, b *batchState) {
	s.invalidate(b.touched)

	seen := make(map[id.ID]struct{}, len(b.touched))
	products := make([]id.ID, 0, len(b.touched))
	for _, e := range b.touched {
		if b.alerts {
			if a, ok := alertFor(e); ok {
				s.alerts.StockAlert(ctx, a)
			}
		}
		if _, dup := seen[e.ProductID]; !dup {
			seen[e.ProductID] = struct{}{}
			products = append(products, e.ProductID)
		}
	}
	if len(products) > 0 {
		s.projection.Schedule(ctx, products...)
	}
}

func (s *Service) invalidate(entries []*entity.StockEntry) {
	if s.cache == nil {
		return
	}
	for _, e := range entries {
		s.cache.InvalidateEntry(e)
	}
}
