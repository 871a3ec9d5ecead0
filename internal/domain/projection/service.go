// Package projection keeps the per-product quantity projection on the product
// catalog in step with the ledger. Sync is idempotent: it always writes the
// current total, so retries and duplicate schedules are harmless.
package projection

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/directory"
	"stockledger/pkg/logger"
)

// Ledger totals active stock of a product over all branches.
type Ledger interface {
	SumQuantity(ctx context.Context, productID id.ID) (types.Quantity, error)
}

// Syncer recomputes the projection of one product.
type Syncer interface {
	Sync(ctx context.Context, productID id.ID) error
}

// Service recomputes projections.
type Service struct {
	ledger   Ledger
	products directory.ProductDirectory
}

var _ Syncer = (*Service)(nil)

// NewService creates the projection service.
func NewService(ledger Ledger, products directory.ProductDirectory) *Service {
	return &Service{ledger: ledger, products: products}
}

// Sync writes the current cross-branch total to the product.
func (s *Service) Sync(ctx context.Context, productID id.ID) error {
	total, err := s.ledger.SumQuantity(ctx, productID)
	if err != nil {
		return fmt.Errorf("sum quantity: %w", err)
	}
	if err := s.products.UpdateQuantityProjection(ctx, productID, total); err != nil {
		return fmt.Errorf("update projection: %w", err)
	}
	logger.Debug(ctx, "quantity projection synced",
		"product_id", productID,
		"total", total.String(),
	)
	return nil
}

// ProductLister enumerates every product for a full resync.
type ProductLister interface {
	ListIDs(ctx context.Context) ([]id.ID, error)
}

// SyncAll resyncs every product and returns how many failed. It stops early
// only when ctx is done.
func (s *Service) SyncAll(ctx context.Context, products ProductLister) (synced, failed int, err error) {
	ids, err := products.ListIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list products: %w", err)
	}
	for _, pid := range ids {
		if err := ctx.Err(); err != nil {
			return synced, failed, err
		}
		if err := s.Sync(ctx, pid); err != nil {
			failed++
			logger.Warn(ctx, "projection sync failed", "product_id", pid, "error", err)
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// RetryPolicy bounds the retries of a failed sync.
type RetryPolicy struct {
	MaxRetry  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy retries four times starting at one second.
var DefaultRetryPolicy = RetryPolicy{MaxRetry: 4, BaseDelay: time.Second, MaxDelay: time.Minute}

// Delay returns the wait before retry number n (1-based): BaseDelay doubled
// per attempt and capped at MaxDelay.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BaseDelay
	for i := 1; i < n && d < p.MaxDelay; i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Metrics receives sync outcomes.
type Metrics interface {
	SyncRun(source string, err error)
	DeadLetter(source string)
}

type noopMetrics struct{}

func (noopMetrics) SyncRun(string, error) {}
func (noopMetrics) DeadLetter(string)     {}
