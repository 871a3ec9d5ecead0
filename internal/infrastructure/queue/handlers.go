package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/projection"
	"stockledger/pkg/logger"
)

// MovementPurger deletes movements past their retention.
type MovementPurger interface {
	PurgeExpiredMovements(ctx context.Context, now time.Time) (int64, error)
}

// Handlers processes ledger tasks.
type Handlers struct {
	syncer  projection.Syncer
	purger  MovementPurger
	metrics projection.Metrics
	now     func() time.Time
}

// NewHandlers creates task handlers. metrics may be nil.
func NewHandlers(syncer projection.Syncer, purger MovementPurger, metrics projection.Metrics) *Handlers {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Handlers{syncer: syncer, purger: purger, metrics: metrics, now: time.Now}
}

// HandleProjectionSync processes TaskProjectionSync. A malformed payload is
// archived without retry.
func (h *Handlers) HandleProjectionSync(ctx context.Context, t *asynq.Task) error {
	var payload ProjectionSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || id.IsNil(payload.ProductID) {
		return fmt.Errorf("decode projection payload: %w", asynq.SkipRetry)
	}
	err := h.syncer.Sync(ctx, payload.ProductID)
	h.metrics.SyncRun("asynq", err)
	return err
}

// HandleMovementRetention processes TaskMovementRetention.
func (h *Handlers) HandleMovementRetention(ctx context.Context, t *asynq.Task) error {
	removed, err := h.purger.PurgeExpiredMovements(ctx, h.now().UTC())
	if err != nil {
		return fmt.Errorf("purge movements: %w", err)
	}
	logger.Info(ctx, "expired movements purged", "removed", removed)
	return nil
}

type nopMetrics struct{}

func (nopMetrics) SyncRun(string, error) {}
func (nopMetrics) DeadLetter(string)     {}
