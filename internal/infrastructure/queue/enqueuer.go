package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/registers/stock"
	"stockledger/pkg/logger"
)

// ProjectionEnqueuer schedules projection syncs on the asynq queue.
type ProjectionEnqueuer struct {
	client   *asynq.Client
	maxRetry int
	unique   time.Duration
}

var _ stock.ProjectionScheduler = (*ProjectionEnqueuer)(nil)

// NewProjectionEnqueuer creates an enqueuer over redisOpts.
func NewProjectionEnqueuer(redisOpts asynq.RedisConnOpt, maxRetry int) *ProjectionEnqueuer {
	return &ProjectionEnqueuer{
		client:   asynq.NewClient(redisOpts),
		maxRetry: maxRetry,
		unique:   DefaultUniqueWindow,
	}
}

// Schedule implements stock.ProjectionScheduler. A product already waiting
// inside the unique window is skipped silently; other failures are logged and
// the next change to the product schedules it again.
func (e *ProjectionEnqueuer) Schedule(ctx context.Context, productIDs ...id.ID) {
	for _, pid := range productIDs {
		task, err := NewProjectionSyncTask(pid, e.maxRetry, e.unique)
		if err != nil {
			logger.Error(ctx, "build projection task", "product_id", pid, "error", err)
			continue
		}
		if _, err := e.client.EnqueueContext(ctx, task); err != nil {
			if errors.Is(err, asynq.ErrDuplicateTask) {
				continue
			}
			logger.Warn(ctx, "enqueue projection sync failed", "product_id", pid, "error", err)
		}
	}
}

// Close releases client resources.
func (e *ProjectionEnqueuer) Close() error {
	return e.client.Close()
}
