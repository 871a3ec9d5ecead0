// Package queue runs the ledger's background work on asynq: quantity
// projection syncs and the movement retention purge.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"stockledger/internal/core/id"
)

const (
	// QueueDefault is the queue every ledger task goes to.
	QueueDefault = "default"

	// TaskProjectionSync recomputes the quantity projection of one product.
	TaskProjectionSync = "stock:projection_sync"
	// TaskMovementRetention purges movements past their retention.
	TaskMovementRetention = "stock:movement_retention"
)

// DefaultUniqueWindow collapses repeated syncs of a product enqueued close
// together into one task.
const DefaultUniqueWindow = 5 * time.Second

// ProjectionSyncPayload identifies the product to resync.
type ProjectionSyncPayload struct {
	ProductID id.ID `json:"product_id"`
}

// NewProjectionSyncTask constructs a projection sync task.
func NewProjectionSyncTask(productID id.ID, maxRetry int, unique time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(ProjectionSyncPayload{ProductID: productID})
	if err != nil {
		return nil, fmt.Errorf("marshal projection payload: %w", err)
	}
	opts := []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(maxRetry)}
	if unique > 0 {
		opts = append(opts, asynq.Unique(unique))
	}
	return asynq.NewTask(TaskProjectionSync, body, opts...), nil
}

// MovementRetentionPayload carries scheduling metadata.
type MovementRetentionPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewMovementRetentionTask constructs a retention purge task.
func NewMovementRetentionTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(MovementRetentionPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMovementRetention, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
