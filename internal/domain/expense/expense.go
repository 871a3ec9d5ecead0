// Package expense defines the port to the accounting module that records
// monetary expense transactions.
package expense

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MetadataIdempotencyKey holds a key that recorders use to return the
// transaction already recorded for the same key instead of a new one.
const MetadataIdempotencyKey = "idempotency_key"

// Categories used by the workflow engines.
const (
	CategoryPurchase = "purchase"
)

// Expense is one monetary outflow.
type Expense struct {
	Amount      types.Money       `json:"amount"`
	TaxAmount   types.Money       `json:"taxAmount"`
	Category    string            `json:"category"`
	BranchID    id.ID             `json:"branchId"`
	Reference   entity.Reference  `json:"reference"`
	Method      string            `json:"method,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ActorID     string            `json:"actorId,omitempty"`
	At          time.Time         `json:"at"`
}

// Recorder creates expense transactions. Callers keep only the returned id;
// the transaction itself is owned by the accounting module.
type Recorder interface {
	RecordExpense(ctx context.Context, e Expense) (transactionID string, err error)
}
