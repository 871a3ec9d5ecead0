// Package expense_repo records purchase payments as expense transactions.
package expense_repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/expense"
	"stockledger/internal/infrastructure/storage/postgres"
)

const expenseTable = "expense_transactions"

// ExpenseRepo implements expense.Recorder over expense_transactions.
type ExpenseRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ expense.Recorder = (*ExpenseRepo)(nil)

// NewExpenseRepo creates a new expense recorder.
func NewExpenseRepo(txm *postgres.TxManager) *ExpenseRepo {
	return &ExpenseRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// RecordExpense inserts one transaction and returns its id. A repeated
// idempotency key returns the id of the first transaction.
func (r *ExpenseRepo) RecordExpense(ctx context.Context, e expense.Expense) (string, error) {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var key *string
	if k := e.Metadata[expense.MetadataIdempotencyKey]; k != "" {
		key = &k
	}

	txID := id.New()
	sql, args, err := r.builder.Insert(expenseTable).
		SetMap(map[string]any{
			"id":              txID,
			"amount":          e.Amount,
			"tax_amount":      e.TaxAmount,
			"category":        e.Category,
			"branch_id":       e.BranchID,
			"reference_kind":  e.Reference.Kind,
			"reference_id":    e.Reference.ID,
			"method":          e.Method,
			"description":     e.Description,
			"metadata":        metadata,
			"actor_id":        e.ActorID,
			"idempotency_key": key,
			"created_at":      at,
		}).
		Suffix("ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}

	q := r.txm.GetQuerier(ctx)
	var inserted id.ID
	err = q.QueryRow(ctx, sql, args...).Scan(&inserted)
	if err == nil {
		return inserted.String(), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || key == nil {
		return "", fmt.Errorf("insert expense: %w", err)
	}

	var existing id.ID
	if err := q.QueryRow(ctx, "SELECT id FROM "+expenseTable+" WHERE idempotency_key = $1", *key).Scan(&existing); err != nil {
		return "", fmt.Errorf("find expense by idempotency key: %w", err)
	}
	return existing.String(), nil
}
