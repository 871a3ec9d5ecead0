package memory

import (
	"context"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/expense"
)

// ExpenseRecorder implements expense.Recorder.
type ExpenseRecorder struct {
	store *Store
}

var _ expense.Recorder = (*ExpenseRecorder)(nil)

// NewExpenseRecorder creates an expense recorder on store.
func NewExpenseRecorder(store *Store) *ExpenseRecorder {
	return &ExpenseRecorder{store: store}
}

// RecordExpense implements expense.Recorder.
func (r *ExpenseRecorder) RecordExpense(ctx context.Context, e expense.Expense) (string, error) {
	if !e.Amount.IsPositive() {
		return "", apperror.NewValidation("expense amount must be positive")
	}
	txID := id.New().String()
	key := e.Metadata[expense.MetadataIdempotencyKey]
	err := r.store.write(ctx, func(st *state) error {
		if key != "" {
			for _, rec := range st.expenses {
				if rec.Expense.Metadata[expense.MetadataIdempotencyKey] == key {
					txID = rec.ID
					return nil
				}
			}
		}
		st.expenses = append(st.expenses, expenseRecord{ID: txID, Expense: e})
		return nil
	})
	if err != nil {
		return "", err
	}
	return txID, nil
}

// Expenses returns the recorded expenses in insertion order.
func (r *ExpenseRecorder) Expenses() []expense.Expense {
	var out []expense.Expense
	_ = r.store.read(func(st *state) error {
		for _, rec := range st.expenses {
			out = append(out, rec.Expense)
		}
		return nil
	})
	return out
}
