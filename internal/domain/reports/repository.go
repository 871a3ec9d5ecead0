package reports

import (
	"context"
)

// Repository defines report data access interface.
type Repository interface {
	// Turnover aggregates movements per stock entry over the period.
	Turnover(ctx context.Context, filter TurnoverFilter) ([]TurnoverRow, error)

	// Journal returns one page of documents, newest first, and the total count.
	Journal(ctx context.Context, filter JournalFilter) ([]JournalItem, int64, error)

	// JournalSummary totals the documents matching filter per kind.
	JournalSummary(ctx context.Context, filter JournalFilter) ([]KindSummary, error)
}
