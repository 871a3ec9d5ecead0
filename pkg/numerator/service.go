// Package numerator provides the PostgreSQL counter store behind document
// auto-numbering.
package numerator

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	corenumerator "stockledger/internal/core/numerator"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service is a Sequencer over the inventory_counters table.
type Service struct {
	// staticQuerier is used when no provider is set
	staticQuerier Querier
	// provider returns the querier bound to ctx (active transaction or pool)
	provider func(ctx context.Context) Querier
}

// Ensure compile-time interface compliance.
var _ corenumerator.Sequencer = (*Service)(nil)

// New creates a counter store with a static querier.
// Use for tooling or testing scenarios.
func New(querier Querier) *Service {
	return &Service{staticQuerier: querier}
}

// NewFromContext creates a counter store that resolves its querier per call,
// so increments join the caller's transaction when there is one.
func NewFromContext(provider func(ctx context.Context) Querier) *Service {
	return &Service{provider: provider}
}

func (s *Service) getQuerier(ctx context.Context) Querier {
	if s.provider != nil {
		return s.provider(ctx)
	}
	return s.staticQuerier
}

// NextSequence performs one atomic upsert-and-return. The row lock taken by
// ON CONFLICT DO UPDATE serializes concurrent callers on the same key, so each
// receives a distinct value with no gaps.
func (s *Service) NextSequence(ctx context.Context, seqType, periodKey string) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("numerator service is not initialized")
	}
	var num int64
	err := s.getQuerier(ctx).QueryRow(ctx, `
        INSERT INTO inventory_counters (type, period_key, seq)
        VALUES ($1, $2, 1)
        ON CONFLICT (type, period_key) DO UPDATE SET seq = inventory_counters.seq + 1
        RETURNING seq
	`, seqType, periodKey).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s/%s: %w", seqType, periodKey, err)
	}
	return num, nil
}

// SetSequence overwrites the counter value (for migration purposes).
func (s *Service) SetSequence(ctx context.Context, seqType, periodKey string, value int64) error {
	var result int64
	err := s.getQuerier(ctx).QueryRow(ctx, `
		INSERT INTO inventory_counters (type, period_key, seq)
		VALUES ($1, $2, $3)
		ON CONFLICT (type, period_key) DO UPDATE SET seq = $3
		RETURNING seq
	`, seqType, periodKey, value).Scan(&result)
	if err != nil {
		return fmt.Errorf("set sequence %s/%s: %w", seqType, periodKey, err)
	}
	return nil
}
