package numerator

import (
	"context"
	"fmt"
	"time"
)

// Sequencer is the counter store: one atomic increment-and-read per call on
// the (type, periodKey) key. Concurrent callers for one key never observe the
// same value.
type Sequencer interface {
	// NextSequence increments the counter, creating it at 1, and returns the
	// new value.
	NextSequence(ctx context.Context, seqType, periodKey string) (int64, error)

	// SetSequence overwrites the counter (for migrations and seeding).
	SetSequence(ctx context.Context, seqType, periodKey string, value int64) error
}

// Generator generates sequential document numbers.
type Generator interface {
	GetNextNumber(ctx context.Context, cfg Config, at time.Time) (string, error)
}

// Service formats numbers on top of a Sequencer.
type Service struct {
	seq Sequencer
}

// Ensure compile-time interface compliance.
var _ Generator = (*Service)(nil)

// New creates a numbering service.
func New(seq Sequencer) *Service {
	return &Service{seq: seq}
}

// GetNextNumber issues the next number for cfg in the period containing at.
func (s *Service) GetNextNumber(ctx context.Context, cfg Config, at time.Time) (string, error) {
	n, err := s.seq.NextSequence(ctx, cfg.Prefix, cfg.PeriodKey(at))
	if err != nil {
		return "", fmt.Errorf("next %s sequence: %w", cfg.Prefix, err)
	}
	return cfg.Format(at, n), nil
}

// SetNextNumber makes the next issued number value+1.
func (s *Service) SetNextNumber(ctx context.Context, cfg Config, at time.Time, value int64) error {
	return s.seq.SetSequence(ctx, cfg.Prefix, cfg.PeriodKey(at), value)
}
