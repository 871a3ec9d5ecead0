package memory

import (
	"context"

	"stockledger/internal/core/numerator"
)

// Sequencer implements numerator.Sequencer.
type Sequencer struct {
	store *Store
}

var _ numerator.Sequencer = (*Sequencer)(nil)

// NewSequencer creates a counter store on store.
func NewSequencer(store *Store) *Sequencer {
	return &Sequencer{store: store}
}

// NextSequence implements numerator.Sequencer.
func (s *Sequencer) NextSequence(ctx context.Context, seqType, periodKey string) (int64, error) {
	var n int64
	err := s.store.write(ctx, func(st *state) error {
		k := counterKey{seqType: seqType, periodKey: periodKey}
		st.counters[k]++
		n = st.counters[k]
		return nil
	})
	return n, err
}

// SetSequence implements numerator.Sequencer.
func (s *Sequencer) SetSequence(ctx context.Context, seqType, periodKey string, value int64) error {
	return s.store.write(ctx, func(st *state) error {
		st.counters[counterKey{seqType: seqType, periodKey: periodKey}] = value
		return nil
	})
}
