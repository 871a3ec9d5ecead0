package memory

import (
	"context"

	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

// TxManager implements tx.Manager over a Store.
type TxManager struct {
	store *Store
}

var _ tx.Manager = (*TxManager)(nil)

// NewTxManager returns the transaction manager of store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// SupportsTransactions implements tx.Manager.
func (m *TxManager) SupportsTransactions() bool {
	return m.store.supportsTx
}

// RunInTransaction implements tx.Manager. Nested calls join the outer scope.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	scoped, runHooks := tx.WithCommitHooks(context.WithValue(ctx, txKey{}, true))
	if !m.store.supportsTx {
		if err := fn(scoped); err != nil {
			return err
		}
		runHooks(ctx)
		return nil
	}

	if err := m.runAtomic(scoped, fn); err != nil {
		return err
	}
	runHooks(ctx)
	return nil
}

func (m *TxManager) runAtomic(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	s := m.store
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := s.state.snapshot()
	s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
			logger.Debug(ctx, "memory transaction rolled back", "error", err)
		}
	}()
	return fn(ctx)
}

func (s *Store) restore(snap *state) {
	s.mu.Lock()
	s.state = snap
	s.mu.Unlock()
}
