// Package memory is the in-process storage driver. It backs the test suites
// and the STORAGE_DRIVER=memory mode of the binaries.
//
// All data lives in one state value guarded by mu. Writes never mutate a
// stored slice or value in place, so a transaction snapshot is a shallow copy
// of the maps and rollback swaps the snapshot back in.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/idempotency"
	"stockledger/internal/domain/directory"
	"stockledger/internal/domain/documents/purchase"
	"stockledger/internal/domain/documents/stock_request"
	"stockledger/internal/domain/documents/transfer"
	"stockledger/internal/domain/expense"
)

type counterKey struct {
	seqType   string
	periodKey string
}

type expenseRecord struct {
	ID string
	expense.Expense
}

type state struct {
	entries   map[entity.StockKey]entity.StockEntry
	movements []entity.StockMovement

	branches map[id.ID]directory.Branch
	products map[id.ID]directory.Product

	transfers *docTable[transfer.Transfer, transfer.Line]
	purchases *docTable[purchase.Purchase, purchase.Line]
	requests  *docTable[stock_request.StockRequest, stock_request.Line]

	counters    map[counterKey]int64
	expenses    []expenseRecord
	idempotency map[string]idempotency.Record
}

func newState() *state {
	return &state{
		entries:     map[entity.StockKey]entity.StockEntry{},
		branches:    map[id.ID]directory.Branch{},
		products:    map[id.ID]directory.Product{},
		transfers:   newDocTable[transfer.Transfer, transfer.Line](),
		purchases:   newDocTable[purchase.Purchase, purchase.Line](),
		requests:    newDocTable[stock_request.StockRequest, stock_request.Line](),
		counters:    map[counterKey]int64{},
		idempotency: map[string]idempotency.Record{},
	}
}

func (s *state) snapshot() *state {
	return &state{
		entries:     maps.Clone(s.entries),
		movements:   slices.Clip(s.movements),
		branches:    maps.Clone(s.branches),
		products:    maps.Clone(s.products),
		transfers:   s.transfers.snapshot(),
		purchases:   s.purchases.snapshot(),
		requests:    s.requests.snapshot(),
		counters:    maps.Clone(s.counters),
		expenses:    slices.Clip(s.expenses),
		idempotency: maps.Clone(s.idempotency),
	}
}

// Options configures a Store.
type Options struct {
	// SupportsTransactions selects snapshot transactions. When false the
	// store behaves like a database without multi-statement atomicity and
	// callers take the compensating path.
	SupportsTransactions bool
}

// Store is the in-memory database.
type Store struct {
	// txMu serializes transactions; mu guards state for single operations.
	txMu sync.Mutex
	mu   sync.RWMutex

	state      *state
	supportsTx bool
}

// New creates an empty store.
func New(opts Options) *Store {
	return &Store{
		state:      newState(),
		supportsTx: opts.SupportsTransactions,
	}
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

// read runs fn under the read lock.
func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// write runs fn under the write lock. With transaction support, a write made
// outside any transaction also waits for running transactions so a rollback
// never discards it.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if s.supportsTx && !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}
