package projection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/directory"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/storage/memory"
)

func TestService_SyncWritesActiveTotal(t *testing.T) {
	ctx := context.Background()
	store := memory.New(memory.Options{SupportsTransactions: true})
	products := memory.NewProductDirectory(store)
	repo := memory.NewStockRepo(store)

	p := directory.NewProduct("SKU-1", "Tea", types.MustMoney("2.50"))
	require.NoError(t, products.Put(ctx, p))

	for _, qty := range []int64{3, 4} {
		key := entity.StockKey{ProductID: p.ID, BranchID: id.New()}
		_, err := repo.UpsertEntry(ctx, stock.EntrySeed{Key: key, IsActive: true})
		require.NoError(t, err)
		_, err = repo.Increment(ctx, key, types.NewQuantity(qty), nil)
		require.NoError(t, err)
	}
	inactive := entity.StockKey{ProductID: p.ID, BranchID: id.New()}
	_, err := repo.UpsertEntry(ctx, stock.EntrySeed{Key: inactive})
	require.NoError(t, err)
	_, err = repo.Increment(ctx, inactive, types.NewQuantity(100), nil)
	require.NoError(t, err)

	ledger := stock.NewService(repo, products, memory.NewTxManager(store), stock.Config{})
	svc := NewService(ledger, products)
	require.NoError(t, svc.Sync(ctx, p.ID))

	got, err := products.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, types.NewQuantity(7), got.TotalQuantity)

	synced, failed, err := svc.SyncAll(ctx, products)
	require.NoError(t, err)
	require.Equal(t, 1, synced)
	require.Zero(t, failed)
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxRetry: 4, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	require.Equal(t, time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 4*time.Second, p.Delay(3))
	require.Equal(t, 5*time.Second, p.Delay(4))
	require.Equal(t, 5*time.Second, p.Delay(10))
}

type flakySyncer struct {
	mu       sync.Mutex
	failures int
	calls    map[id.ID]int
	done     chan id.ID
}

func (f *flakySyncer) Sync(ctx context.Context, productID id.ID) error {
	f.mu.Lock()
	f.calls[productID]++
	n := f.calls[productID]
	f.mu.Unlock()
	if n <= f.failures {
		return errors.New("catalog unavailable")
	}
	f.done <- productID
	return nil
}

type countingMetrics struct {
	mu          sync.Mutex
	runs        int
	deadLetters int
}

func (m *countingMetrics) SyncRun(string, error) {
	m.mu.Lock()
	m.runs++
	m.mu.Unlock()
}

func (m *countingMetrics) DeadLetter(string) {
	m.mu.Lock()
	m.deadLetters++
	m.mu.Unlock()
}

func TestLocalScheduler_RetriesUntilSuccess(t *testing.T) {
	syncer := &flakySyncer{failures: 2, calls: map[id.ID]int{}, done: make(chan id.ID, 1)}
	metrics := &countingMetrics{}
	s := NewLocalScheduler(syncer, LocalOptions{
		Retry:   RetryPolicy{MaxRetry: 4, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Metrics: metrics,
	})
	s.Start(context.Background())
	defer s.Stop()

	pid := id.New()
	s.Schedule(context.Background(), pid)

	select {
	case got := <-syncer.done:
		require.Equal(t, pid, got)
	case <-time.After(2 * time.Second):
		t.Fatal("sync did not complete")
	}
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Equal(t, 3, metrics.runs)
	require.Zero(t, metrics.deadLetters)
}

type failingSyncer struct {
	calls chan struct{}
}

func (f *failingSyncer) Sync(context.Context, id.ID) error {
	f.calls <- struct{}{}
	return errors.New("down")
}

func TestLocalScheduler_GivesUpAfterMaxRetry(t *testing.T) {
	syncer := &failingSyncer{calls: make(chan struct{}, 10)}
	metrics := &countingMetrics{}
	s := NewLocalScheduler(syncer, LocalOptions{
		Retry:   RetryPolicy{MaxRetry: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Metrics: metrics,
	})
	s.Start(context.Background())

	s.Schedule(context.Background(), id.New())
	require.Eventually(t, func() bool {
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		return metrics.deadLetters == 1
	}, 2*time.Second, time.Millisecond)
	s.Stop()

	require.Len(t, syncer.calls, 3)
}

func TestLocalScheduler_DeduplicatesQueuedProducts(t *testing.T) {
	s := NewLocalScheduler(&failingSyncer{calls: make(chan struct{}, 10)}, LocalOptions{QueueSize: 4})
	pid := id.New()

	// Not started: everything stays queued.
	s.Schedule(context.Background(), pid, pid, pid)
	require.Len(t, s.queue, 1)

	for range 10 {
		s.Schedule(context.Background(), id.New())
	}
	require.Len(t, s.queue, 4)
}
