package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/documents/transfer"
	"stockledger/internal/domain/registers/stock"
)

func seedEntry(t *testing.T, repo *StockRepo, qty int64) entity.StockKey {
	t.Helper()
	ctx := context.Background()
	key := entity.StockKey{ProductID: id.New(), BranchID: id.New()}
	_, err := repo.UpsertEntry(ctx, stock.EntrySeed{Key: key, IsActive: true})
	require.NoError(t, err)
	_, err = repo.Increment(ctx, key, types.NewQuantity(qty), nil)
	require.NoError(t, err)
	return key
}

func TestTxManager_RollbackRestoresState(t *testing.T) {
	store := New(Options{SupportsTransactions: true})
	txm := NewTxManager(store)
	repo := NewStockRepo(store)
	key := seedEntry(t, repo, 5)

	boom := errors.New("boom")
	err := txm.RunInTransaction(context.Background(), func(ctx context.Context) error {
		_, ok, err := repo.Decrement(ctx, key, types.NewQuantity(3), false)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	e, err := repo.GetEntry(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, types.NewQuantity(5), e.Quantity)
}

func TestTxManager_WithoutTransactionsKeepsPartialWork(t *testing.T) {
	store := New(Options{})
	txm := NewTxManager(store)
	require.False(t, txm.SupportsTransactions())
	repo := NewStockRepo(store)
	key := seedEntry(t, repo, 5)

	_ = txm.RunInTransaction(context.Background(), func(ctx context.Context) error {
		_, _, err := repo.Decrement(ctx, key, types.NewQuantity(3), false)
		require.NoError(t, err)
		return errors.New("boom")
	})

	e, err := repo.GetEntry(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, types.NewQuantity(2), e.Quantity)
}

func TestTxManager_HooksRunAfterOutermostCommit(t *testing.T) {
	store := New(Options{SupportsTransactions: true})
	txm := NewTxManager(store)

	var calls []string
	err := txm.RunInTransaction(context.Background(), func(ctx context.Context) error {
		require.True(t, tx.InTransaction(ctx))
		return txm.RunInTransaction(ctx, func(ctx context.Context) error {
			tx.AfterCommit(ctx, func(ctx context.Context) {
				require.False(t, tx.InTransaction(ctx))
				calls = append(calls, "inner")
			})
			require.Empty(t, calls)
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, []string{"inner"}, calls)

	calls = nil
	_ = txm.RunInTransaction(context.Background(), func(ctx context.Context) error {
		tx.AfterCommit(ctx, func(context.Context) { calls = append(calls, "dropped") })
		return errors.New("rollback")
	})
	require.Empty(t, calls)
}

func TestStockRepo_DecrementNeverGoesNegative(t *testing.T) {
	store := New(Options{})
	repo := NewStockRepo(store)
	key := seedEntry(t, repo, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Decrement(context.Background(), key, types.NewQuantity(1), false)
			if err == nil && ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	e, err := repo.GetEntry(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, 10, succeeded)
	require.Equal(t, types.Quantity(0), e.Quantity)
}

func TestStockRepo_FindByCodePrefersBarcode(t *testing.T) {
	store := New(Options{})
	repo := NewStockRepo(store)
	ctx := context.Background()
	branch := id.New()

	bySKU := entity.StockKey{ProductID: id.New(), BranchID: branch}
	byBarcode := entity.StockKey{ProductID: id.New(), BranchID: branch}
	_, err := repo.UpsertEntry(ctx, stock.EntrySeed{Key: bySKU, IsActive: true, SKU: "4006381333931"})
	require.NoError(t, err)
	_, err = repo.UpsertEntry(ctx, stock.EntrySeed{Key: byBarcode, IsActive: true, Barcode: "4006381333931"})
	require.NoError(t, err)

	e, err := repo.FindByCode(ctx, "4006381333931", branch)
	require.NoError(t, err)
	require.Equal(t, byBarcode.ProductID, e.ProductID)

	_, err = repo.FindByCode(ctx, "4006381333931", id.New())
	require.True(t, apperror.IsNotFound(err))
}

func TestDocRepo_UpdateChecksVersion(t *testing.T) {
	store := New(Options{SupportsTransactions: true})
	repo := NewTransferRepo(store)
	ctx := context.Background()

	doc := &transfer.Transfer{Document: entity.NewDocument(), Status: transfer.StatusDraft}
	doc.Number = "CHN-202501-0001"
	require.NoError(t, repo.Create(ctx, doc))

	dup := &transfer.Transfer{Document: entity.NewDocument()}
	dup.Number = doc.Number
	require.True(t, apperror.HasCode(repo.Create(ctx, dup), apperror.CodeDuplicate))

	first, err := repo.GetForUpdate(ctx, doc.ID)
	require.NoError(t, err)
	stale, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)

	first.Status = transfer.StatusApproved
	require.NoError(t, repo.Update(ctx, first))

	stale.Status = transfer.StatusCancelled
	require.True(t, apperror.IsConcurrentModification(repo.Update(ctx, stale)))

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusApproved, got.Status)
	require.Equal(t, doc.Version+1, got.Version)
}

func TestSequencer_ConcurrentCallersGetDistinctValues(t *testing.T) {
	store := New(Options{SupportsTransactions: true})
	seq := NewSequencer(store)

	const n = 500
	values := make(chan int64, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := seq.NextSequence(context.Background(), "CHN", "202501")
			if err == nil {
				values <- v
			}
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[int64]bool, n)
	for v := range values {
		require.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
	}
	require.Len(t, seen, n)
	for i := int64(1); i <= n; i++ {
		require.True(t, seen[i], "gap at %d", i)
	}
}
