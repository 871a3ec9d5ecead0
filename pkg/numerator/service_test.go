package numerator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "stockledger/internal/core/numerator"
)

// Mock objects
type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates the counter table. The mutex plays the role of the
// row lock taken by the upsert.
type mockQuerier struct {
	mu       sync.Mutex
	counters map[string]int64
	err      error
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{counters: make(map[string]int64)}
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return &mockRow{err: m.err}
	}

	key := args[0].(string) + ":" + args[1].(string)
	// SetSequence passes the new value as the third argument
	if len(args) == 3 {
		m.counters[key] = args[2].(int64)
		return &mockRow{val: m.counters[key]}
	}
	m.counters[key]++
	return &mockRow{val: m.counters[key]}
}

func TestNextSequence_StartsAtOne(t *testing.T) {
	svc := New(newMockQuerier())
	ctx := context.Background()

	n, err := svc.NextSequence(ctx, "CHN", "202501")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = svc.NextSequence(ctx, "CHN", "202501")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = svc.NextSequence(ctx, "CHN", "202502")
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "different period has its own counter")
}

func TestNextSequence_ConcurrentCallersGetDistinctGapFreeValues(t *testing.T) {
	svc := New(newMockQuerier())
	ctx := context.Background()

	const callers = 500
	results := make([]int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := svc.NextSequence(ctx, "REQ", "202501")
			assert.NoError(t, err)
			results[i] = n
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, n := range results {
		require.Equal(t, int64(i+1), n)
	}
}

func TestSetSequence_NextContinuesFromValue(t *testing.T) {
	svc := New(newMockQuerier())
	ctx := context.Background()

	require.NoError(t, svc.SetSequence(ctx, "SUP", corenumerator.GlobalPeriodKey, 41))
	n, err := svc.NextSequence(ctx, "SUP", corenumerator.GlobalPeriodKey)
	require.NoError(t, err)
	require.Equal(t, int64(42), n)
}

func TestNextSequence_WrapsQueryError(t *testing.T) {
	q := newMockQuerier()
	q.err = errors.New("connection reset")
	svc := New(q)

	_, err := svc.NextSequence(context.Background(), "PINV", "202501")
	require.ErrorIs(t, err, q.err)
}

func TestGetNextNumber_FormatsWithCounterStore(t *testing.T) {
	gen := corenumerator.New(NewFromContext(func(context.Context) Querier { return newMockQuerier() }))
	at := time.Date(2025, time.January, 9, 0, 0, 0, 0, time.UTC)

	num, err := gen.GetNextNumber(context.Background(), corenumerator.PurchaseNumbers, at)
	require.NoError(t, err)
	require.Equal(t, "PINV-202501-0001", num)
}
