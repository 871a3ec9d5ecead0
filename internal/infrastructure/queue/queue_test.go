package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
)

func TestProjectionEnqueuer_SchedulesOneTaskPerProduct(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}

	enq := NewProjectionEnqueuer(opts, 4)
	t.Cleanup(func() { _ = enq.Close() })

	a, b := id.New(), id.New()
	enq.Schedule(context.Background(), a, b, a)

	inspector := asynq.NewInspector(opts)
	t.Cleanup(func() { _ = inspector.Close() })

	tasks, err := inspector.ListPendingTasks(QueueDefault)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	seen := map[id.ID]bool{}
	for _, info := range tasks {
		require.Equal(t, TaskProjectionSync, info.Type)
		require.Equal(t, 4, info.MaxRetry)
		var payload ProjectionSyncPayload
		require.NoError(t, json.Unmarshal(info.Payload, &payload))
		seen[payload.ProductID] = true
	}
	require.True(t, seen[a])
	require.True(t, seen[b])
}

type stubSyncer struct {
	err   error
	calls []id.ID
}

func (s *stubSyncer) Sync(_ context.Context, productID id.ID) error {
	s.calls = append(s.calls, productID)
	return s.err
}

type stubPurger struct {
	at      time.Time
	removed int64
}

func (p *stubPurger) PurgeExpiredMovements(_ context.Context, now time.Time) (int64, error) {
	p.at = now
	return p.removed, nil
}

type recordingMetrics struct {
	runs        []error
	deadLetters int
}

func (m *recordingMetrics) SyncRun(_ string, err error) { m.runs = append(m.runs, err) }
func (m *recordingMetrics) DeadLetter(string)           { m.deadLetters++ }

func TestHandleProjectionSync(t *testing.T) {
	syncer := &stubSyncer{}
	metrics := &recordingMetrics{}
	h := NewHandlers(syncer, &stubPurger{}, metrics)

	pid := id.New()
	task, err := NewProjectionSyncTask(pid, 4, 0)
	require.NoError(t, err)

	require.NoError(t, h.HandleProjectionSync(context.Background(), task))
	require.Equal(t, []id.ID{pid}, syncer.calls)
	require.Len(t, metrics.runs, 1)

	syncer.err = errors.New("catalog down")
	err = h.HandleProjectionSync(context.Background(), task)
	require.ErrorIs(t, err, syncer.err)
	require.Len(t, metrics.runs, 2)
}

func TestHandleProjectionSync_BadPayloadSkipsRetry(t *testing.T) {
	h := NewHandlers(&stubSyncer{}, &stubPurger{}, nil)

	err := h.HandleProjectionSync(context.Background(), asynq.NewTask(TaskProjectionSync, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleProjectionSync(context.Background(), asynq.NewTask(TaskProjectionSync, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleMovementRetention(t *testing.T) {
	purger := &stubPurger{removed: 12}
	h := NewHandlers(&stubSyncer{}, purger, nil)
	fixed := time.Date(2025, 3, 1, 4, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	task, err := NewMovementRetentionTask(fixed)
	require.NoError(t, err)
	require.NoError(t, h.HandleMovementRetention(context.Background(), task))
	require.Equal(t, fixed, purger.at)
}

func TestIsFinalAttempt(t *testing.T) {
	boom := errors.New("boom")
	require.False(t, isFinalAttempt(0, 4, boom))
	require.False(t, isFinalAttempt(3, 4, boom))
	require.True(t, isFinalAttempt(4, 4, boom))
	require.True(t, isFinalAttempt(0, 4, asynq.SkipRetry))
}
