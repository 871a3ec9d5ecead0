package projection

import (
	"context"
	"sync"
	"time"

	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// DefaultLocalQueueSize bounds the in-process queue.
const DefaultLocalQueueSize = 1024

// LocalOptions configures a LocalScheduler.
type LocalOptions struct {
	QueueSize int
	Retry     RetryPolicy
	Metrics   Metrics
}

// LocalScheduler runs projection syncs in-process on one background
// goroutine. It is used when no Redis queue is configured.
//
// A product already waiting in the queue is not queued twice. When the queue
// is full the schedule is dropped and logged; the next change to the product
// schedules it again.
type LocalScheduler struct {
	syncer  Syncer
	retry   RetryPolicy
	metrics Metrics

	queue   chan id.ID
	mu      sync.Mutex
	pending map[id.ID]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewLocalScheduler creates a scheduler. Call Start before scheduling.
func NewLocalScheduler(syncer Syncer, opts LocalOptions) *LocalScheduler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultLocalQueueSize
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &LocalScheduler{
		syncer:  syncer,
		retry:   opts.Retry,
		metrics: opts.Metrics,
		queue:   make(chan id.ID, opts.QueueSize),
		pending: make(map[id.ID]struct{}),
	}
}

// Schedule implements stock.ProjectionScheduler. It never blocks.
func (s *LocalScheduler) Schedule(ctx context.Context, productIDs ...id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pid := range productIDs {
		if _, queued := s.pending[pid]; queued {
			continue
		}
		select {
		case s.queue <- pid:
			s.pending[pid] = struct{}{}
		default:
			logger.Warn(ctx, "projection queue full, dropping sync", "product_id", pid)
		}
	}
}

// Start launches the consumer. It stops when ctx is done or Stop is called.
func (s *LocalScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

// Stop cancels the consumer and waits for it to exit. Queued syncs that did
// not start are discarded.
func (s *LocalScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *LocalScheduler) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pid := <-s.queue:
			s.mu.Lock()
			delete(s.pending, pid)
			s.mu.Unlock()
			s.syncWithRetry(ctx, pid)
		}
	}
}

func (s *LocalScheduler) syncWithRetry(ctx context.Context, productID id.ID) {
	for attempt := 0; ; attempt++ {
		err := s.syncer.Sync(ctx, productID)
		s.metrics.SyncRun("local", err)
		if err == nil {
			return
		}
		if attempt >= s.retry.MaxRetry {
			s.metrics.DeadLetter("local")
			logger.Error(ctx, "projection sync gave up",
				"product_id", productID,
				"attempts", attempt+1,
				"error", err,
			)
			return
		}

		t := time.NewTimer(s.retry.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}
