package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"stockledger/internal/domain/projection"
	"stockledger/pkg/logger"
)

// RetentionCron runs the movement purge once a day.
const RetentionCron = "@daily"

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisConnOpt
	Logger      *logger.Logger
	Handlers    *Handlers
	Retry       projection.RetryPolicy
	Concurrency int

	// RetentionCron overrides the purge schedule; "-" disables it.
	RetentionCron string
}

// Worker wraps the asynq server and its scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

// NewWorker constructs a Worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Handlers == nil {
		return nil, errors.New("queue: handlers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Retry == (projection.RetryPolicy{}) {
		cfg.Retry = projection.DefaultRetryPolicy
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	log := cfg.Logger.WithComponent("queue")

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{QueueDefault: 1},
		Logger:      log,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return cfg.Retry.Delay(n + 1)
		},
		ErrorHandler: deadLetterHandler(cfg.Handlers.metrics),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProjectionSync, cfg.Handlers.HandleProjectionSync)
	mux.HandleFunc(TaskMovementRetention, cfg.Handlers.HandleMovementRetention)

	var scheduler *asynq.Scheduler
	spec := cfg.RetentionCron
	if spec == "" {
		spec = RetentionCron
	}
	if spec != "-" {
		task, err := NewMovementRetentionTask(time.Now().UTC())
		if err != nil {
			return nil, err
		}
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC, Logger: log})
		if _, err := scheduler.Register(spec, task); err != nil {
			return nil, err
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, log: log}, nil
}

// deadLetterHandler reports tasks that asynq is about to archive.
func deadLetterHandler(metrics projection.Metrics) asynq.ErrorHandlerFunc {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if !isFinalAttempt(retried, maxRetry, err) {
			logger.Warn(ctx, "task failed, will retry",
				"task_type", task.Type(),
				"retried", retried,
				"error", err,
			)
			return
		}
		if task.Type() == TaskProjectionSync {
			metrics.DeadLetter("asynq")
		}
		logger.Error(ctx, "task archived",
			"task_type", task.Type(),
			"retried", retried,
			"payload", string(task.Payload()),
			"error", err,
		)
	}
}

func isFinalAttempt(retried, maxRetry int, err error) bool {
	return errors.Is(err, asynq.SkipRetry) || retried >= maxRetry
}

// Run starts processing jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return err
		}
	}
	w.log.Infow("worker started", "queue", QueueDefault)

	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return ctx.Err()
}
