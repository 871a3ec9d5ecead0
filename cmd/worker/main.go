// Package main is the entry point for the stock ledger background worker.
// It processes projection syncs and the daily movement purge from Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/internal/domain/projection"
	"stockledger/internal/infrastructure/metrics"
	"stockledger/internal/infrastructure/queue"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Fatalw("worker failed", "error", err)
	}
	log.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !app.RedisEnabled(cfg) {
		return errors.New("REDIS_ADDR must be set for the worker")
	}
	log.Infow("starting stockledger worker", "storage", cfg.StorageDriver, "concurrency", cfg.WorkerCapacity)

	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	m := metrics.New(nil)
	if err := storage.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}

	// Syncs run here; the worker never schedules them itself.
	enqueuer := queue.NewProjectionEnqueuer(app.AsynqRedis(cfg), cfg.ProjectionMaxRetry)
	defer enqueuer.Close()
	svc := app.NewServices(storage, app.ServiceOptions{
		Retention: cfg.MovementRetention,
		Metrics:   m,
		Scheduler: enqueuer,
	})

	retry := projection.DefaultRetryPolicy
	retry.MaxRetry = cfg.ProjectionMaxRetry

	worker, err := queue.NewWorker(queue.WorkerConfig{
		RedisOpts:   app.AsynqRedis(cfg),
		Logger:      log,
		Handlers:    queue.NewHandlers(svc.Projection, svc.Stock, m),
		Retry:       retry,
		Concurrency: cfg.WorkerCapacity,
	})
	if err != nil {
		return err
	}

	// Metrics endpoint for the dead-letter and sync counters.
	metricsServer := &http.Server{Addr: cfg.WorkerMetrics, Handler: promhttp.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnw("metrics server stopped", "error", err)
		}
	}()
	defer metricsServer.Close()

	return worker.Run(ctx)
}
