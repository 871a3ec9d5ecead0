// Package main is the entry point for the stock ledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/internal/core/security"
	"stockledger/internal/domain/auth"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/metrics"
	"stockledger/internal/infrastructure/queue"
	"stockledger/pkg/logger"
)

// devJWTSecret is used outside production when JWT_SECRET is empty.
const devJWTSecret = "stockledger-dev-secret"

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
		log.Fatalw("server failed", "error", err)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Infow("starting stockledger server", "env", cfg.AppEnv, "storage", cfg.StorageDriver)

	// --- Storage ---
	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()
	log.Infow("storage ready",
		"driver", storage.Driver,
		"transactions", storage.TxManager.SupportsTransactions(),
	)

	// --- Services ---
	m := metrics.New(nil)
	if err := storage.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}
	opts := app.ServiceOptions{
		LookupCacheSize: cfg.LookupCacheSize,
		LookupCacheTTL:  cfg.LookupCacheTTL,
		Retention:       cfg.MovementRetention,
		Metrics:         m,
	}
	checks := map[string]handlers.CheckFunc{"database": storage.Ping}
	if app.RedisEnabled(cfg) {
		enqueuer := queue.NewProjectionEnqueuer(app.AsynqRedis(cfg), cfg.ProjectionMaxRetry)
		defer enqueuer.Close()
		opts.Scheduler = enqueuer

		rdb := app.NewRedisClient(cfg)
		defer rdb.Close()
		checks["redis"] = app.RedisCheck(rdb)
	}
	svc := app.NewServices(storage, opts)
	svc.Start(ctx)
	defer svc.Stop()

	// --- Auth ---
	secret := cfg.JWTSecret
	if secret == "" {
		log.Warn("JWT_SECRET is empty, using the development secret")
		secret = devJWTSecret
	}
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(secret, cfg.JWTIssuer))

	policy, err := security.NewPolicy(cfg.PolicyRules())
	if err != nil {
		return fmt.Errorf("compile access rules: %w", err)
	}

	// --- Router ---
	router, err := v1.NewRouter(v1.RouterConfig{
		Logger:        log,
		JWTValidator:  jwtService,
		Idempotency:   storage.Idempotency,
		Policy:        policy,
		Stock:         svc.Stock,
		Availability:  svc.Availability,
		Transfers:     svc.Transfers,
		Purchases:     svc.Purchases,
		StockRequests: svc.StockRequests,
		Reports:       svc.Reports,
		HealthChecks:  checks,
		Info: map[string]any{
			"service":      "stockledger",
			"storage":      storage.Driver,
			"transactions": storage.TxManager.SupportsTransactions(),
			"queue":        app.RedisEnabled(cfg),
		},
		Metrics:     promhttp.Handler(),
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		return err
	}
	handler, err := v1.Compress(router)
	if err != nil {
		return err
	}

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", cfg.AppAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
