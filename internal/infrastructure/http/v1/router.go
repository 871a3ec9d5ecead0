// Package v1 provides HTTP API version 1.
package v1

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"stockledger/internal/core/idempotency"
	"stockledger/internal/domain/documents/purchase"
	"stockledger/internal/domain/documents/stock_request"
	"stockledger/internal/domain/documents/transfer"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// Permission required for the report endpoints.
const PermissionReports = "reports.read"

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Idempotency backs X-Idempotency-Key; nil disables the middleware
	Idempotency idempotency.Store

	// Policy evaluates the transfer grants of the caller
	Policy handlers.GrantPolicy

	Stock         *stock.Service
	Availability  *stock.AvailabilityService
	Transfers     *transfer.Service
	Purchases     *purchase.Service
	StockRequests *stock_request.Service
	Reports       *reports.Service

	// HealthChecks run on /health/ready
	HealthChecks map[string]handlers.CheckFunc
	Info         map[string]any

	// Metrics is served on /metrics when set
	Metrics http.Handler

	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := RegisterValidators(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!). Recovery runs inside ErrorHandler so
	// a recovered panic is still rendered.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks, cfg.Info)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator))
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()

	Mount(api, "/stock", handlers.NewStockHandler(base, cfg.Stock, cfg.Availability), "")
	Mount(api, "/transfers", handlers.NewTransferHandler(base, cfg.Transfers, cfg.Policy), "")
	Mount(api, "/purchases", handlers.NewPurchaseHandler(base, cfg.Purchases), "")
	Mount(api, "/stock-requests", handlers.NewStockRequestHandler(base, cfg.StockRequests, cfg.Policy), "")

	if cfg.Reports != nil {
		reportHandler := handlers.NewReportsHandler(base, cfg.Reports)
		reportsGroup := api.Group("/reports", middleware.RequirePermission(PermissionReports))
		reportsGroup.GET("/turnover", reportHandler.GetStockTurnover)
		reportsGroup.GET("/journal", reportHandler.GetDocumentJournal)
	}

	return router, nil
}

// Compress wraps h with gzip response compression for bodies of 1 KiB and up.
func Compress(h http.Handler) (http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(1024))
	if err != nil {
		return nil, fmt.Errorf("gzip wrapper: %w", err)
	}
	return wrap(h), nil
}
