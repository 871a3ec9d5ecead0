package app

import (
	"context"
	"time"

	"stockledger/internal/core/numerator"
	"stockledger/internal/domain/documents/purchase"
	"stockledger/internal/domain/documents/stock_request"
	"stockledger/internal/domain/documents/transfer"
	"stockledger/internal/domain/projection"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/metrics"
)

// ServiceOptions tunes NewServices. Zero values pick the defaults.
type ServiceOptions struct {
	LookupCacheSize int
	LookupCacheTTL  time.Duration
	Retention       time.Duration
	Retry           projection.RetryPolicy

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Scheduler queues projection syncs. When nil an in-process
	// LocalScheduler is created and must be started by the caller.
	Scheduler stock.ProjectionScheduler
}

// Services is the assembled domain layer.
type Services struct {
	Numerator     *numerator.Service
	Cache         *stock.LookupCache
	Stock         *stock.Service
	Availability  *stock.AvailabilityService
	Projection    *projection.Service
	Local         *projection.LocalScheduler
	Transfers     *transfer.Service
	Purchases     *purchase.Service
	StockRequests *stock_request.Service
	Reports       *reports.Service
}

// NewServices wires every service over st.
func NewServices(st *Storage, opts ServiceOptions) *Services {
	svc := &Services{
		Numerator:    numerator.New(st.Sequencer),
		Cache:        stock.NewLookupCache(opts.LookupCacheSize, opts.LookupCacheTTL),
		Availability: stock.NewAvailabilityService(st.Stock),
		Reports:      reports.NewService(st.Reports),
	}
	svc.Projection = projection.NewService(svc.Availability, st.Products)

	scheduler := opts.Scheduler
	if scheduler == nil {
		local := projection.LocalOptions{Retry: opts.Retry}
		if opts.Metrics != nil {
			local.Metrics = opts.Metrics
		}
		svc.Local = projection.NewLocalScheduler(svc.Projection, local)
		scheduler = svc.Local
	}

	cfg := stock.Config{
		Cache:      svc.Cache,
		Projection: scheduler,
		Retention:  opts.Retention,
	}
	if opts.Metrics != nil {
		cfg.Metrics = opts.Metrics
	}
	svc.Stock = stock.NewService(st.Stock, st.Products, st.TxManager, cfg)

	svc.Transfers = transfer.NewService(st.Transfers, svc.Stock, st.Branches, st.Products, svc.Numerator, st.TxManager)
	svc.Purchases = purchase.NewService(st.Purchases, svc.Stock, st.Branches, st.Products, st.Expenses, svc.Numerator, st.TxManager)
	svc.StockRequests = stock_request.NewService(st.StockRequests, svc.Stock, svc.Transfers, st.Branches, st.Products, svc.Numerator, st.TxManager)
	return svc
}

// Start runs the in-process scheduler, if there is one.
func (s *Services) Start(ctx context.Context) {
	if s.Local != nil {
		s.Local.Start(ctx)
	}
}

// Stop drains the in-process scheduler.
func (s *Services) Stop() {
	if s.Local != nil {
		s.Local.Stop()
	}
}
