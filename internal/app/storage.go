// Package app assembles storage drivers and services for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"stockledger/internal/config"
	"stockledger/internal/core/id"
	"stockledger/internal/core/idempotency"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/directory"
	"stockledger/internal/domain/documents/purchase"
	"stockledger/internal/domain/documents/stock_request"
	"stockledger/internal/domain/documents/transfer"
	"stockledger/internal/domain/expense"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/metrics"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/document_repo"
	"stockledger/internal/infrastructure/storage/postgres/expense_repo"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
	"stockledger/internal/infrastructure/storage/postgres/report_repo"
	"stockledger/pkg/logger"
	pgnumerator "stockledger/pkg/numerator"
)

// ProductStore is the product directory plus the id listing used by resyncs.
type ProductStore interface {
	directory.ProductDirectory
	ListIDs(ctx context.Context) ([]id.ID, error)
}

// CatalogWriter stores branches and products. Only seeding writes the
// catalog; it is owned by another service in production.
type CatalogWriter interface {
	SaveBranch(ctx context.Context, b *directory.Branch) error
	SaveProduct(ctx context.Context, p *directory.Product) error
}

// Storage is one storage driver's set of repositories.
type Storage struct {
	Driver string

	TxManager     tx.Manager
	Branches      directory.BranchDirectory
	Products      ProductStore
	Catalog       CatalogWriter
	Stock         stock.Repository
	Transfers     transfer.Repository
	Purchases     purchase.Repository
	StockRequests stock_request.Repository
	Reports       reports.Repository
	Expenses      expense.Recorder
	Sequencer     numerator.Sequencer
	Idempotency   idempotency.Store

	// Pool is the PostgreSQL pool, nil for the memory driver
	Pool *pgxpool.Pool

	// Ping reports whether the backing database answers
	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStorage opens the driver selected by cfg. The transaction capability is
// decided here, once.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		return NewMemoryStorage(cfg.TxMode, cfg.IdempotencyTTL), nil
	case config.DriverPostgres:
		return NewPostgresStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// NewMemoryStorage builds the in-memory driver. ModeOff makes it behave like a
// database without transactions.
func NewMemoryStorage(mode tx.Mode, idempotencyTTL time.Duration) *Storage {
	store := memory.New(memory.Options{SupportsTransactions: mode != tx.ModeOff})
	branches := memory.NewBranchDirectory(store)
	products := memory.NewProductDirectory(store)
	return &Storage{
		Driver:        config.DriverMemory,
		TxManager:     memory.NewTxManager(store),
		Branches:      branches,
		Products:      products,
		Catalog:       memoryCatalog{branches: branches, products: products},
		Stock:         memory.NewStockRepo(store),
		Transfers:     memory.NewTransferRepo(store),
		Purchases:     memory.NewPurchaseRepo(store),
		StockRequests: memory.NewStockRequestRepo(store),
		Reports:       memory.NewReportRepo(store),
		Expenses:      memory.NewExpenseRecorder(store),
		Sequencer:     memory.NewSequencer(store),
		Idempotency:   memory.NewIdempotencyStore(store, idempotencyTTL),
		Ping:          func(context.Context) error { return nil },
		Close:         func() {},
	}
}

// NewPostgresStorage connects, optionally migrates and probes the database.
func NewPostgresStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg.DBAutoMigrate {
		if err := MigrateUp(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = cfg.DBMaxConns
	}
	poolCfg.StatementTimeout = cfg.DBStatementTimeout
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	postgres.LogPoolStats(ctx, pool)

	txm := postgres.NewTxManager(ctx, pool, cfg.TxMode)
	branches := catalog_repo.NewBranchRepo(txm)
	products := catalog_repo.NewProductRepo(txm)

	return &Storage{
		Driver:        config.DriverPostgres,
		TxManager:     txm,
		Branches:      branches,
		Products:      products,
		Catalog:       postgresCatalog{branches: branches, products: products},
		Stock:         register_repo.NewStockRepo(txm),
		Transfers:     document_repo.NewTransferRepo(txm),
		Purchases:     document_repo.NewPurchaseRepo(txm),
		StockRequests: document_repo.NewStockRequestRepo(txm),
		Reports:       report_repo.NewReportRepo(txm),
		Expenses:      expense_repo.NewExpenseRepo(txm),
		Sequencer: pgnumerator.NewFromContext(func(ctx context.Context) pgnumerator.Querier {
			return txm.GetQuerier(ctx)
		}),
		Idempotency: postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL),
		Pool:        pool,
		Ping:        pool.Ping,
		Close:       pool.Close,
	}, nil
}

// RegisterMetrics exports pool gauges for the postgres driver.
func (s *Storage) RegisterMetrics(reg prometheus.Registerer) error {
	if s.Pool == nil {
		return nil
	}
	return reg.Register(metrics.NewPoolCollector(s.Pool))
}

// MigrateUp applies the embedded migrations.
func MigrateUp(ctx context.Context, databaseURL string) error {
	m, err := postgres.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn(ctx, "close migrator", "error", err)
		}
	}()
	return m.Up(ctx)
}

type memoryCatalog struct {
	branches *memory.BranchDirectory
	products *memory.ProductDirectory
}

func (c memoryCatalog) SaveBranch(ctx context.Context, b *directory.Branch) error {
	return c.branches.Put(ctx, b)
}

func (c memoryCatalog) SaveProduct(ctx context.Context, p *directory.Product) error {
	return c.products.Put(ctx, p)
}

type postgresCatalog struct {
	branches *catalog_repo.BranchRepo
	products *catalog_repo.ProductRepo
}

func (c postgresCatalog) SaveBranch(ctx context.Context, b *directory.Branch) error {
	return c.branches.Create(ctx, b)
}

func (c postgresCatalog) SaveProduct(ctx context.Context, p *directory.Product) error {
	return c.products.Create(ctx, p)
}
