// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"stockledger/internal/core/security"
	"stockledger/internal/core/tx"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds runtime configuration shared by the binaries.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	AppAddr         string        `envconfig:"APP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"15s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	StorageDriver      string        `envconfig:"STORAGE_DRIVER" default:"postgres"`
	DatabaseURL        string        `envconfig:"DATABASE_URL"`
	DBMaxConns         int32         `envconfig:"DB_MAX_CONNS" default:"20"`
	DBStatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"30s"`
	DBAutoMigrate      bool          `envconfig:"DB_AUTO_MIGRATE" default:"false"`
	TxModeRaw          string        `envconfig:"TX_MODE" default:"auto"`
	RedisAddr          string        `envconfig:"REDIS_ADDR"`
	RedisPassword      string        `envconfig:"REDIS_PASSWORD"`
	WorkerCapacity     int           `envconfig:"WORKER_CONCURRENCY" default:"5"`
	WorkerMetrics      string        `envconfig:"WORKER_METRICS_ADDR" default:":9091"`

	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"stockledger"`

	LookupCacheTTL     time.Duration `envconfig:"LOOKUP_CACHE_TTL" default:"30s"`
	LookupCacheSize    int           `envconfig:"LOOKUP_CACHE_SIZE" default:"1024"`
	MovementRetention  time.Duration `envconfig:"MOVEMENT_RETENTION" default:"26280h"`
	ProjectionMaxRetry int           `envconfig:"PROJECTION_MAX_RETRY" default:"4"`
	IdempotencyTTL     time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	TransferSubToSubRule  string `envconfig:"TRANSFER_SUB_TO_SUB_RULE" default:"is_admin || 'transfers.sub_to_sub' in permissions"`
	TransferSubToHeadRule string `envconfig:"TRANSFER_SUB_TO_HEAD_RULE" default:"is_admin || 'transfers.sub_to_head' in permissions"`

	TxMode tx.Mode `ignored:"true"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	mode, err := tx.ParseMode(c.TxModeRaw)
	if err != nil {
		return err
	}
	c.TxMode = mode

	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be provided for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}

	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be provided in production")
	}
	if c.ProjectionMaxRetry < 0 {
		return errors.New("PROJECTION_MAX_RETRY must not be negative")
	}
	return nil
}

// PolicyRules returns the CEL access rules keyed by rule name.
func (c *Config) PolicyRules() map[string]string {
	return map[string]string{
		security.RuleTransferSubToSub:  c.TransferSubToSubRule,
		security.RuleTransferSubToHead: c.TransferSubToHeadRule,
	}
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// IsDevelopment enables pretty logs and gin debug mode.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}
