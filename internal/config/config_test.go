package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockledger/internal/core/tx"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.StorageDriver)
	require.Equal(t, tx.ModeAuto, cfg.TxMode)
	require.Equal(t, 30*time.Second, cfg.LookupCacheTTL)
	require.Equal(t, 1024, cfg.LookupCacheSize)
	require.Equal(t, 4, cfg.ProjectionMaxRetry)
	require.Equal(t, 3*365*24*time.Hour, cfg.MovementRetention)
	require.Equal(t, 30*time.Second, cfg.DBStatementTimeout)
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORAGE_DRIVER=memory\nTX_MODE=off\n"), 0o600))
	t.Setenv("TX_MODE", "on")
	t.Cleanup(func() { _ = os.Unsetenv("STORAGE_DRIVER") })

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.StorageDriver)
	require.Equal(t, tx.ModeOn, cfg.TxMode)
}

func TestLoad_Rejects(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := Load(missing)
		require.Error(t, err)
	})

	t.Run("unknown tx mode", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "memory")
		t.Setenv("TX_MODE", "maybe")
		_, err := Load(missing)
		require.Error(t, err)
	})

	t.Run("production without secret", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "memory")
		t.Setenv("APP_ENV", "production")
		t.Setenv("JWT_SECRET", "")
		_, err := Load(missing)
		require.Error(t, err)
	})
}
