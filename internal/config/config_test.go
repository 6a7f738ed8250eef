package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars
	keys := []string{
		"REDIS_URL", "DATABASE_DRIVER", "SQLITE_PATH", "DB_NAME", "DB_HOST",
		"RPC_ENDPOINTS", "HELIUS_API_KEY", "HELIUS_BASE_URL",
		"RPC_MIN_INTERVAL", "ENHANCED_MIN_INTERVAL",
		"SIGNATURE_BATCH_SIZE", "ENHANCE_BATCH_SIZE", "SYNC_MAX_SIGNATURES",
		"FOLLOW_DELAY_SECONDS", "SLIPPAGE_MODEL", "STABLE_TO_SOL_RATE",
		"MIN_WORKERS", "MAX_WORKERS", "LOG_LEVEL", "METRICS_PORT",
	}
	originalVars := make(map[string]string, len(keys))
	for _, key := range keys {
		originalVars[key] = os.Getenv(key)
	}

	// Restore env vars after test
	defer func() {
		for key, value := range originalVars {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	clearAll := func() {
		for _, key := range keys {
			os.Unsetenv(key)
		}
	}

	setRequired := func() {
		os.Setenv("RPC_ENDPOINTS", "https://api.mainnet-beta.solana.com")
		os.Setenv("HELIUS_API_KEY", "test-key")
	}

	t.Run("successful load with all vars", func(t *testing.T) {
		clearAll()
		os.Setenv("REDIS_URL", "redis://localhost:6380")
		os.Setenv("DATABASE_DRIVER", "sqlite")
		os.Setenv("SQLITE_PATH", "test.db")
		os.Setenv("RPC_ENDPOINTS", "https://api.mainnet-beta.solana.com, https://rpc.ankr.com/solana")
		os.Setenv("HELIUS_API_KEY", "test-key")
		os.Setenv("SIGNATURE_BATCH_SIZE", "500")
		os.Setenv("ENHANCE_BATCH_SIZE", "50")
		os.Setenv("SYNC_MAX_SIGNATURES", "2000")
		os.Setenv("FOLLOW_DELAY_SECONDS", "10")
		os.Setenv("SLIPPAGE_MODEL", "aggressive")
		os.Setenv("STABLE_TO_SOL_RATE", "0.005")
		os.Setenv("MIN_WORKERS", "2")
		os.Setenv("MAX_WORKERS", "10")
		os.Setenv("LOG_LEVEL", "debug")
		os.Setenv("METRICS_PORT", "9090")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "redis://localhost:6380", cfg.RedisURL)
		assert.Equal(t, "sqlite", cfg.DatabaseDriver)
		assert.Equal(t, []string{"https://api.mainnet-beta.solana.com", "https://rpc.ankr.com/solana"}, cfg.RPCEndpoints)
		assert.Equal(t, "test-key", cfg.HeliusAPIKey)
		assert.Equal(t, 500, cfg.SignatureBatchSize)
		assert.Equal(t, 50, cfg.EnhanceBatchSize)
		assert.Equal(t, 2000, cfg.SyncMaxSignatures)
		assert.Equal(t, 10, cfg.FollowDelaySeconds)
		assert.Equal(t, "aggressive", cfg.SlippageModel)
		assert.Equal(t, 0.005, cfg.StableToSOLRate)
		assert.Equal(t, 2, cfg.MinWorkers)
		assert.Equal(t, 10, cfg.MaxWorkers)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "9090", cfg.MetricsPort)
	})

	t.Run("missing RPC endpoints", func(t *testing.T) {
		clearAll()
		os.Setenv("HELIUS_API_KEY", "test-key")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "RPC_ENDPOINTS environment variable is required")
	})

	t.Run("missing Helius API key", func(t *testing.T) {
		clearAll()
		os.Setenv("RPC_ENDPOINTS", "https://api.mainnet-beta.solana.com")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "HELIUS_API_KEY is required")
	})

	t.Run("invalid worker configuration", func(t *testing.T) {
		clearAll()
		setRequired()
		os.Setenv("MIN_WORKERS", "10")
		os.Setenv("MAX_WORKERS", "5") // Max less than min

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "MAX_WORKERS must be greater than or equal to MIN_WORKERS")
	})

	t.Run("invalid slippage model", func(t *testing.T) {
		clearAll()
		setRequired()
		os.Setenv("SLIPPAGE_MODEL", "yolo")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid SLIPPAGE_MODEL")
	})

	t.Run("negative stable rate rejected", func(t *testing.T) {
		clearAll()
		setRequired()
		os.Setenv("STABLE_TO_SOL_RATE", "-1")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "STABLE_TO_SOL_RATE must not be negative")
	})

	t.Run("postgres driver requires DSN fields", func(t *testing.T) {
		clearAll()
		setRequired()
		os.Setenv("DATABASE_DRIVER", "postgres")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "DB_NAME and DB_HOST are required")
	})

	t.Run("invalid log level", func(t *testing.T) {
		clearAll()
		setRequired()
		os.Setenv("LOG_LEVEL", "invalid")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid LOG_LEVEL")
	})

	t.Run("defaults are applied", func(t *testing.T) {
		clearAll()
		setRequired()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
		assert.Equal(t, "sqlite", cfg.DatabaseDriver)
		assert.Equal(t, "copytrail.db", cfg.SQLitePath)
		assert.Equal(t, "https://api.helius.xyz", cfg.HeliusBaseURL)
		assert.Equal(t, 1000, cfg.SignatureBatchSize)
		assert.Equal(t, 100, cfg.EnhanceBatchSize)
		assert.Equal(t, 5000, cfg.SyncMaxSignatures)
		assert.Equal(t, 5, cfg.FollowDelaySeconds)
		assert.Equal(t, "moderate", cfg.SlippageModel)
		assert.Equal(t, 0.01, cfg.StableToSOLRate)
		assert.Equal(t, 100*time.Millisecond, cfg.RPCMinInterval)
		assert.Equal(t, 600*time.Millisecond, cfg.EnhancedMinInterval)
		assert.Equal(t, 4, cfg.MinWorkers)
		assert.Equal(t, 50, cfg.MaxWorkers)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "9100", cfg.MetricsPort)
	})
}
