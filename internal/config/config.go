package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for copytrail
type Config struct {
	// Redis configuration
	RedisURL string

	// Database configuration
	DatabaseDriver string // "sqlite" or "postgres"
	SQLitePath     string
	DBName         string
	DBHost         string
	DBUser         string
	DBPassword     string
	DBPort         string
	DBSSLMode      string

	// Provider configuration
	RPCEndpoints        []string
	HeliusAPIKey        string
	HeliusBaseURL       string
	RPCMinInterval      time.Duration
	EnhancedMinInterval time.Duration

	// Sync configuration
	SignatureBatchSize int
	EnhanceBatchSize   int
	SyncMaxSignatures  int

	// Follow simulation configuration
	FollowDelaySeconds int
	SlippageModel      string

	// StableToSOLRate converts intermediate (stablecoin) flow to a SOL
	// magnitude when a swap has no native leg. The upstream heuristic is a
	// fixed divide-by-100; it drifts with the SOL price, so it is exposed
	// here rather than hard-coded. Set to 0 to skip trades in that branch.
	StableToSOLRate float64

	// Worker configuration
	MinWorkers int
	MaxWorkers int

	// Logging configuration
	LogLevel string

	// Metrics configuration
	MetricsPort string
}

// Load reads configuration from environment variables and validates it
func Load() (Config, error) {
	cfg := Config{
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		SQLitePath:     getEnv("SQLITE_PATH", "copytrail.db"),
		DBName:         getEnv("DB_NAME", ""),
		DBHost:         getEnv("DB_HOST", ""),
		DBUser:         getEnv("DB_USER", ""),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		HeliusAPIKey:   getEnv("HELIUS_API_KEY", ""),
		HeliusBaseURL:  getEnv("HELIUS_BASE_URL", "https://api.helius.xyz"),
		SlippageModel:  getEnv("SLIPPAGE_MODEL", "moderate"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MetricsPort:    getEnv("METRICS_PORT", "9100"),
	}

	// Parse RPC endpoints
	rpcEndpointsStr := getEnv("RPC_ENDPOINTS", "")
	if rpcEndpointsStr == "" {
		return cfg, fmt.Errorf("RPC_ENDPOINTS environment variable is required")
	}
	cfg.RPCEndpoints = strings.Split(rpcEndpointsStr, ",")
	for i, endpoint := range cfg.RPCEndpoints {
		cfg.RPCEndpoints[i] = strings.TrimSpace(endpoint)
	}

	var err error
	cfg.MinWorkers, err = parseIntEnv("MIN_WORKERS", 4)
	if err != nil {
		return cfg, fmt.Errorf("invalid MIN_WORKERS: %w", err)
	}

	cfg.MaxWorkers, err = parseIntEnv("MAX_WORKERS", 50)
	if err != nil {
		return cfg, fmt.Errorf("invalid MAX_WORKERS: %w", err)
	}

	cfg.SignatureBatchSize, err = parseIntEnv("SIGNATURE_BATCH_SIZE", 1000)
	if err != nil {
		return cfg, fmt.Errorf("invalid SIGNATURE_BATCH_SIZE: %w", err)
	}

	cfg.EnhanceBatchSize, err = parseIntEnv("ENHANCE_BATCH_SIZE", 100)
	if err != nil {
		return cfg, fmt.Errorf("invalid ENHANCE_BATCH_SIZE: %w", err)
	}

	cfg.SyncMaxSignatures, err = parseIntEnv("SYNC_MAX_SIGNATURES", 5000)
	if err != nil {
		return cfg, fmt.Errorf("invalid SYNC_MAX_SIGNATURES: %w", err)
	}

	cfg.FollowDelaySeconds, err = parseIntEnv("FOLLOW_DELAY_SECONDS", 5)
	if err != nil {
		return cfg, fmt.Errorf("invalid FOLLOW_DELAY_SECONDS: %w", err)
	}

	cfg.StableToSOLRate, err = parseFloatEnv("STABLE_TO_SOL_RATE", 0.01)
	if err != nil {
		return cfg, fmt.Errorf("invalid STABLE_TO_SOL_RATE: %w", err)
	}

	cfg.RPCMinInterval, err = parseDurationEnv("RPC_MIN_INTERVAL", 100*time.Millisecond)
	if err != nil {
		return cfg, fmt.Errorf("invalid RPC_MIN_INTERVAL: %w", err)
	}

	cfg.EnhancedMinInterval, err = parseDurationEnv("ENHANCED_MIN_INTERVAL", 600*time.Millisecond)
	if err != nil {
		return cfg, fmt.Errorf("invalid ENHANCED_MIN_INTERVAL: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that the configuration is valid
func (c Config) validate() error {
	switch c.DatabaseDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DATABASE_DRIVER=sqlite")
		}
	case "postgres":
		if c.DBName == "" || c.DBHost == "" {
			return fmt.Errorf("DB_NAME and DB_HOST are required when DATABASE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be sqlite or postgres)", c.DatabaseDriver)
	}

	if c.HeliusAPIKey == "" {
		return fmt.Errorf("HELIUS_API_KEY is required")
	}

	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}

	if c.MinWorkers < 1 {
		return fmt.Errorf("MIN_WORKERS must be at least 1")
	}

	if c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("MAX_WORKERS must be greater than or equal to MIN_WORKERS")
	}

	switch c.SlippageModel {
	case "conservative", "moderate", "aggressive":
	default:
		return fmt.Errorf("invalid SLIPPAGE_MODEL: %s (must be one of: conservative, moderate, aggressive)", c.SlippageModel)
	}

	if c.FollowDelaySeconds < 0 {
		return fmt.Errorf("FOLLOW_DELAY_SECONDS must not be negative")
	}

	if c.StableToSOLRate < 0 {
		return fmt.Errorf("STABLE_TO_SOL_RATE must not be negative")
	}

	validLogLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be one of: trace, debug, info, warn, error, fatal, panic)", c.LogLevel)
	}

	return nil
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an integer environment variable with a default value
func parseIntEnv(key string, defaultValue int) (int, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(str)
}

// parseFloatEnv parses a float environment variable with a default value
func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(str, 64)
}

// parseDurationEnv parses a duration environment variable with a default value
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(str)
}
