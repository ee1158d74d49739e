// Package config provides configuration management for the market data cache.
// It loads settings from environment variables with sensible defaults and
// validates them before the service starts.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Cache Settings:
//   - CACHE_MODE: Preferred tier mode - "full", "durable-only", "fast-only",
//     "memory-only" or "none" (default: full)
//   - CACHE_TTL: Fast-cache entry lifetime (default: 168h)
//
// Database Configuration:
//   - DATABASE_TYPE: Database type - "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./market_data.db)
//   - POSTGRES_HOST: PostgreSQL host (required if using PostgreSQL)
//   - POSTGRES_PORT: PostgreSQL port (default: 5432)
//   - POSTGRES_DB: PostgreSQL database name (required if using PostgreSQL)
//   - POSTGRES_USER: PostgreSQL username (required if using PostgreSQL)
//   - POSTGRES_PASSWORD: PostgreSQL password
//   - POSTGRES_SSL_MODE: PostgreSQL SSL mode (default: disable)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Data Provider:
//   - PROVIDER_BASE_URL: Financial data API base URL
//   - PROVIDER_API_KEY: Financial data API key
//
// Scheduled Refresh:
//   - REFRESH_SCHEDULE: Cron expression for background refresh (empty disables it)
//   - REFRESH_TICKERS: Comma-separated tickers refreshed on the schedule
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the market data cache.
type Config struct {
	Port     string
	LogLevel string

	CacheMode string
	CacheTTL  string

	DatabaseType     string
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	ProviderBaseURL string
	ProviderAPIKey  string

	RefreshSchedule string
	RefreshTickers  string
}

// Load creates a new Config with values from environment variables. It does
// not validate; call Validate on the result before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CacheMode: getEnv("CACHE_MODE", "full"),
		CacheTTL:  getEnv("CACHE_TTL", "168h"),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./market_data.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "market_data"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://api.financialdatasets.ai"),
		ProviderAPIKey:  getEnv("PROVIDER_API_KEY", ""),

		RefreshSchedule: getEnv("REFRESH_SCHEDULE", ""),
		RefreshTickers:  getEnv("REFRESH_TICKERS", ""),
	}
}

// getEnv retrieves an environment variable value or returns a default value
// if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// TTL returns the parsed fast-cache lifetime. Validate guarantees the value
// parses; the fallback covers unvalidated configs in tests.
func (c *Config) TTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 168 * time.Hour
	}
	return d
}

// Tickers returns the configured refresh ticker list, trimmed and upper-cased.
func (c *Config) Tickers() []string {
	if c.RefreshTickers == "" {
		return nil
	}
	parts := strings.Split(c.RefreshTickers, ",")
	tickers := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.ToUpper(strings.TrimSpace(p)); t != "" {
			tickers = append(tickers, t)
		}
	}
	return tickers
}

// PostgresDSN builds the connection string for the pgx stdlib driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresUser, c.PostgresPassword, c.PostgresSSLMode)
}

// Validate checks that all values are well formed and that cross-field
// requirements (PostgreSQL settings, cache mode names) are met.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.CacheMode {
	case "full", "durable-only", "fast-only", "memory-only", "none":
	default:
		return fmt.Errorf("CACHE_MODE must be one of 'full', 'durable-only', 'fast-only', 'memory-only', 'none'")
	}

	if _, err := time.ParseDuration(c.CacheTTL); err != nil {
		return fmt.Errorf("CACHE_TTL must be a valid duration (e.g., '24h', '168h')")
	}

	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.DatabaseType == "postgres" || c.DatabaseType == "postgresql" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if c.RefreshSchedule != "" && len(c.Tickers()) == 0 {
		return fmt.Errorf("REFRESH_TICKERS is required when REFRESH_SCHEDULE is set")
	}

	return nil
}
