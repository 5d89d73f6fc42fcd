// Package config loads service configuration. Connection and server settings
// come from environment variables; the model catalog and routing table come
// from an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Synthex AI Gateway.
type Config struct {
	// Server
	Port     string
	LogLevel string

	// Management API
	AdminAPIKey string // Required for /api/v1 endpoints; empty = endpoints disabled

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// Budget enforcement
	BudgetFailOpen    bool // If true, allow requests when the ledger store is unreachable
	DefaultCeilingUSD string
	AlertFraction     float64

	// Dispatch
	CallTimeout            time.Duration
	DefaultMaxOutputTokens int
	UsageBuffer            int
	RateLimitPerMinute     int

	// Catalog file (models, routes, tenant ceilings). Empty = built-in catalog.
	CatalogPath string

	// Provider API keys (passed through, never stored)
	OpenRouterKey string
	AnthropicKey  string
	GeminiKey     string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("SYNTHEX_PORT", "8080"),
		LogLevel: getEnv("SYNTHEX_LOG_LEVEL", "info"),

		AdminAPIKey: os.Getenv("SYNTHEX_ADMIN_API_KEY"),

		DBHost:     getEnv("POSTGRES_HOST", "localhost"),
		DBName:     getEnv("POSTGRES_DB", "synthex"),
		DBUser:     getEnv("POSTGRES_USER", "synthex_user"),
		DBPassword: getEnv("POSTGRES_PASSWORD", ""),
		DBSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		BudgetFailOpen:    getEnv("SYNTHEX_BUDGET_FAIL_OPEN", "true") == "true",
		DefaultCeilingUSD: getEnv("SYNTHEX_DAILY_CEILING_USD", "25"),

		CatalogPath: os.Getenv("SYNTHEX_CATALOG_FILE"),

		OpenRouterKey: os.Getenv("OPENROUTER_API_KEY"),
		AnthropicKey:  os.Getenv("ANTHROPIC_API_KEY"),
		GeminiKey:     os.Getenv("GOOGLE_API_KEY"),
	}

	dbPort, err := strconv.Atoi(getEnv("POSTGRES_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
	}
	cfg.DBPort = dbPort

	redisPort, err := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	cfg.RedisPort = redisPort

	alert, err := strconv.ParseFloat(getEnv("SYNTHEX_ALERT_FRACTION", "0.8"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNTHEX_ALERT_FRACTION: %w", err)
	}
	cfg.AlertFraction = alert

	timeout, err := time.ParseDuration(getEnv("SYNTHEX_CALL_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNTHEX_CALL_TIMEOUT: %w", err)
	}
	cfg.CallTimeout = timeout

	maxOut, err := strconv.Atoi(getEnv("SYNTHEX_DEFAULT_MAX_OUTPUT_TOKENS", "2048"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNTHEX_DEFAULT_MAX_OUTPUT_TOKENS: %w", err)
	}
	cfg.DefaultMaxOutputTokens = maxOut

	buffer, err := strconv.Atoi(getEnv("SYNTHEX_USAGE_BUFFER", "1024"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNTHEX_USAGE_BUFFER: %w", err)
	}
	cfg.UsageBuffer = buffer

	rateLimit, err := strconv.Atoi(getEnv("SYNTHEX_RATE_LIMIT_PER_MIN", "120"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNTHEX_RATE_LIMIT_PER_MIN: %w", err)
	}
	cfg.RateLimitPerMinute = rateLimit

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// RedactedDSN returns the DSN with the password masked for safe logging.
func (c *Config) RedactedDSN() string {
	return fmt.Sprintf("postgres://%s:***@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// RedisAddr returns the Redis address in host:port format.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
