// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port        string
	Env         string // "development", "staging", "production"
	LogLevel    string
	LogFormat   string // "text" or "json"
	CORSOrigins []string

	// Database
	DatabaseURL   string // PostgreSQL connection string (optional, uses in-memory if not set)
	AutoMigrate   bool
	TxMaxAttempts int

	// Ledger and reporting
	PageSize           int
	ReportsFromYear    int
	CompanyAccountID   int64
	RevenuePriceSource string // "catalog" or "locked"

	// Tracing
	OTLPEndpoint string
}

const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultCORSOrigins        = "*"
	DefaultTxMaxAttempts      = 3
	DefaultPageSize           = 5
	DefaultReportsFromYear    = 2020
	DefaultCompanyAccountID   = 1
	DefaultRevenuePriceSource = "catalog"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", DefaultCORSOrigins)),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		AutoMigrate:        getEnvBool("AUTO_MIGRATE", true),
		TxMaxAttempts:      int(getEnvInt64("TX_MAX_ATTEMPTS", DefaultTxMaxAttempts)),
		PageSize:           int(getEnvInt64("PAGE_SIZE", DefaultPageSize)),
		ReportsFromYear:    int(getEnvInt64("REPORTS_FROM_YEAR", DefaultReportsFromYear)),
		CompanyAccountID:   getEnvInt64("COMPANY_ACCOUNT_ID", DefaultCompanyAccountID),
		RevenuePriceSource: getEnv("REVENUE_PRICE_SOURCE", DefaultRevenuePriceSource),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.TxMaxAttempts <= 0 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be positive, got %d", c.TxMaxAttempts)
	}
	if c.CompanyAccountID <= 0 {
		return fmt.Errorf("COMPANY_ACCOUNT_ID must be positive, got %d", c.CompanyAccountID)
	}

	switch c.RevenuePriceSource {
	case "catalog", "locked":
	default:
		return fmt.Errorf("REVENUE_PRICE_SOURCE must be catalog or locked, got %q", c.RevenuePriceSource)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
