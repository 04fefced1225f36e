// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing
	OTLPEndpoint string // OTLP gRPC collector endpoint (optional, disables tracing if not set)

	// 2FA settings
	TOTPIssuer   string // Issuer label embedded in otpauth:// URLs
	TOTPWindow   int    // Accepted clock-drift window in 30s steps on each side
	BackupCodes  int    // Backup codes issued per enrollment
	TwoFARateRPM int    // Max 2FA verification attempts per user per minute

	// Fraud detection
	FraudBatchInterval time.Duration // How often the batch runner sweeps
	FraudBatchLimit    int           // Users sampled per sweep
	FraudBatchWorkers  int           // Concurrent score computations per sweep

	// Security
	AdminSecret  string // Admin API secret for alert lifecycle and batch triggers
	RateLimitRPM int    // Per-client request budget per minute
}

// Defaults
const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultTOTPIssuer    = "ReviewFlow"
	DefaultTOTPWindow    = 1
	DefaultBackupCodes   = 10
	DefaultTwoFARateRPM  = 10
	DefaultBatchInterval = time.Hour
	DefaultBatchLimit    = 100
	DefaultBatchWorkers  = 4
	DefaultRateLimit     = 120
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
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TOTPIssuer:         getEnv("TOTP_ISSUER", DefaultTOTPIssuer),
		TOTPWindow:         getEnvInt("TOTP_WINDOW", DefaultTOTPWindow),
		BackupCodes:        getEnvInt("BACKUP_CODES", DefaultBackupCodes),
		TwoFARateRPM:       getEnvInt("TWOFA_RATE_RPM", DefaultTwoFARateRPM),
		FraudBatchInterval: getEnvDuration("FRAUD_BATCH_INTERVAL", DefaultBatchInterval),
		FraudBatchLimit:    getEnvInt("FRAUD_BATCH_LIMIT", DefaultBatchLimit),
		FraudBatchWorkers:  getEnvInt("FRAUD_BATCH_WORKERS", DefaultBatchWorkers),
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane
func (c *Config) Validate() error {
	if c.TOTPIssuer == "" {
		return fmt.Errorf("TOTP_ISSUER must not be empty")
	}
	if c.TOTPWindow < 0 || c.TOTPWindow > 10 {
		return fmt.Errorf("TOTP_WINDOW must be between 0 and 10, got %d", c.TOTPWindow)
	}
	if c.BackupCodes < 1 {
		return fmt.Errorf("BACKUP_CODES must be at least 1, got %d", c.BackupCodes)
	}
	if c.FraudBatchLimit < 1 {
		return fmt.Errorf("FRAUD_BATCH_LIMIT must be at least 1, got %d", c.FraudBatchLimit)
	}
	if c.FraudBatchWorkers < 1 {
		return fmt.Errorf("FRAUD_BATCH_WORKERS must be at least 1, got %d", c.FraudBatchWorkers)
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
