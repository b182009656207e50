// Package config provides environment-aware configuration management for the
// agent runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	slruntime "github.com/tetsuo-ai/AgenC-sub003/internal/runtime"
	"github.com/joho/godotenv"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all agent runtime configuration.
type Config struct {
	// Environment
	Env Environment

	// Coordination substrate (ledger) endpoints.
	LedgerRPCURL   string
	LedgerWSURL    string
	LedgerNetwork  string
	LedgerInsecure bool

	// Agent identity.
	AgentSeed string

	// Discovery.
	DiscoveryPollInterval time.Duration
	DiscoveryBackoffAfter int           // consecutive poll failures before backing off
	DiscoveryBackoffDelay time.Duration // pause duration once DiscoveryBackoffAfter is hit

	// Admission caps.
	MaxConcurrentTasks  int
	MaxConcurrentProofs int

	// Retry/backoff bounds shared by the ledger adapter and proof pipeline.
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryJitter       float64

	// Verifier lane defaults.
	VerifierDefaultTier   string
	VerifierBudgetPerTask float64
	VerifierTimeout       time.Duration
	VerifierMaxRevisions  int

	// Logging.
	LogLevel  string
	LogFormat string

	// Persistence (optional; empty DSN keeps state in-memory only).
	PostgresDSN         string
	DBMaxConnections    int
	DBIdleTimeout       time.Duration
	MigrationsRequired  bool

	// Features.
	MetricsEnabled bool
	MetricsPort    int
	TestMode       bool
}

// Load loads configuration based on the AGENT_ENV environment variable.
func Load() (*Config, error) {
	envStr := os.Getenv("AGENT_ENV")
	if envStr == "" {
		envStr = string(slruntime.Development)
	}

	parsedEnv, ok := slruntime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid AGENT_ENV: %s (must be development, testing, or production)", envStr)
	}
	env := Environment(parsedEnv)

	// Load environment-specific .env file.
	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		// Config file is optional; only warn on non-"file not found" errors
		// (e.g. parse errors) to avoid noisy logs during tests and CI runs.
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() error {
	var err error

	// Coordination substrate.
	c.LedgerRPCURL = getEnv("LEDGER_RPC_URL", "http://localhost:8899")
	c.LedgerWSURL = getEnv("LEDGER_WS_URL", "ws://localhost:8900")
	c.LedgerNetwork = getEnv("LEDGER_NETWORK", "devnet")
	c.LedgerInsecure = getBoolEnv("LEDGER_INSECURE", true)

	c.AgentSeed = getEnv("AGENT_SEED", "")

	// Discovery.
	c.DiscoveryPollInterval, err = getDurationEnv("DISCOVERY_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return fmt.Errorf("invalid DISCOVERY_POLL_INTERVAL: %w", err)
	}
	c.DiscoveryBackoffAfter = getIntEnv("DISCOVERY_BACKOFF_AFTER", 5)
	c.DiscoveryBackoffDelay, err = getDurationEnv("DISCOVERY_BACKOFF_DELAY", 60*time.Second)
	if err != nil {
		return fmt.Errorf("invalid DISCOVERY_BACKOFF_DELAY: %w", err)
	}

	// Admission caps.
	c.MaxConcurrentTasks = getIntEnv("MAX_CONCURRENT_TASKS", 8)
	c.MaxConcurrentProofs = getIntEnv("MAX_CONCURRENT_PROOFS", 4)

	// Retry/backoff.
	c.RetryMaxAttempts = getIntEnv("RETRY_MAX_ATTEMPTS", 5)
	c.RetryInitialDelay, err = getDurationEnv("RETRY_INITIAL_DELAY", 200*time.Millisecond)
	if err != nil {
		return fmt.Errorf("invalid RETRY_INITIAL_DELAY: %w", err)
	}
	c.RetryMaxDelay, err = getDurationEnv("RETRY_MAX_DELAY", 30*time.Second)
	if err != nil {
		return fmt.Errorf("invalid RETRY_MAX_DELAY: %w", err)
	}
	c.RetryJitter = getFloatEnv("RETRY_JITTER", 0.2)

	// Verifier lane.
	c.VerifierDefaultTier = getEnv("VERIFIER_DEFAULT_TIER", "standard")
	c.VerifierBudgetPerTask = getFloatEnv("VERIFIER_BUDGET_PER_TASK", 1.0)
	c.VerifierTimeout, err = getDurationEnv("VERIFIER_TIMEOUT", 30*time.Second)
	if err != nil {
		return fmt.Errorf("invalid VERIFIER_TIMEOUT: %w", err)
	}
	c.VerifierMaxRevisions = getIntEnv("VERIFIER_MAX_REVISIONS", 2)

	// Logging.
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	// Persistence.
	c.PostgresDSN = getEnv("POSTGRES_DSN", "")
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 10)
	c.DBIdleTimeout, err = getDurationEnv("DB_IDLE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return fmt.Errorf("invalid DB_IDLE_TIMEOUT: %w", err)
	}
	c.MigrationsRequired = getBoolEnv("MIGRATIONS_REQUIRED", c.PostgresDSN != "")

	// Features.
	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Env == Production)
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)
	c.TestMode = getBoolEnv("TEST_MODE", false)

	return nil
}

// IsDevelopment returns true if running in the development environment.
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsTesting returns true if running in the testing environment.
func (c *Config) IsTesting() bool { return c.Env == Testing }

// IsProduction returns true if running in the production environment.
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.LedgerInsecure {
			return fmt.Errorf("LEDGER_INSECURE must be false in production")
		}
		if c.TestMode {
			return fmt.Errorf("TEST_MODE must be false in production")
		}
		if c.AgentSeed == "" {
			return fmt.Errorf("AGENT_SEED is required in production")
		}
	}

	if c.MaxConcurrentTasks < 1 {
		return fmt.Errorf("MAX_CONCURRENT_TASKS must be at least 1")
	}
	if c.MaxConcurrentProofs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_PROOFS must be at least 1")
	}
	if c.VerifierMaxRevisions < 0 {
		return fmt.Errorf("VERIFIER_MAX_REVISIONS must not be negative")
	}
	if c.MetricsPort < 1024 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid METRICS_PORT: %d (must be between 1024 and 65535)", c.MetricsPort)
	}

	return nil
}

// Helper functions.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
