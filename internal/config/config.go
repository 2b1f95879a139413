// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int

	StoreBackend string // sqlite or dynamodb
	AWSRegion    string
	Tables       TableNames

	BenchmarkTicker string
	MarketTimezone  string
	HistoryPeriod   string
	PriceCacheTTL   time.Duration
	UniverseTickers []string // Static universe; empty means the securities table is used
	CallTimeout     time.Duration
	AdvisorTimeout  time.Duration

	// Ask the advisor even when no stock has a recommendation for the run date
	AdviseWithoutRecommendations bool

	RunSchedule     string // cron expression with seconds
	ScheduleEnabled bool
	PromptsFile     string
	GeminiAPIKey    string
	GeminiModel     string
	KafkaBrokers    []string
	KafkaTopic      string
	Snapshot        SnapshotConfig
}

// TableNames holds the DynamoDB table names (same layout as the analytics pipeline)
type TableNames struct {
	StockAnalytics string
	Portfolio      string
	RealizedGains  string
}

// SnapshotConfig configures run report archival to S3-compatible storage
type SnapshotConfig struct {
	Bucket          string
	Prefix          string
	Endpoint        string // Optional, for R2/MinIO style endpoints
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether a bucket is configured
func (s SnapshotConfig) Enabled() bool {
	return s.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ADVISOR_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	geminiKey := getEnv("GEMINI_API_KEY", "")
	if geminiKey == "" {
		geminiKey = getEnv("GOOGLE_API_KEY", "")
	}

	cfg := &Config{
		DataDir:      absDataDir,
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPretty:    getEnvAsBool("LOG_PRETTY", false),
		Port:         getEnvAsInt("PORT", 8080),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
		AWSRegion:    getEnv("REGION", "eu-central-1"),
		Tables: TableNames{
			StockAnalytics: getEnv("TABLE_NAME_STOCK_ANALYTICS", "StockAnalytics"),
			Portfolio:      getEnv("TABLE_NAME_PORTFOLIO", "Portfolio"),
			RealizedGains:  getEnv("TABLE_NAME_REALIZED_GAINS", "RealizedGains"),
		},
		BenchmarkTicker: strings.ToUpper(getEnv("BENCHMARK_TICKER", "SPY")),
		MarketTimezone:  getEnv("MARKET_TIMEZONE", "America/New_York"),
		HistoryPeriod:   getEnv("HISTORY_PERIOD", "2y"),
		PriceCacheTTL:   getEnvAsDuration("PRICE_CACHE_TTL", 10*time.Minute),
		UniverseTickers: getEnvAsList("UNIVERSE_TICKERS"),
		CallTimeout:     getEnvAsDuration("CALL_TIMEOUT", 30*time.Second),
		AdvisorTimeout:  getEnvAsDuration("ADVISOR_TIMEOUT", 3*time.Minute),

		AdviseWithoutRecommendations: getEnvAsBool("ADVISE_WITHOUT_RECOMMENDATIONS", false),

		RunSchedule:     getEnv("RUN_SCHEDULE", "0 30 22 * * MON-FRI"), // After the US close
		ScheduleEnabled: getEnvAsBool("SCHEDULE_ENABLED", true),
		PromptsFile:     getEnv("PROMPTS_FILE", ""),
		GeminiAPIKey:    geminiKey,
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-pro"),
		KafkaBrokers:    getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "portfolio-events"),
		Snapshot: SnapshotConfig{
			Bucket:          getEnv("SNAPSHOT_BUCKET", ""),
			Prefix:          getEnv("SNAPSHOT_PREFIX", "runs"),
			Endpoint:        getEnv("SNAPSHOT_ENDPOINT", ""),
			AccessKeyID:     getEnv("SNAPSHOT_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("SNAPSHOT_SECRET_ACCESS_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreSQLite, StoreDynamoDB:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (expected %s or %s)", c.StoreBackend, StoreSQLite, StoreDynamoDB)
	}

	if c.BenchmarkTicker == "" {
		return fmt.Errorf("BENCHMARK_TICKER must not be empty")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("CALL_TIMEOUT must be positive, got %s", c.CallTimeout)
	}
	if c.AdvisorTimeout <= 0 {
		return fmt.Errorf("ADVISOR_TIMEOUT must be positive, got %s", c.AdvisorTimeout)
	}
	if _, err := time.LoadLocation(c.MarketTimezone); err != nil {
		return fmt.Errorf("invalid MARKET_TIMEZONE %q: %w", c.MarketTimezone, err)
	}

	// Snapshot credentials come in pairs
	if (c.Snapshot.AccessKeyID == "") != (c.Snapshot.SecretAccessKey == "") {
		return fmt.Errorf("SNAPSHOT_ACCESS_KEY_ID and SNAPSHOT_SECRET_ACCESS_KEY must be set together")
	}

	return nil
}

// Location returns the market timezone used for the run date.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabasePath returns the path of a named SQLite database inside DataDir
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Bare numbers are seconds
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
