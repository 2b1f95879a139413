package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ADVISOR_DATA_DIR", t.TempDir())
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("BENCHMARK_TICKER", "")
	t.Setenv("CALL_TIMEOUT", "")
	t.Setenv("UNIVERSE_TICKERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, "SPY", cfg.BenchmarkTicker)
	assert.Equal(t, "eu-central-1", cfg.AWSRegion)
	assert.Equal(t, "StockAnalytics", cfg.Tables.StockAnalytics)
	assert.Equal(t, "Portfolio", cfg.Tables.Portfolio)
	assert.Equal(t, "RealizedGains", cfg.Tables.RealizedGains)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Nil(t, cfg.UniverseTickers)
	assert.False(t, cfg.AdviseWithoutRecommendations)
	assert.False(t, cfg.Snapshot.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ADVISOR_DATA_DIR", t.TempDir())
	t.Setenv("STORE_BACKEND", "DynamoDB")
	t.Setenv("BENCHMARK_TICKER", "qqq")
	t.Setenv("CALL_TIMEOUT", "45")
	t.Setenv("ADVISOR_TIMEOUT", "2m")
	t.Setenv("UNIVERSE_TICKERS", "AAPL, MSFT,,NVDA ")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("SNAPSHOT_BUCKET", "advisor-runs")
	t.Setenv("ADVISE_WITHOUT_RECOMMENDATIONS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDynamoDB, cfg.StoreBackend)
	assert.Equal(t, "QQQ", cfg.BenchmarkTicker)
	assert.Equal(t, 45*time.Second, cfg.CallTimeout)
	assert.Equal(t, 2*time.Minute, cfg.AdvisorTimeout)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, cfg.UniverseTickers)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.AdviseWithoutRecommendations)
	assert.True(t, cfg.Snapshot.Enabled())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StoreBackend:    StoreSQLite,
			BenchmarkTicker: "SPY",
			CallTimeout:     time.Second,
			AdvisorTimeout:  time.Second,
			MarketTimezone:  "America/New_York",
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.StoreBackend = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.BenchmarkTicker = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.CallTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.MarketTimezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Snapshot.AccessKeyID = "key"
	assert.Error(t, cfg.Validate())
}

func TestDatabasePath(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/advisor"}
	assert.Equal(t, "/var/lib/advisor/ledger.db", cfg.DatabasePath("ledger"))
}
