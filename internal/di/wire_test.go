package di

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-advisor/internal/config"
	"github.com/aristath/portfolio-advisor/internal/modules/ledger"
	"github.com/aristath/portfolio-advisor/internal/modules/portfolio"
	"github.com/aristath/portfolio-advisor/internal/modules/universe"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir:         t.TempDir(),
		StoreBackend:    config.StoreSQLite,
		BenchmarkTicker: "SPY",
		MarketTimezone:  "America/New_York",
		HistoryPeriod:   "2y",
		PriceCacheTTL:   10 * time.Minute,
		CallTimeout:     time.Second,
		AdvisorTimeout:  time.Second,
		GeminiAPIKey:    "test-key",
		GeminiModel:     "gemini-2.5-pro",
	}
}

func TestWireStores(t *testing.T) {
	cfg := testConfig(t)

	container, err := WireStores(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.Len(t, container.Databases(), 4)
	assert.IsType(t, &portfolio.PositionRepository{}, container.Positions)
	assert.IsType(t, &ledger.Repository{}, container.Ledger)
	assert.Same(t, container.UniverseRepo, container.Universe)
}

func TestWireStores_StaticUniverse(t *testing.T) {
	cfg := testConfig(t)
	cfg.UniverseTickers = []string{"AAPL", "MSFT"}

	container, err := WireStores(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.IsType(t, &universe.Static{}, container.Universe)
	tickers, err := container.Universe.Tickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, tickers)
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.Manager)
	assert.NotNil(t, container.MarketData)
	assert.NotNil(t, container.Advisor)
	assert.Nil(t, container.Snapshots)
	assert.NotNil(t, jobs.DailyRun)
	assert.NotNil(t, jobs.Cleanup)
	assert.NotNil(t, jobs.Maintenance)
}
