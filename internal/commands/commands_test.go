package commands

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-advisor/internal/config"
	"github.com/aristath/portfolio-advisor/internal/di"
	"github.com/aristath/portfolio-advisor/internal/domain"
)

func testEnv(t *testing.T) (*Env, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Env{
		Config: &config.Config{
			DataDir:         t.TempDir(),
			StoreBackend:    config.StoreSQLite,
			BenchmarkTicker: "SPY",
			MarketTimezone:  "America/New_York",
			CallTimeout:     time.Second,
			AdvisorTimeout:  time.Second,
		},
		Log: zerolog.Nop(),
		Out: out,
	}, out
}

func execute(t *testing.T, cmd subcommands.Command, args ...string) subcommands.ExitStatus {
	f := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(f)
	require.NoError(t, f.Parse(args))
	return cmd.Execute(context.Background(), f)
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestImportUniverseCmd(t *testing.T) {
	env, out := testEnv(t)
	path := writeFile(t, "universe.txt", "AAPL,Apple\nMSFT\n")

	status := execute(t, &importUniverseCmd{env: env}, path)
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out.String(), "Imported 2 securities")

	container, err := di.WireStores(context.Background(), env.Config, env.Log)
	require.NoError(t, err)
	defer container.Close()

	tickers, err := container.Universe.Tickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, tickers)
}

func TestImportRecommendationsCmd(t *testing.T) {
	env, out := testEnv(t)
	path := writeFile(t, "recs.json", `{"items": [{"stock": "AAPL", "close": 170, "investment_decision": "BUY"}]}`)

	status := execute(t, &importRecommendationsCmd{env: env}, "-path", "$.items[*]", "-date", "2024-03-08", path)
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out.String(), "Imported 1 recommendations")

	container, err := di.WireStores(context.Background(), env.Config, env.Log)
	require.NoError(t, err)
	defer container.Close()

	recs, err := container.Recommendations.LookupRecommendations(context.Background(), []string{"AAPL"}, domain.MustParseDate("2024-03-08"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.DecisionBuy, recs[0].Decision)
}

func TestImportRecommendationsCmd_Usage(t *testing.T) {
	env, _ := testEnv(t)
	assert.Equal(t, subcommands.ExitUsageError, execute(t, &importRecommendationsCmd{env: env}))
	assert.Equal(t, subcommands.ExitUsageError, execute(t, &importRecommendationsCmd{env: env}, "-date", "yesterday", "x.json"))
}

func TestWipeCmd(t *testing.T) {
	env, out := testEnv(t)

	assert.Equal(t, subcommands.ExitUsageError, execute(t, &wipeCmd{env: env}))

	container, err := di.WireStores(context.Background(), env.Config, env.Log)
	require.NoError(t, err)
	_, err = container.Positions.SaveNewPositions(context.Background(), []domain.BuyOrder{
		{Ticker: "AAPL", Name: "Apple", SharesToBuy: 10},
	}, domain.MustParseDate("2024-03-08"))
	require.NoError(t, err)
	require.NoError(t, container.Close())

	status := execute(t, &wipeCmd{env: env}, "-confirm")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out.String(), "Deleted 1 positions")
}

func TestGainsCmd(t *testing.T) {
	env, out := testEnv(t)

	container, err := di.WireStores(context.Background(), env.Config, env.Log)
	require.NoError(t, err)
	require.NoError(t, container.Ledger.AppendRealizedGains(context.Background(), domain.RealizedGainsEntry{
		Date: domain.MustParseDate("2024-03-08"), TotalBuyValue: 1000, TotalSellValue: 1100, PerformancePercent: 10,
	}))
	require.NoError(t, container.Close())

	status := execute(t, &gainsCmd{env: env}, "-raw")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out.String(), "| 2024-03-08 | $1,000.00 | $1,100.00 | +10.00% |")
	assert.Contains(t, out.String(), "**Lifetime performance:** +10.00%")
}

func TestRunCmd_RequiresAPIKey(t *testing.T) {
	env, _ := testEnv(t)
	assert.Equal(t, subcommands.ExitFailure, execute(t, &runCmd{env: env}))
}
