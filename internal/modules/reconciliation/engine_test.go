package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-advisor/internal/domain"
	testingpkg "github.com/aristath/portfolio-advisor/internal/testing"
)

type recordSet map[domain.PositionKey]domain.PerformanceRecord

func (s recordSet) RecordFor(ticker string, buyDate time.Time) (domain.PerformanceRecord, bool) {
	r, ok := s[domain.PositionKey{Ticker: ticker, BuyDate: domain.FormatDate(buyDate)}]
	return r, ok
}

func (s recordSet) add(p domain.Position, buyValue, currentValue float64) {
	s[p.Key()] = domain.PerformanceRecord{
		Ticker:  p.Ticker,
		BuyDate: p.BuyDate,
		Shares:  p.Shares,
		Valuation: domain.Valuation{
			BuyClosingPrice: buyValue / p.Shares,
			BuyDateValue:    buyValue,
			CurrentPrice:    currentValue / p.Shares,
			CurrentValue:    currentValue,
		},
	}
}

func newEngine(universe domain.UniverseProvider, store *testingpkg.MockStore) *Engine {
	return NewEngine(universe, store, store, time.Second, zerolog.Nop())
}

func TestSellCandidates_BuyIsNeverSold(t *testing.T) {
	store := testingpkg.NewMockStore()
	store.AddRecommendations(
		testingpkg.NewRecommendation("AAPL", domain.DecisionBuy),
		testingpkg.NewRecommendation("MSFT", domain.DecisionSell),
		testingpkg.NewRecommendation("NVDA", domain.DecisionHold),
		testingpkg.NewRecommendation("GME", domain.Decision("buy")),
	)
	universe := &testingpkg.StaticUniverse{List: []string{"AAPL", "MSFT", "NVDA", "GME", "TSLA"}}

	held := []string{"NVDA", "AAPL", "TSLA", "MSFT", "GME"}
	candidates, err := newEngine(universe, store).SellCandidates(context.Background(), held, testingpkg.RunDate)
	require.NoError(t, err)

	// Held order preserved; TSLA has no recommendation today and is kept
	assert.Equal(t, []string{"NVDA", "MSFT", "GME"}, candidates)
}

func TestSellCandidates_OnlyUniverseTickers(t *testing.T) {
	store := testingpkg.NewMockStore()
	store.AddRecommendations(testingpkg.NewRecommendation("DELISTED", domain.DecisionSell))
	universe := &testingpkg.StaticUniverse{List: []string{"AAPL"}}

	candidates, err := newEngine(universe, store).SellCandidates(context.Background(), []string{"DELISTED"}, testingpkg.RunDate)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSellCandidates_UniverseFailure(t *testing.T) {
	store := testingpkg.NewMockStore()
	universe := &testingpkg.StaticUniverse{Err: errors.New("table missing")}

	_, err := newEngine(universe, store).SellCandidates(context.Background(), []string{"AAPL"}, testingpkg.RunDate)
	require.Error(t, err)
	assert.Equal(t, domain.KindExternalService, domain.KindOf(err))
}

func TestHeldTickers(t *testing.T) {
	closed := testingpkg.NewPosition("OLD", testingpkg.BuyDate, 1)
	sell := testingpkg.RunDate
	closed.SellDate = &sell

	got := HeldTickers([]domain.Position{
		testingpkg.NewPosition("MSFT", testingpkg.BuyDate, 1),
		testingpkg.NewPosition("AAPL", testingpkg.BuyDate, 1),
		testingpkg.NewPosition("MSFT", domain.MustParseDate("2024-02-01"), 1),
		closed,
	})
	assert.Equal(t, []string{"MSFT", "AAPL"}, got)
}

func TestReconcile_ClosesEveryPositionOfCandidate(t *testing.T) {
	store := testingpkg.NewMockStore()
	store.AddRecommendations(
		testingpkg.NewRecommendation("AAPL", domain.DecisionSell),
		testingpkg.NewRecommendation("MSFT", domain.DecisionBuy),
	)
	universe := &testingpkg.StaticUniverse{List: []string{"AAPL", "MSFT"}}

	first := testingpkg.NewPosition("AAPL", testingpkg.BuyDate, 10)
	second := testingpkg.NewPosition("AAPL", domain.MustParseDate("2024-02-01"), 5)
	keep := testingpkg.NewPosition("MSFT", testingpkg.BuyDate, 2)

	perf := recordSet{}
	perf.add(first, 1000, 1100)
	perf.add(second, 600, 500)
	perf.add(keep, 700, 800)

	result, err := newEngine(universe, store).Reconcile(context.Background(), testingpkg.RunDate,
		[]domain.Position{first, second, keep}, perf)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL"}, result.SellCandidates)
	require.Len(t, result.ClosingRecords, 2)

	// Each closing carries its own position's valuation and buy-side fields
	rec := result.ClosingRecords[0]
	assert.Equal(t, first.Ticker, rec.Ticker)
	assert.Equal(t, first.Name, rec.Name)
	assert.Equal(t, first.BuyDate, rec.BuyDate)
	assert.Equal(t, first.Shares, rec.Shares)
	assert.Equal(t, testingpkg.RunDate, rec.SellDate)
	assert.Equal(t, 1100.0, rec.Valuation.CurrentValue)
	assert.Equal(t, 500.0, result.ClosingRecords[1].Valuation.CurrentValue)

	assert.Equal(t, 1600.0, result.RunBuyValue)
	assert.Equal(t, 1600.0, result.RunSellValue)
	assert.Equal(t, 0.0, result.RunGainPercent)

	// Selecting closings writes nothing
	entries, err := store.ListRealizedGains(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReconcile_UnpricedCandidateStaysOpen(t *testing.T) {
	store := testingpkg.NewMockStore()
	store.AddRecommendations(testingpkg.NewRecommendation("AAPL", domain.DecisionSell))
	universe := &testingpkg.StaticUniverse{List: []string{"AAPL"}}

	pos := testingpkg.NewPosition("AAPL", testingpkg.BuyDate, 10)
	result, err := newEngine(universe, store).Reconcile(context.Background(), testingpkg.RunDate,
		[]domain.Position{pos}, recordSet{})
	require.NoError(t, err)

	assert.Empty(t, result.ClosingRecords)
	assert.Equal(t, []domain.Position{pos}, result.Unpriced)
	assert.Zero(t, result.RunBuyValue)
}

func soldPosition(ticker string, sellDate time.Time, buyValue, sellValue float64) domain.Position {
	p := testingpkg.NewPosition(ticker, testingpkg.BuyDate, 1)
	p.SellDate = &sellDate
	p.Valuation = &domain.Valuation{BuyDateValue: buyValue, CurrentValue: sellValue}
	return p
}

func TestRecordRealizedGains_LifetimeIncludesNewEntry(t *testing.T) {
	store := testingpkg.NewMockStore()
	require.NoError(t, store.AppendRealizedGains(context.Background(), domain.RealizedGainsEntry{
		Date: domain.MustParseDate("2024-02-01"), TotalBuyValue: 100, TotalSellValue: 110, PerformancePercent: 10,
	}))

	positions := []domain.Position{
		soldPosition("AAPL", testingpkg.RunDate, 200, 180),
		soldPosition("OLD", domain.MustParseDate("2024-02-01"), 100, 110),
		testingpkg.NewPosition("MSFT", testingpkg.BuyDate, 3),
	}

	realized, err := newEngine(&testingpkg.StaticUniverse{}, store).RecordRealizedGains(context.Background(), testingpkg.RunDate, positions)
	require.NoError(t, err)

	assert.Equal(t, 1, realized.Positions)
	assert.Equal(t, 200.0, realized.Entry.TotalBuyValue)
	assert.Equal(t, 180.0, realized.Entry.TotalSellValue)
	assert.Equal(t, -10.0, realized.Entry.PerformancePercent)
	assert.Equal(t, -3.33, realized.LifetimeGainPercent)

	entries, err := store.ListRealizedGains(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRecordRealizedGains_NothingSoldKeepsLifetime(t *testing.T) {
	store := testingpkg.NewMockStore()
	require.NoError(t, store.AppendRealizedGains(context.Background(), domain.RealizedGainsEntry{
		Date: domain.MustParseDate("2024-02-01"), TotalBuyValue: 100, TotalSellValue: 150, PerformancePercent: 50,
	}))

	open := []domain.Position{testingpkg.NewPosition("MSFT", testingpkg.BuyDate, 3)}
	realized, err := newEngine(&testingpkg.StaticUniverse{}, store).RecordRealizedGains(context.Background(), testingpkg.RunDate, open)
	require.NoError(t, err)

	assert.Equal(t, 0, realized.Positions)
	assert.Equal(t, 50.0, realized.LifetimeGainPercent)

	// The run date still gets a zero entry
	entries, err := store.ListRealizedGains(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var today *domain.RealizedGainsEntry
	for i := range entries {
		if domain.FormatDate(entries[i].Date) == domain.FormatDate(testingpkg.RunDate) {
			today = &entries[i]
		}
	}
	require.NotNil(t, today)
	assert.Zero(t, today.TotalBuyValue)
	assert.Zero(t, today.TotalSellValue)
	assert.Zero(t, today.PerformancePercent)
}

func TestRecordRealizedGains_SameDateReplaces(t *testing.T) {
	store := testingpkg.NewMockStore()
	engine := newEngine(&testingpkg.StaticUniverse{}, store)

	aapl := soldPosition("AAPL", testingpkg.RunDate, 100, 150)
	msft := soldPosition("MSFT", testingpkg.RunDate, 100, 50)

	_, err := engine.RecordRealizedGains(context.Background(), testingpkg.RunDate, []domain.Position{aapl})
	require.NoError(t, err)

	// A second run on the date sees both closings in the store and rewrites the entry
	realized, err := engine.RecordRealizedGains(context.Background(), testingpkg.RunDate, []domain.Position{aapl, msft})
	require.NoError(t, err)
	assert.Equal(t, 200.0, realized.Entry.TotalBuyValue)
	assert.Equal(t, 200.0, realized.Entry.TotalSellValue)
	assert.Equal(t, 0.0, realized.Entry.PerformancePercent)

	// Repeating with the same positions changes nothing
	again, err := engine.RecordRealizedGains(context.Background(), testingpkg.RunDate, []domain.Position{aapl, msft})
	require.NoError(t, err)
	assert.Equal(t, realized.Entry, again.Entry)

	entries, err := store.ListRealizedGains(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 200.0, entries[0].TotalBuyValue)
	assert.Equal(t, 200.0, entries[0].TotalSellValue)
}

func TestRecordRealizedGains_LedgerFailureReturnsError(t *testing.T) {
	store := testingpkg.NewMockStore()
	store.LedgerErr = errors.New("disk full")

	_, err := newEngine(&testingpkg.StaticUniverse{}, store).RecordRealizedGains(context.Background(), testingpkg.RunDate,
		[]domain.Position{soldPosition("AAPL", testingpkg.RunDate, 100, 120)})
	require.Error(t, err)
	assert.Equal(t, domain.KindPersistence, domain.KindOf(err))
}

func TestRealizedGainPercent(t *testing.T) {
	assert.Equal(t, 0.0, RealizedGainPercent(0, 0))
	assert.Equal(t, 0.0, RealizedGainPercent(0, 50))
	assert.Equal(t, 10.0, RealizedGainPercent(100, 110))
	assert.Equal(t, 33.33, RealizedGainPercent(300, 400))
}

func TestLifetimePerformance(t *testing.T) {
	assert.Equal(t, 0.0, LifetimePerformance(nil))
	assert.Equal(t, 0.0, LifetimePerformance([]domain.RealizedGainsEntry{{TotalBuyValue: 0, TotalSellValue: 0}}))

	entries := []domain.RealizedGainsEntry{
		{Date: domain.MustParseDate("2024-01-01"), TotalBuyValue: 100, TotalSellValue: 110},
		{Date: domain.MustParseDate("2024-01-02"), TotalBuyValue: 200, TotalSellValue: 180},
	}
	assert.Equal(t, -3.33, LifetimePerformance(entries))
}

func TestReplaceEntry(t *testing.T) {
	day := domain.MustParseDate("2024-01-02")
	existing := []domain.RealizedGainsEntry{
		{Date: domain.MustParseDate("2024-01-01"), TotalBuyValue: 100, TotalSellValue: 110},
		{Date: day, TotalBuyValue: 50, TotalSellValue: 60},
	}

	replaced := ReplaceEntry(existing, domain.RealizedGainsEntry{Date: day, TotalBuyValue: 100, TotalSellValue: 100})
	require.Len(t, replaced, 2)
	assert.Equal(t, 100.0, replaced[1].TotalBuyValue)
	assert.Equal(t, 50.0, existing[1].TotalBuyValue)

	appended := ReplaceEntry(existing, domain.RealizedGainsEntry{Date: domain.MustParseDate("2024-01-03")})
	assert.Len(t, appended, 3)
}

func TestEntryForAndApplyClosings(t *testing.T) {
	open := testingpkg.NewPosition("AAPL", testingpkg.BuyDate, 2)
	other := testingpkg.NewPosition("MSFT", testingpkg.BuyDate, 1)
	records := []domain.ClosingRecord{{
		Ticker: open.Ticker, Name: open.Name, BuyDate: open.BuyDate, Shares: open.Shares,
		SellDate:  testingpkg.RunDate,
		Valuation: domain.Valuation{BuyDateValue: 33.333, CurrentValue: 44.444},
	}}

	positions := ApplyClosings([]domain.Position{open, other}, records)
	require.Len(t, positions, 2)
	assert.False(t, positions[0].IsOpen())
	assert.True(t, positions[1].IsOpen())

	entry, sold := EntryFor(testingpkg.RunDate, positions)
	assert.Equal(t, 1, sold)
	assert.Equal(t, 33.33, entry.TotalBuyValue)
	assert.Equal(t, 44.44, entry.TotalSellValue)
	assert.Equal(t, 33.33, entry.PerformancePercent)
}
