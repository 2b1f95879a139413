package portfolio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/internal/events"
	"github.com/aristath/portfolio-advisor/internal/modules/performance"
	"github.com/aristath/portfolio-advisor/internal/modules/prompts"
	"github.com/aristath/portfolio-advisor/internal/modules/reconciliation"
	testingpkg "github.com/aristath/portfolio-advisor/internal/testing"
)

type managerFixture struct {
	store     *testingpkg.MockStore
	market    *testingpkg.MockMarketData
	universe  *testingpkg.StaticUniverse
	advisor   *testingpkg.MockAdvisor
	publisher *testingpkg.RecordingPublisher
	manager   *Manager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	log := zerolog.Nop()

	f := &managerFixture{
		store:     testingpkg.NewMockStore(),
		market:    testingpkg.NewMockMarketData(),
		universe:  &testingpkg.StaticUniverse{List: []string{"AAPL", "MSFT", "NVDA"}},
		advisor:   &testingpkg.MockAdvisor{},
		publisher: &testingpkg.RecordingPublisher{},
	}

	buy := domain.FormatDate(testingpkg.BuyDate)
	f.market.SetHistory(testingpkg.NewHistory("SPY", 440, map[string]float64{buy: 400}))
	f.market.SetHistory(testingpkg.NewHistory("AAPL", 120, map[string]float64{buy: 100}))
	f.market.SetHistory(testingpkg.NewHistory("MSFT", 180, map[string]float64{buy: 200}))

	f.store.AddPositions(
		testingpkg.NewPosition("AAPL", testingpkg.BuyDate, 10),
		testingpkg.NewPosition("MSFT", testingpkg.BuyDate, 5),
	)
	f.store.AddRecommendations(
		testingpkg.NewRecommendation("AAPL", domain.DecisionSell),
		testingpkg.NewRecommendation("MSFT", domain.DecisionBuy),
		testingpkg.NewRecommendation("NVDA", domain.DecisionBuy),
	)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	timeout := time.Second
	f.manager = NewManager(ManagerDeps{
		Positions:       f.store,
		Recommendations: f.store,
		Universe:        f.universe,
		Advisor:         f.advisor,
		Performance:     performance.NewEngine(f.market, "SPY", timeout, log),
		Reconciler:      reconciliation.NewEngine(f.universe, f.store, f.store, timeout, log),
		Prompts:         &prompts.Prompts{Sentiment: "mood <term>", User: "<data>", System: "sys"},
		Publisher:       f.publisher,
	}, ManagerOptions{
		Location:       ny,
		CallTimeout:    timeout,
		AdvisorTimeout: timeout,
		Clock:          testingpkg.FixedClock(),
	}, log)

	return f
}

func (f *managerFixture) sentiment() {
	f.advisor.On("Ask", mock.Anything, "mood US").Return("US calm", nil).Maybe()
	f.advisor.On("Ask", mock.Anything, "mood EU").Return("EU mixed", nil).Maybe()
	f.advisor.On("Ask", mock.Anything, "mood China").Return("China weak", nil).Maybe()
}

func TestManager_Run(t *testing.T) {
	f := newManagerFixture(t)
	f.sentiment()

	var prompt string
	f.advisor.On("ProposePositions", mock.Anything, mock.MatchedBy(func(msgs []domain.Message) bool {
		if len(msgs) != 1 || msgs[0].Role != domain.RoleUser {
			return false
		}
		prompt = msgs[0].Content
		return true
	}), "sys").Return([]domain.BuyOrder{{Ticker: "NVDA", Name: "Nvidia", SharesToBuy: 3}}, nil)

	report := f.manager.Run(context.Background())

	assert.Empty(t, report.Failures)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "2024-03-01", report.Date)

	// AAPL is no longer rated BUY and is sold at the live quote
	require.Len(t, report.Closed, 1)
	closed := report.Closed[0]
	assert.Equal(t, "AAPL", closed.Ticker)
	assert.Equal(t, 1000.0, closed.Valuation.BuyDateValue)
	assert.Equal(t, 1200.0, closed.Valuation.CurrentValue)

	aapl, ok := f.store.Position("AAPL", testingpkg.BuyDate)
	require.True(t, ok)
	assert.False(t, aapl.IsOpen())
	assert.Equal(t, "AAPL Inc.", aapl.Name)

	msft, ok := f.store.Position("MSFT", testingpkg.BuyDate)
	require.True(t, ok)
	assert.True(t, msft.IsOpen())

	ledger, err := f.store.ListRealizedGains(context.Background())
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, 1000.0, ledger[0].TotalBuyValue)
	assert.Equal(t, 1200.0, ledger[0].TotalSellValue)
	require.NotNil(t, report.RealizedGains)
	assert.Equal(t, 1, report.RealizedGains.Positions)
	assert.InDelta(t, 20.0, report.RealizedGains.LifetimeGainPercent, 1e-9)

	// Buy phase
	assert.Equal(t, "US calm; EU mixed; China weak", report.Sentiment)
	assert.Equal(t, 3, report.Recommendations)
	assert.Contains(t, prompt, `"general_market_sentiment":"US calm; EU mixed; China weak"`)
	assert.NotContains(t, prompt, "Long narrative")

	require.Len(t, report.Opened, 1)
	nvda, ok := f.store.Position("NVDA", testingpkg.RunDate)
	require.True(t, ok)
	assert.Equal(t, 3.0, nvda.Shares)
	assert.Equal(t, "Nvidia", nvda.Name)

	assert.Equal(t, []events.EventType{
		events.PositionClosed,
		events.RealizedGainsRecorded,
		events.PositionOpened,
		events.RunCompleted,
	}, f.publisher.Types())
	for _, e := range f.publisher.Events {
		assert.Equal(t, report.RunID, e.RunID)
	}

	f.advisor.AssertNumberOfCalls(t, "Ask", 3)
	f.advisor.AssertNumberOfCalls(t, "ProposePositions", 1)
}

func TestManager_Run_SellPhaseFailureDoesNotBlockBuys(t *testing.T) {
	f := newManagerFixture(t)
	f.sentiment()
	f.store.ListErr = errors.New("table unavailable")
	f.advisor.On("ProposePositions", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.BuyOrder{{Ticker: "NVDA", Name: "Nvidia", SharesToBuy: 1}}, nil)

	report := f.manager.Run(context.Background())

	assert.True(t, report.Failed(StepLoadPositions))
	assert.Empty(t, report.Closed)
	assert.Len(t, report.Opened, 1)
}

func TestManager_Run_BenchmarkFailure(t *testing.T) {
	f := newManagerFixture(t)
	f.sentiment()
	f.market.SetError("SPY", errors.New("benchmark down"))
	f.advisor.On("ProposePositions", mock.Anything, mock.Anything, mock.Anything).Return([]domain.BuyOrder{}, nil)

	report := f.manager.Run(context.Background())

	assert.True(t, report.Failed(StepPerformance))
	assert.Nil(t, report.Reconciliation)
	assert.Empty(t, report.Closed)

	aapl, _ := f.store.Position("AAPL", testingpkg.BuyDate)
	assert.True(t, aapl.IsOpen())
	f.advisor.AssertNumberOfCalls(t, "ProposePositions", 1)
}

func TestManager_Run_LedgerFailureIsRepairedNextRun(t *testing.T) {
	f := newManagerFixture(t)
	f.sentiment()
	f.store.LedgerErr = errors.New("ledger locked")
	f.advisor.On("ProposePositions", mock.Anything, mock.Anything, mock.Anything).Return([]domain.BuyOrder{}, nil)

	report := f.manager.Run(context.Background())

	assert.True(t, report.Failed(StepRealizedGains))
	assert.Nil(t, report.RealizedGains)
	aapl, _ := f.store.Position("AAPL", testingpkg.BuyDate)
	assert.False(t, aapl.IsOpen())
	assert.Contains(t, f.publisher.Types(), events.PositionClosed)
	assert.NotContains(t, f.publisher.Types(), events.RealizedGainsRecorded)

	// The closing is stored, so the next run on the date writes its entry
	f.store.LedgerErr = nil
	report = f.manager.Run(context.Background())

	assert.Empty(t, report.Failures)
	assert.Empty(t, report.Closed)
	ledger, err := f.store.ListRealizedGains(context.Background())
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, 1000.0, ledger[0].TotalBuyValue)
	assert.Equal(t, 1200.0, ledger[0].TotalSellValue)
}

func TestManager_Run_CloseFailure(t *testing.T) {
	f := newManagerFixture(t)
	f.sentiment()
	f.store.CloseErr = errors.New("disk full")
	f.advisor.On("ProposePositions", mock.Anything, mock.Anything, mock.Anything).Return([]domain.BuyOrder{}, nil)

	report := f.manager.Run(context.Background())

	assert.True(t, report.Failed(StepClosePositions))
	assert.Empty(t, report.Closed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "disk full", report.Failures[0].Message)

	// Nothing was sold, so the run date's entry is empty
	aapl, _ := f.store.Position("AAPL", testingpkg.BuyDate)
	assert.True(t, aapl.IsOpen())
	require.NotNil(t, report.RealizedGains)
	assert.Zero(t, report.RealizedGains.Entry.TotalBuyValue)
	assert.Zero(t, report.RealizedGains.Entry.TotalSellValue)
}

func TestManager_Run_CloseFailureThenRerunCountsOnce(t *testing.T) {
	f := newManagerFixture(t)
	f.sentiment()
	f.store.CloseErr = errors.New("disk full")
	f.advisor.On("ProposePositions", mock.Anything, mock.Anything, mock.Anything).Return([]domain.BuyOrder{}, nil)

	report := f.manager.Run(context.Background())
	require.True(t, report.Failed(StepClosePositions))

	f.store.CloseErr = nil
	for i := 0; i < 2; i++ {
		report = f.manager.Run(context.Background())
		assert.Empty(t, report.Failures)

		ledger, err := f.store.ListRealizedGains(context.Background())
		require.NoError(t, err)
		require.Len(t, ledger, 1)
		assert.Equal(t, "2024-03-01", domain.FormatDate(ledger[0].Date))
		assert.Equal(t, 1000.0, ledger[0].TotalBuyValue)
		assert.Equal(t, 1200.0, ledger[0].TotalSellValue)
		assert.Equal(t, 20.0, ledger[0].PerformancePercent)
	}
	// Only the first successful run closed anything
	assert.Empty(t, report.Closed)
}

func TestManager_Run_NoSellsKeepsLifetime(t *testing.T) {
	f := newManagerFixture(t)
	f.sentiment()
	_, err := f.store.WipeAllPositions(context.Background())
	require.NoError(t, err)
	f.store.AddPositions(testingpkg.NewPosition("MSFT", testingpkg.BuyDate, 5))
	require.NoError(t, f.store.AppendRealizedGains(context.Background(), domain.RealizedGainsEntry{
		Date: domain.MustParseDate("2024-02-01"), TotalBuyValue: 100, TotalSellValue: 150, PerformancePercent: 50,
	}))
	f.advisor.On("ProposePositions", mock.Anything, mock.Anything, mock.Anything).Return([]domain.BuyOrder{}, nil)

	report := f.manager.Run(context.Background())

	assert.Empty(t, report.Failures)
	assert.Empty(t, report.Closed)
	require.NotNil(t, report.Reconciliation)
	assert.Empty(t, report.Reconciliation.SellCandidates)
	require.NotNil(t, report.RealizedGains)
	assert.Equal(t, 0, report.RealizedGains.Positions)
	assert.Equal(t, 50.0, report.RealizedGains.LifetimeGainPercent)

	ledger, err := f.store.ListRealizedGains(context.Background())
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, "2024-03-01", domain.FormatDate(ledger[1].Date))
	assert.Zero(t, ledger[1].TotalBuyValue)
	assert.Zero(t, ledger[1].TotalSellValue)
	assert.Zero(t, ledger[1].PerformancePercent)
	assert.Contains(t, f.publisher.Types(), events.RealizedGainsRecorded)
}

func TestManager_Run_SentimentDegradesToEmpty(t *testing.T) {
	f := newManagerFixture(t)
	f.advisor.On("Ask", mock.Anything, "mood US").Return("US calm", nil)
	f.advisor.On("Ask", mock.Anything, "mood EU").Return("", errors.New("search failed"))

	var prompt string
	f.advisor.On("ProposePositions", mock.Anything, mock.MatchedBy(func(msgs []domain.Message) bool {
		prompt = msgs[0].Content
		return true
	}), mock.Anything).Return([]domain.BuyOrder{}, nil)

	report := f.manager.Run(context.Background())

	assert.Equal(t, "", report.Sentiment)
	assert.True(t, report.Failed(StepSentiment))
	assert.True(t, strings.Contains(prompt, `"general_market_sentiment":""`))
	f.advisor.AssertNotCalled(t, "Ask", mock.Anything, "mood China")
}

func TestManager_Run_UniverseFailureSkipsBuyPhase(t *testing.T) {
	f := newManagerFixture(t)
	f.universe.Err = errors.New("universe unavailable")

	report := f.manager.Run(context.Background())

	// The reconciler needs the universe too
	assert.True(t, report.Failed(StepReconcile))
	assert.True(t, report.Failed(StepUniverse))
	assert.Empty(t, report.Opened)
	f.advisor.AssertNotCalled(t, "ProposePositions", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []events.EventType{events.RealizedGainsRecorded, events.RunCompleted}, f.publisher.Types())
}

func TestManager_Run_NoRecommendationsToday(t *testing.T) {
	f := newManagerFixture(t)
	f.sentiment()
	f.universe.List = []string{"TSLA"}

	report := f.manager.Run(context.Background())

	assert.Empty(t, report.Failures)
	assert.Equal(t, 0, report.Recommendations)
	f.advisor.AssertNotCalled(t, "ProposePositions", mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_Run_AdviseWithoutRecommendations(t *testing.T) {
	f := newManagerFixture(t)
	f.sentiment()
	f.universe.List = []string{"TSLA"}
	f.manager.adviseEmpty = true

	var prompt string
	f.advisor.On("ProposePositions", mock.Anything, mock.MatchedBy(func(msgs []domain.Message) bool {
		prompt = msgs[0].Content
		return true
	}), "sys").Return([]domain.BuyOrder{}, nil)

	report := f.manager.Run(context.Background())

	assert.Empty(t, report.Failures)
	assert.Equal(t, 0, report.Recommendations)
	assert.Contains(t, prompt, `"stocks":[]`)
	f.advisor.AssertNumberOfCalls(t, "ProposePositions", 1)
}

func TestManager_Run_AdvisorTimeout(t *testing.T) {
	f := newManagerFixture(t)
	f.sentiment()
	f.manager.advisorTimeout = 50 * time.Millisecond
	f.advisor.On("ProposePositions", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	report := f.manager.Run(context.Background())

	require.True(t, report.Failed(StepAdvisor))
	for _, failure := range report.Failures {
		if failure.Step == StepAdvisor {
			assert.Equal(t, domain.KindTimeout, failure.Kind)
		}
	}
	assert.Empty(t, report.Opened)
	// The sell phase is unaffected
	assert.Len(t, report.Closed, 1)
}

func TestManager_Run_PublishFailureIsNotFatal(t *testing.T) {
	f := newManagerFixture(t)
	f.sentiment()
	f.publisher.Err = errors.New("broker down")
	f.advisor.On("ProposePositions", mock.Anything, mock.Anything, mock.Anything).Return([]domain.BuyOrder{}, nil)

	report := f.manager.Run(context.Background())

	assert.Empty(t, report.Failures)
	assert.Len(t, report.Closed, 1)
}

func TestManager_Today(t *testing.T) {
	f := newManagerFixture(t)
	// 02:00 UTC on Mar 2 is still Mar 1 in New York
	f.manager.clock = func() time.Time { return time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC) }

	assert.Equal(t, "2024-03-01", domain.FormatDate(f.manager.Today()))
}
