package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/internal/events"
	"github.com/aristath/portfolio-advisor/internal/modules/performance"
	"github.com/aristath/portfolio-advisor/internal/modules/prompts"
	"github.com/aristath/portfolio-advisor/internal/modules/reconciliation"
)

// ManagerDeps are the collaborators of a Manager
type ManagerDeps struct {
	Positions       domain.PositionStore
	Recommendations domain.RecommendationStore
	Universe        domain.UniverseProvider
	Advisor         domain.AdvisorService
	Performance     *performance.Engine
	Reconciler      *reconciliation.Engine
	Prompts         *prompts.Prompts
	Publisher       events.Publisher
}

// ManagerOptions tune a Manager
type ManagerOptions struct {
	Location       *time.Location // Market timezone that decides "today"
	CallTimeout    time.Duration
	AdvisorTimeout time.Duration
	Clock          func() time.Time

	// AdviseWithoutRecommendations asks the advisor with an empty recommendation list
	// instead of skipping the buy phase
	AdviseWithoutRecommendations bool
}

// Manager runs the daily cycle: value and close positions, then ask the advisor for new ones
type Manager struct {
	positions       domain.PositionStore
	recommendations domain.RecommendationStore
	universe        domain.UniverseProvider
	advisor         domain.AdvisorService
	performance     *performance.Engine
	reconciler      *reconciliation.Engine
	prompts         *prompts.Prompts
	publisher       events.Publisher

	loc            *time.Location
	callTimeout    time.Duration
	advisorTimeout time.Duration
	clock          func() time.Time
	adviseEmpty    bool
	log            zerolog.Logger
}

// NewManager creates a portfolio manager
func NewManager(deps ManagerDeps, opts ManagerOptions, log zerolog.Logger) *Manager {
	if deps.Prompts == nil {
		deps.Prompts = prompts.Default()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.AdvisorTimeout <= 0 {
		opts.AdvisorTimeout = 3 * time.Minute
	}

	return &Manager{
		positions:       deps.Positions,
		recommendations: deps.Recommendations,
		universe:        deps.Universe,
		advisor:         deps.Advisor,
		performance:     deps.Performance,
		reconciler:      deps.Reconciler,
		prompts:         deps.Prompts,
		publisher:       deps.Publisher,
		loc:             opts.Location,
		callTimeout:     opts.CallTimeout,
		advisorTimeout:  opts.AdvisorTimeout,
		clock:           opts.Clock,
		adviseEmpty:     opts.AdviseWithoutRecommendations,
		log:             log.With().Str("service", "portfolio_manager").Logger(),
	}
}

// Today is the run date: the calendar date of the clock in the market timezone
func (m *Manager) Today() time.Time {
	return domain.Today(m.clock(), m.loc)
}

// Run executes one daily cycle. It always completes; failed steps are logged and
// listed in the report, and the buy phase runs even when the sell phase failed.
func (m *Manager) Run(ctx context.Context) *RunReport {
	today := m.Today()
	report := &RunReport{
		RunID:     uuid.NewString(),
		Date:      domain.FormatDate(today),
		StartedAt: m.clock(),
	}
	log := m.log.With().Str("run_id", report.RunID).Str("date", report.Date).Logger()
	log.Info().Msg("Starting portfolio run")

	m.rebalance(ctx, today, report, log)
	m.buy(ctx, today, report, log)

	report.FinishedAt = m.clock()
	m.publish(ctx, report.RunID, &events.RunCompletedData{
		Date:     report.Date,
		Closed:   len(report.Closed),
		Opened:   len(report.Opened),
		Failures: len(report.Failures),
	})

	log.Info().
		Int("closed", len(report.Closed)).
		Int("opened", len(report.Opened)).
		Int("failures", len(report.Failures)).
		Dur("duration", report.Duration()).
		Msg("Portfolio run finished")
	return report
}

// rebalance values the open positions, closes the ones no longer rated BUY and then
// records the run date's realized gains from the stored positions
func (m *Manager) rebalance(ctx context.Context, today time.Time, report *RunReport, log zerolog.Logger) {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	all, err := m.positions.ListPositions(callCtx)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load positions")
		report.fail(StepLoadPositions, err)
		return
	}

	all, ok := m.closeSells(ctx, today, all, report, log)
	if !ok {
		return
	}

	realized, err := m.reconciler.RecordRealizedGains(ctx, today, all)
	if err != nil {
		log.Error().Err(err).Msg("Failed to record realized gains")
		report.fail(StepRealizedGains, err)
		return
	}
	report.RealizedGains = realized

	m.publish(ctx, report.RunID, &events.RealizedGainsRecordedData{
		Date:                domain.FormatDate(realized.Entry.Date),
		TotalBuyValue:       realized.Entry.TotalBuyValue,
		TotalSellValue:      realized.Entry.TotalSellValue,
		PerformancePercent:  realized.Entry.PerformancePercent,
		LifetimePerformance: realized.LifetimeGainPercent,
	})
}

// closeSells closes the open positions on sell candidates and returns every position
// as stored afterwards. ok is false when the stored state is unknown.
func (m *Manager) closeSells(ctx context.Context, today time.Time, all []domain.Position, report *RunReport, log zerolog.Logger) ([]domain.Position, bool) {
	var open []domain.Position
	for _, p := range all {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	if len(open) == 0 {
		log.Info().Msg("No open positions")
		return all, true
	}

	perf, err := m.performance.Compute(ctx, open)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute performance")
		report.fail(StepPerformance, err)
		return all, true
	}
	report.Performance = perf

	result, err := m.reconciler.Reconcile(ctx, today, open, perf)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reconcile positions")
		report.fail(StepReconcile, err)
		return all, true
	}
	report.Reconciliation = result

	if len(result.ClosingRecords) == 0 {
		return all, true
	}

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	err = m.positions.ClosePositions(callCtx, result.ClosingRecords)
	cancel()
	if err != nil {
		log.Error().Err(err).Int("records", len(result.ClosingRecords)).Msg("Failed to persist closed positions")
		report.fail(StepClosePositions, err)

		// Some records may have been written before the failure
		callCtx, cancel = context.WithTimeout(ctx, m.callTimeout)
		stored, err := m.positions.ListPositions(callCtx)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("Failed to reload positions after close failure")
			report.fail(StepLoadPositions, err)
			return nil, false
		}
		return stored, true
	}
	report.Closed = result.ClosingRecords

	for _, r := range result.ClosingRecords {
		m.publish(ctx, report.RunID, &events.PositionClosedData{
			Ticker:             r.Ticker,
			BuyDate:            domain.FormatDate(r.BuyDate),
			SellDate:           domain.FormatDate(r.SellDate),
			Shares:             r.Shares,
			BuyDateValue:       r.Valuation.BuyDateValue,
			SellValue:          r.Valuation.CurrentValue,
			PerformancePercent: r.Valuation.PerformancePercent,
		})
	}
	return reconciliation.ApplyClosings(all, result.ClosingRecords), true
}

// buy asks the advisor for new positions and stores them under today's date
func (m *Manager) buy(ctx context.Context, today time.Time, report *RunReport, log zerolog.Logger) {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	tickers, err := m.universe.Tickers(callCtx)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list universe")
		report.fail(StepUniverse, err)
		return
	}
	log.Info().Int("stocks", len(tickers)).Msg("Universe loaded")

	report.Sentiment = m.marketSentiment(ctx, report, log)

	callCtx, cancel = context.WithTimeout(ctx, m.callTimeout)
	recs, err := m.recommendations.LookupRecommendations(callCtx, tickers, today)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to look up recommendations")
		report.fail(StepRecommendations, err)
		return
	}
	report.Recommendations = len(recs)
	log.Info().Int("recommendations", len(recs)).Msg("Recommendations found for today")
	if len(recs) == 0 && !m.adviseEmpty {
		log.Warn().Msg("No recommendations for today, not asking the advisor")
		return
	}

	content, err := m.prompts.PortfolioUserPrompt(report.Sentiment, recs)
	if err != nil {
		report.fail(StepAdvisor, err)
		return
	}

	callCtx, cancel = context.WithTimeout(ctx, m.advisorTimeout)
	orders, err := m.advisor.ProposePositions(callCtx, []domain.Message{
		{Role: domain.RoleUser, Content: content},
	}, m.prompts.SystemPrompt())
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("Advisor failed to propose positions")
		report.fail(StepAdvisor, err)
		return
	}
	report.Proposed = orders
	log.Info().Int("orders", len(orders)).Msg("Advisor proposed positions")

	callCtx, cancel = context.WithTimeout(ctx, m.callTimeout)
	saved, err := m.positions.SaveNewPositions(callCtx, orders, today)
	cancel()
	report.Opened = saved
	if err != nil {
		log.Error().Err(err).Int("saved", len(saved)).Msg("Failed to save new positions")
		report.fail(StepSavePositions, err)
	}

	for _, p := range saved {
		m.publish(ctx, report.RunID, &events.PositionOpenedData{
			Ticker:  p.Ticker,
			Name:    p.Name,
			BuyDate: domain.FormatDate(p.BuyDate),
			Shares:  p.Shares,
		})
	}
}

// marketSentiment asks for one summary per region and joins them with "; ".
// Any failure yields an empty sentiment.
func (m *Manager) marketSentiment(ctx context.Context, report *RunReport, log zerolog.Logger) string {
	summaries := make([]string, 0, len(prompts.Regions))
	for _, region := range prompts.Regions {
		callCtx, cancel := context.WithTimeout(ctx, m.advisorTimeout)
		summary, err := m.advisor.Ask(callCtx, m.prompts.SentimentPrompt(region))
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("region", region).Msg("Failed to get market sentiment")
			report.fail(StepSentiment, fmt.Errorf("sentiment for %s: %w", region, err))
			return ""
		}
		summaries = append(summaries, strings.TrimSpace(summary))
	}
	return strings.Join(summaries, "; ")
}

func (m *Manager) publish(ctx context.Context, runID string, data events.EventData) {
	if err := m.publisher.Publish(ctx, events.New(runID, data)); err != nil {
		m.log.Warn().Err(err).Str("event", string(data.EventType())).Msg("Failed to publish event")
	}
}
