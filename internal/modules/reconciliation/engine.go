// Package reconciliation decides which held positions to close, builds their closing
// records and keeps the realized gains ledger.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/pkg/formulas"
)

// PerformanceLookup finds the computed record of one position
type PerformanceLookup interface {
	RecordFor(ticker string, buyDate time.Time) (domain.PerformanceRecord, bool)
}

// Result is the outcome of one reconciliation
type Result struct {
	Date           time.Time              `json:"date"`
	SellCandidates []string               `json:"sell_candidates"`
	ClosingRecords []domain.ClosingRecord `json:"closing_records"`
	Unpriced       []domain.Position      `json:"unpriced,omitempty"` // Candidates without a performance record stay open

	// Totals of this run's closing records
	RunBuyValue    float64 `json:"run_buy_value"`
	RunSellValue   float64 `json:"run_sell_value"`
	RunGainPercent float64 `json:"run_gain_percent"`
}

// Realized is the ledger entry of a run date and the lifetime performance including it
type Realized struct {
	Entry               domain.RealizedGainsEntry `json:"entry"`
	Positions           int                       `json:"positions"` // Positions sold on the entry date
	LifetimeGainPercent float64                   `json:"lifetime_gain_percent"`
}

// Engine selects sell candidates and records realized gains
type Engine struct {
	universe        domain.UniverseProvider
	recommendations domain.RecommendationStore
	ledger          domain.LedgerStore
	callTimeout     time.Duration
	log             zerolog.Logger
}

// NewEngine creates a reconciliation engine
func NewEngine(
	universe domain.UniverseProvider,
	recommendations domain.RecommendationStore,
	ledger domain.LedgerStore,
	callTimeout time.Duration,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		universe:        universe,
		recommendations: recommendations,
		ledger:          ledger,
		callTimeout:     callTimeout,
		log:             log.With().Str("service", "reconciliation").Logger(),
	}
}

// SellCandidates returns the held tickers whose recommendation for date is anything but BUY.
// Held tickers without a recommendation on date are kept.
func (e *Engine) SellCandidates(ctx context.Context, held []string, date time.Time) ([]string, error) {
	if len(held) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	universe, err := e.universe.Tickers(callCtx)
	cancel()
	if err != nil {
		return nil, &domain.OpError{Op: "list universe", Kind: kindOr(err, domain.KindExternalService), Err: err}
	}

	callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
	recs, err := e.recommendations.LookupRecommendations(callCtx, universe, date)
	cancel()
	if err != nil {
		return nil, &domain.OpError{Op: "lookup recommendations", Kind: kindOr(err, domain.KindPersistence), Err: err}
	}

	decisions := make(map[string]domain.Decision, len(recs))
	for _, r := range recs {
		decisions[r.Ticker] = r.Decision
	}

	var candidates []string
	for _, ticker := range held {
		decision, ok := decisions[ticker]
		if !ok || decision.IsBuy() {
			continue
		}
		candidates = append(candidates, ticker)
	}
	return candidates, nil
}

// Reconcile selects the open positions to close and builds their closing records.
// Nothing is persisted; the caller writes the records and then calls RecordRealizedGains.
func (e *Engine) Reconcile(ctx context.Context, date time.Time, open []domain.Position, perf PerformanceLookup) (*Result, error) {
	result := &Result{Date: date}

	held := HeldTickers(open)
	candidates, err := e.SellCandidates(ctx, held, date)
	if err != nil {
		return nil, err
	}
	result.SellCandidates = candidates

	if len(candidates) == 0 {
		e.log.Info().Int("held", len(held)).Msg("No sell candidates")
		return result, nil
	}
	e.log.Info().Strs("tickers", candidates).Msg("Sell candidates")

	result.ClosingRecords, result.Unpriced = BuildClosingRecords(open, candidates, perf, date)
	for _, p := range result.Unpriced {
		e.log.Warn().
			Str("ticker", p.Ticker).
			Str("buy_date", domain.FormatDate(p.BuyDate)).
			Msg("No performance record for sell candidate, leaving position open")
	}
	if len(result.ClosingRecords) == 0 {
		return result, nil
	}

	var buyValues, sellValues []float64
	for _, r := range result.ClosingRecords {
		buyValues = append(buyValues, r.Valuation.BuyDateValue)
		sellValues = append(sellValues, r.Valuation.CurrentValue)
	}
	result.RunBuyValue = formulas.Sum(buyValues)
	result.RunSellValue = formulas.Sum(sellValues)
	result.RunGainPercent = RealizedGainPercent(result.RunBuyValue, result.RunSellValue)

	e.log.Info().
		Int("closing", len(result.ClosingRecords)).
		Float64("buy_value", result.RunBuyValue).
		Float64("sell_value", result.RunSellValue).
		Float64("performance", result.RunGainPercent).
		Msg("Positions to close")

	return result, nil
}

// RecordRealizedGains stores the ledger entry of date, derived from the positions
// sold on that date, and returns it with the lifetime performance over every entry.
// positions must reflect the store after the run's closings. The entry replaces any
// earlier entry of the same date and is written even when nothing was sold.
func (e *Engine) RecordRealizedGains(ctx context.Context, date time.Time, positions []domain.Position) (*Realized, error) {
	entry, sold := EntryFor(date, positions)

	entries, err := e.listLedger(ctx)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	err = e.ledger.AppendRealizedGains(callCtx, entry)
	cancel()
	if err != nil {
		return nil, &domain.OpError{Op: "append realized gains", Kind: kindOr(err, domain.KindPersistence), Err: err}
	}

	realized := &Realized{
		Entry:               entry,
		Positions:           sold,
		LifetimeGainPercent: LifetimePerformance(ReplaceEntry(entries, entry)),
	}

	e.log.Info().
		Str("date", domain.FormatDate(date)).
		Int("positions", sold).
		Float64("buy_value", entry.TotalBuyValue).
		Float64("sell_value", entry.TotalSellValue).
		Float64("performance", entry.PerformancePercent).
		Float64("lifetime_performance", realized.LifetimeGainPercent).
		Msg("Realized gains recorded")

	return realized, nil
}

func (e *Engine) listLedger(ctx context.Context) ([]domain.RealizedGainsEntry, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	entries, err := e.ledger.ListRealizedGains(callCtx)
	if err != nil {
		return nil, &domain.OpError{Op: "list realized gains", Kind: kindOr(err, domain.KindPersistence), Err: fmt.Errorf("failed to read ledger: %w", err)}
	}
	return entries, nil
}

func kindOr(err error, fallback domain.ErrorKind) domain.ErrorKind {
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		return kind
	}
	return fallback
}
