// Package performance values open positions against their buy date and an
// equal-dollar benchmark position.
package performance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/pkg/formulas"
)

// SkippedPosition is an open position the engine could not value
type SkippedPosition struct {
	Ticker  string           `json:"ticker"`
	BuyDate string           `json:"buy_date"`
	Kind    domain.ErrorKind `json:"kind"`
	Reason  string           `json:"reason"`
}

// Report is the outcome of one performance computation
type Report struct {
	Records []domain.PerformanceRecord `json:"records"`
	Skipped []SkippedPosition          `json:"skipped,omitempty"`

	TotalBuyValue         float64 `json:"total_buy_value"`
	TotalCurrentValue     float64 `json:"total_current_value"`
	BenchmarkBuyValue     float64 `json:"benchmark_buy_value"`
	BenchmarkCurrentValue float64 `json:"benchmark_current_value"`
	PortfolioGainPercent  float64 `json:"portfolio_gain_percent"`
	BenchmarkGainPercent  float64 `json:"benchmark_gain_percent"`

	byKey map[domain.PositionKey]int
}

// RecordFor returns the record computed for the position (ticker, buyDate)
func (r *Report) RecordFor(ticker string, buyDate time.Time) (domain.PerformanceRecord, bool) {
	if r == nil {
		return domain.PerformanceRecord{}, false
	}
	idx, ok := r.byKey[domain.PositionKey{Ticker: ticker, BuyDate: domain.FormatDate(buyDate)}]
	if !ok {
		return domain.PerformanceRecord{}, false
	}
	return r.Records[idx], true
}

// Engine computes per-position and aggregate performance. It keeps no state between calls.
type Engine struct {
	market      domain.MarketDataSource
	benchmark   string
	callTimeout time.Duration
	log         zerolog.Logger
}

// NewEngine creates a performance engine comparing against benchmark (e.g. SPY)
func NewEngine(market domain.MarketDataSource, benchmark string, callTimeout time.Duration, log zerolog.Logger) *Engine {
	return &Engine{
		market:      market,
		benchmark:   benchmark,
		callTimeout: callTimeout,
		log:         log.With().Str("service", "performance").Logger(),
	}
}

// Compute values every open position. Closed positions are ignored.
//
// The benchmark history is fetched once per call; failing to get it fails the whole
// computation. Any failure for a single position skips that position only, and the
// aggregates are summed over the positions that were fully valued.
func (e *Engine) Compute(ctx context.Context, positions []domain.Position) (*Report, error) {
	report := &Report{byKey: make(map[domain.PositionKey]int)}

	open := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	if len(open) == 0 {
		e.log.Info().Msg("No open positions to value")
		return report, nil
	}

	bench, err := e.fetch(ctx, e.benchmark)
	if err != nil {
		return nil, &domain.OpError{Op: "fetch benchmark history", Kind: kindOr(err, domain.KindExternalService), Ticker: e.benchmark, Err: err}
	}
	benchQuote, err := bench.Quote()
	if err != nil {
		return nil, err
	}

	// One history per ticker per run; several buy dates of the same ticker share it
	histories := map[string]*domain.PriceHistory{e.benchmark: bench}
	historyErrs := make(map[string]error)

	var buyValues, currentValues, benchBuyValues, benchCurrentValues []float64

	for _, pos := range open {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		history, err := e.historyFor(ctx, pos.Ticker, histories, historyErrs)
		if err == nil {
			var record domain.PerformanceRecord
			record, err = e.value(pos, history, bench, benchQuote)
			if err == nil {
				report.byKey[record.Key()] = len(report.Records)
				report.Records = append(report.Records, record)

				buyValues = append(buyValues, record.Valuation.BuyDateValue)
				currentValues = append(currentValues, record.Valuation.CurrentValue)
				benchBuyValues = append(benchBuyValues, record.Benchmark.BuyDateValue)
				benchCurrentValues = append(benchCurrentValues, record.Benchmark.CurrentValue)

				e.log.Info().
					Str("ticker", pos.Ticker).
					Str("buy_date", domain.FormatDate(pos.BuyDate)).
					Float64("performance", record.Valuation.PerformancePercent).
					Float64("benchmark_performance", record.Benchmark.PerformancePercent).
					Msg("Valued position")
				continue
			}
		}

		skipped := SkippedPosition{
			Ticker:  pos.Ticker,
			BuyDate: domain.FormatDate(pos.BuyDate),
			Kind:    domain.KindOf(err),
			Reason:  err.Error(),
		}
		report.Skipped = append(report.Skipped, skipped)
		e.log.Warn().
			Err(err).
			Str("ticker", pos.Ticker).
			Str("buy_date", skipped.BuyDate).
			Str("kind", skipped.Kind.String()).
			Msg("Skipping position")
	}

	report.TotalBuyValue = formulas.Sum(buyValues)
	report.TotalCurrentValue = formulas.Sum(currentValues)
	report.BenchmarkBuyValue = formulas.Sum(benchBuyValues)
	report.BenchmarkCurrentValue = formulas.Sum(benchCurrentValues)
	report.PortfolioGainPercent = formulas.DollarWeightedReturn(buyValues, currentValues)
	report.BenchmarkGainPercent = formulas.DollarWeightedReturn(benchBuyValues, benchCurrentValues)

	e.log.Info().
		Int("valued", len(report.Records)).
		Int("skipped", len(report.Skipped)).
		Float64("portfolio_gain", report.PortfolioGainPercent).
		Float64("benchmark_gain", report.BenchmarkGainPercent).
		Str("benchmark", e.benchmark).
		Msg("Portfolio performance computed")

	return report, nil
}

func (e *Engine) value(pos domain.Position, history, bench *domain.PriceHistory, benchQuote float64) (domain.PerformanceRecord, error) {
	if !(pos.Shares > 0) {
		return domain.PerformanceRecord{}, &domain.OpError{
			Op: "value position", Kind: domain.KindMalformedRecord, Ticker: pos.Ticker,
			Err: fmt.Errorf("%w: shares %v", domain.ErrInvalidPosition, pos.Shares),
		}
	}

	buyClose, err := history.CloseOn(pos.BuyDate)
	if err != nil {
		return domain.PerformanceRecord{}, err
	}
	quote, err := history.Quote()
	if err != nil {
		return domain.PerformanceRecord{}, err
	}
	benchBuyClose, err := bench.CloseOn(pos.BuyDate)
	if err != nil {
		return domain.PerformanceRecord{}, err
	}

	buyValue := pos.Shares * buyClose
	currentValue := pos.Shares * quote

	// Equal-dollar benchmark position bought at the benchmark close of the same day
	benchShares := buyValue / benchBuyClose
	benchCurrentValue := benchShares * benchQuote

	return domain.PerformanceRecord{
		Ticker:  pos.Ticker,
		Name:    pos.Name,
		BuyDate: pos.BuyDate,
		Shares:  pos.Shares,
		Valuation: domain.Valuation{
			BuyClosingPrice:    buyClose,
			BuyDateValue:       buyValue,
			CurrentPrice:       quote,
			CurrentValue:       currentValue,
			PerformancePercent: formulas.PercentChange(currentValue, buyValue),
			PerformanceRatio:   formulas.Ratio(currentValue, buyValue),
		},
		Benchmark: domain.BenchmarkValuation{
			Ticker:             e.benchmark,
			Shares:             benchShares,
			BuyClosingPrice:    benchBuyClose,
			BuyDateValue:       buyValue,
			CurrentPrice:       benchQuote,
			CurrentValue:       benchCurrentValue,
			PerformancePercent: formulas.PercentChange(benchCurrentValue, buyValue),
		},
	}, nil
}

func (e *Engine) historyFor(ctx context.Context, ticker string, cache map[string]*domain.PriceHistory, errs map[string]error) (*domain.PriceHistory, error) {
	if h, ok := cache[ticker]; ok {
		return h, nil
	}
	if err, ok := errs[ticker]; ok {
		return nil, err
	}

	h, err := e.fetch(ctx, ticker)
	if err != nil {
		err = &domain.OpError{Op: "fetch history", Kind: kindOr(err, domain.KindExternalService), Ticker: ticker, Err: err}
		errs[ticker] = err
		return nil, err
	}
	cache[ticker] = h
	return h, nil
}

// fetch bounds one market data call by the engine's timeout
func (e *Engine) fetch(ctx context.Context, ticker string) (*domain.PriceHistory, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	h, err := e.market.GetHistory(callCtx, ticker)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("empty history for %s", ticker)
	}
	return h, nil
}

func kindOr(err error, fallback domain.ErrorKind) domain.ErrorKind {
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		return kind
	}
	return fallback
}
