// Package yahoo fetches daily closes and live quotes from Yahoo Finance.
package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/aristath/portfolio-advisor/internal/domain"
)

// Client implements domain.MarketDataSource using go-yfinance
type Client struct {
	period string
	loc    *time.Location
	now    func() time.Time
	log    zerolog.Logger
}

// NewClient creates a Yahoo Finance client. Bar dates are read in loc, the exchange's timezone.
func NewClient(period string, loc *time.Location, log zerolog.Logger) *Client {
	if period == "" {
		period = "2y"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		period: period,
		loc:    loc,
		now:    time.Now,
		log:    log.With().Str("client", "yahoo").Logger(),
	}
}

type historyResult struct {
	history *domain.PriceHistory
	err     error
}

// GetHistory returns the daily close history and the live quote for symbol.
// go-yfinance is not context aware, so the fetch runs in its own goroutine and is abandoned on cancellation.
func (c *Client) GetHistory(ctx context.Context, symbol string) (*domain.PriceHistory, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	done := make(chan historyResult, 1)

	go func() {
		h, err := c.fetch(symbol)
		done <- historyResult{history: h, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &domain.OpError{Op: "get history", Kind: domain.KindTimeout, Ticker: symbol, Err: ctx.Err()}
	case res := <-done:
		return res.history, res.err
	}
}

func (c *Client) fetch(symbol string) (*domain.PriceHistory, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, &domain.OpError{Op: "create ticker", Kind: domain.KindExternalService, Ticker: symbol, Err: err}
	}
	defer t.Close()

	bars, err := t.History(models.HistoryParams{
		Period:     c.period,
		Interval:   "1d",
		AutoAdjust: true,
	})
	if err != nil {
		return nil, &domain.OpError{Op: "get history", Kind: domain.KindExternalService, Ticker: symbol, Err: err}
	}
	if len(bars) == 0 {
		return nil, &domain.OpError{Op: "get history", Kind: domain.KindPriceNotFound, Ticker: symbol, Err: fmt.Errorf("no bars for period %s", c.period)}
	}

	live := c.liveQuote(t, symbol)
	return historyFromBars(symbol, bars, live, c.loc, c.now()), nil
}

// liveQuote returns the best available current price, or 0 when Yahoo has none
func (c *Client) liveQuote(t *ticker.Ticker, symbol string) float64 {
	quote, err := t.Quote()
	if err == nil && quote != nil {
		switch {
		case quote.RegularMarketPrice > 0:
			return quote.RegularMarketPrice
		case quote.PreMarketPrice > 0:
			return quote.PreMarketPrice
		case quote.PostMarketPrice > 0:
			return quote.PostMarketPrice
		}
	} else if err != nil {
		c.log.Debug().Err(err).Str("ticker", symbol).Msg("Quote failed, trying info")
	}

	info, err := t.Info()
	if err == nil && info != nil && info.CurrentPrice > 0 {
		return info.CurrentPrice
	}

	c.log.Warn().Str("ticker", symbol).Msg("No live quote available")
	return 0
}

// historyFromBars keys each bar's close by its date in loc. Later bars win on duplicate dates.
func historyFromBars(symbol string, bars []models.Bar, live float64, loc *time.Location, fetchedAt time.Time) *domain.PriceHistory {
	closes := make(map[string]float64, len(bars))
	for _, bar := range bars {
		if !(bar.Close > 0) {
			continue
		}
		closes[domain.FormatDate(bar.Date.In(loc))] = bar.Close
	}
	return &domain.PriceHistory{
		Ticker:    symbol,
		Closes:    closes,
		LiveQuote: live,
		FetchedAt: fetchedAt,
	}
}
