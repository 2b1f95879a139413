package clientdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/domain"
)

// CachedMarketData serves fresh cached histories and falls through to the wrapped source otherwise.
// Stale entries are never served since a stale live quote would misprice a sale.
type CachedMarketData struct {
	source domain.MarketDataSource
	repo   *Repository
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedMarketData wraps source with the cache. A zero ttl means TTLPriceHistory.
func NewCachedMarketData(source domain.MarketDataSource, repo *Repository, ttl time.Duration, log zerolog.Logger) *CachedMarketData {
	if ttl <= 0 {
		ttl = TTLPriceHistory
	}
	return &CachedMarketData{
		source: source,
		repo:   repo,
		ttl:    ttl,
		log:    log.With().Str("component", "market_data_cache").Logger(),
	}
}

// GetHistory implements domain.MarketDataSource
func (c *CachedMarketData) GetHistory(ctx context.Context, ticker string) (*domain.PriceHistory, error) {
	cached, err := c.repo.GetIfFresh(ctx, ticker)
	if err != nil {
		// A broken cache must not block the run
		c.log.Warn().Err(err).Str("ticker", ticker).Msg("Cache read failed")
	}
	if cached != nil {
		return cached, nil
	}

	h, err := c.source.GetHistory(ctx, ticker)
	if err != nil {
		return nil, err
	}

	if err := c.repo.Store(ctx, h, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("ticker", ticker).Msg("Cache write failed")
	}
	return h, nil
}
