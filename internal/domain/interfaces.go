package domain

import (
	"context"
	"time"
)

// MarketDataSource provides daily close history and the live quote for a ticker
type MarketDataSource interface {
	GetHistory(ctx context.Context, ticker string) (*PriceHistory, error)
}

// PositionStore persists positions keyed by (ticker, buy date)
type PositionStore interface {
	// ListPositions returns open and closed positions
	ListPositions(ctx context.Context) ([]Position, error)

	// SaveNewPositions writes one open position per valid order, bought on date.
	// Invalid orders are skipped. Returns the positions written.
	SaveNewPositions(ctx context.Context, orders []BuyOrder, date time.Time) ([]Position, error)

	// ClosePositions writes each record under its position's key (insert or replace)
	ClosePositions(ctx context.Context, records []ClosingRecord) error

	// WipeAllPositions deletes every position. Maintenance only.
	WipeAllPositions(ctx context.Context) (int, error)
}

// LedgerStore persists realized gains entries, one per date
type LedgerStore interface {
	// AppendRealizedGains upserts the entry for its date
	AppendRealizedGains(ctx context.Context, entry RealizedGainsEntry) error

	// ListRealizedGains returns every entry ordered by date
	ListRealizedGains(ctx context.Context) ([]RealizedGainsEntry, error)
}

// RecommendationStore reads (and ingests) analyst recommendations
type RecommendationStore interface {
	// LookupRecommendations returns the recommendations that exist for (ticker, date).
	// Missing keys are absent from the result.
	LookupRecommendations(ctx context.Context, tickers []string, date time.Time) ([]Recommendation, error)

	SaveRecommendations(ctx context.Context, recs []Recommendation) (int, error)
}

// UniverseProvider lists the investable tickers
type UniverseProvider interface {
	Tickers(ctx context.Context) ([]string, error)
}

// AdvisorService is the opaque advisory service (an LLM in production)
type AdvisorService interface {
	// Ask answers a free-text question
	Ask(ctx context.Context, prompt string) (string, error)

	// ProposePositions returns structured buy orders for a conversation
	ProposePositions(ctx context.Context, messages []Message, systemPrompt string) ([]BuyOrder, error)
}
