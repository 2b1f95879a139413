// Package domain provides core domain models and types.
package domain

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format used for every stored date
const DateLayout = "2006-01-02"

// Decision is an analyst investment decision. Free text in practice; only BUY is special.
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionHold Decision = "HOLD"
	// DecisionNone is what the analytics pipeline writes when the analyst gave nothing
	DecisionNone Decision = "None"
)

// IsBuy reports an exact BUY. Anything else, including lowercase or whitespace variants, is not a buy.
func (d Decision) IsBuy() bool {
	return d == DecisionBuy
}

// Valuation is the price and value snapshot of a position against its buy date.
type Valuation struct {
	BuyClosingPrice    float64 `json:"buy_closing_price"`
	BuyDateValue       float64 `json:"buy_date_value"`
	CurrentPrice       float64 `json:"current_price"`
	CurrentValue       float64 `json:"current_value"`
	PerformancePercent float64 `json:"performance_percent"`
	PerformanceRatio   float64 `json:"performance_ratio"`
}

// Position is a holding keyed by (Ticker, BuyDate). A position with a SellDate is closed.
type Position struct {
	Ticker    string     `json:"ticker"`
	Name      string     `json:"name"`
	BuyDate   time.Time  `json:"buy_date"`
	Shares    float64    `json:"shares"`
	SellDate  *time.Time `json:"sell_date,omitempty"`
	Valuation *Valuation `json:"valuation,omitempty"` // Final valuation, written when closed
}

// IsOpen reports whether the position has not been sold
func (p Position) IsOpen() bool {
	return p.SellDate == nil
}

// Key returns the storage key of the position
func (p Position) Key() PositionKey {
	return PositionKey{Ticker: p.Ticker, BuyDate: FormatDate(p.BuyDate)}
}

// PositionKey identifies a position. A ticker may be held under several buy dates.
type PositionKey struct {
	Ticker  string
	BuyDate string
}

// BenchmarkValuation is the equal-dollar benchmark position bought on the same day.
type BenchmarkValuation struct {
	Ticker             string  `json:"ticker"`
	Shares             float64 `json:"shares"`
	BuyClosingPrice    float64 `json:"buy_closing_price"`
	BuyDateValue       float64 `json:"buy_date_value"`
	CurrentPrice       float64 `json:"current_price"`
	CurrentValue       float64 `json:"current_value"`
	PerformancePercent float64 `json:"performance_percent"`
}

// PerformanceRecord is the computed valuation of one open position for one run.
type PerformanceRecord struct {
	Ticker    string             `json:"ticker"`
	Name      string             `json:"name"`
	BuyDate   time.Time          `json:"buy_date"`
	Shares    float64            `json:"shares"`
	Valuation Valuation          `json:"valuation"`
	Benchmark BenchmarkValuation `json:"benchmark"`
}

// Key returns the key of the position the record was computed for
func (r PerformanceRecord) Key() PositionKey {
	return PositionKey{Ticker: r.Ticker, BuyDate: FormatDate(r.BuyDate)}
}

// ClosingRecord is a position's buy-side fields plus the sale date and final valuation.
type ClosingRecord struct {
	Ticker    string    `json:"ticker"`
	Name      string    `json:"name"`
	BuyDate   time.Time `json:"buy_date"`
	Shares    float64   `json:"shares"`
	SellDate  time.Time `json:"sell_date"`
	Valuation Valuation `json:"valuation"`
}

// Position returns the closed position the record persists as
func (c ClosingRecord) Position() Position {
	sellDate := c.SellDate
	valuation := c.Valuation
	return Position{
		Ticker:    c.Ticker,
		Name:      c.Name,
		BuyDate:   c.BuyDate,
		Shares:    c.Shares,
		SellDate:  &sellDate,
		Valuation: &valuation,
	}
}

// Recommendation is an analyst recommendation for one ticker on one date
type Recommendation struct {
	Ticker      string    `json:"stock"`
	Date        time.Time `json:"date"`
	Name        string    `json:"name"`
	Close       float64   `json:"close"`
	Rank        int       `json:"rank"`
	Decision    Decision  `json:"investment_decision"`
	Explanation string    `json:"explanation"`
	Industry    string    `json:"industry"`
	News        string    `json:"stock_news,omitempty"` // Verbose narrative, never sent to the advisor
}

// Defaults the analytics pipeline writes for missing fields
const (
	DefaultRank        = 999
	DefaultExplanation = "No explanation found"
)

// WithDefaults normalizes the ticker and fills missing rank, decision and explanation
func (r Recommendation) WithDefaults() Recommendation {
	r.Ticker = strings.ToUpper(strings.TrimSpace(r.Ticker))
	if r.Rank == 0 {
		r.Rank = DefaultRank
	}
	if r.Decision == "" {
		r.Decision = DecisionNone
	}
	if r.Explanation == "" {
		r.Explanation = DefaultExplanation
	}
	return r
}

// RealizedGainsEntry aggregates the closings of one run date
type RealizedGainsEntry struct {
	Date               time.Time `json:"date"`
	TotalBuyValue      float64   `json:"total_buy_value"`
	TotalSellValue     float64   `json:"total_sell_value"`
	PerformancePercent float64   `json:"performance_percent"`
}

// BuyOrder is one position proposed by the advisor
type BuyOrder struct {
	Ticker      string  `json:"symbol"`
	Name        string  `json:"name"`
	SharesToBuy float64 `json:"number_of_shares_to_buy"`
}

// Normalize trims the order and upper-cases the ticker
func (o BuyOrder) Normalize() BuyOrder {
	o.Ticker = strings.ToUpper(strings.TrimSpace(o.Ticker))
	o.Name = strings.TrimSpace(o.Name)
	return o
}

// Validate rejects orders that cannot become a position
func (o BuyOrder) Validate() error {
	if o.Ticker == "" {
		return &OpError{Op: "validate buy order", Kind: KindMalformedRecord, Err: ErrInvalidPosition}
	}
	if !(o.SharesToBuy > 0) {
		return &OpError{Op: "validate buy order", Kind: KindMalformedRecord, Ticker: o.Ticker, Err: ErrInvalidPosition}
	}
	return nil
}

// Message is one turn of an advisor conversation
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
