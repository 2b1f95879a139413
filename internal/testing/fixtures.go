package testing

import (
	"fmt"
	"time"

	"github.com/aristath/portfolio-advisor/internal/domain"
)

// Dates used across tests
var (
	BuyDate = domain.MustParseDate("2024-01-02")
	RunDate = domain.MustParseDate("2024-03-01")
)

// FixedClock returns a clock that always reports the run date at 22:30 New York time
func FixedClock() func() time.Time {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return func() time.Time {
		return time.Date(RunDate.Year(), RunDate.Month(), RunDate.Day(), 22, 30, 0, 0, loc)
	}
}

// NewPosition builds an open position
func NewPosition(ticker string, buyDate time.Time, shares float64) domain.Position {
	return domain.Position{
		Ticker:  ticker,
		Name:    ticker + " Inc.",
		BuyDate: buyDate,
		Shares:  shares,
	}
}

// NewHistory builds a price history with one close per date string
func NewHistory(ticker string, live float64, closes map[string]float64) *domain.PriceHistory {
	return &domain.PriceHistory{
		Ticker:    ticker,
		Closes:    closes,
		LiveQuote: live,
	}
}

// NewRecommendation builds a recommendation for the run date
func NewRecommendation(ticker string, decision domain.Decision) domain.Recommendation {
	return domain.Recommendation{
		Ticker:      ticker,
		Date:        RunDate,
		Name:        ticker + " Inc.",
		Close:       100,
		Rank:        1,
		Decision:    decision,
		Explanation: fmt.Sprintf("%s rationale for %s", decision, ticker),
		Industry:    "Technology",
		News:        "Long narrative about " + ticker,
	}
}
