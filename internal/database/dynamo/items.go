package dynamo

import (
	"github.com/aristath/portfolio-advisor/internal/domain"
)

// realizedGainsKey is the single hash key every ledger row lives under
const realizedGainsKey = "realizedGains"

// portfolioItem is a row of the Portfolio table (hash stock, range date)
type portfolioItem struct {
	Stock               string   `dynamodbav:"stock"`
	Date                string   `dynamodbav:"date"`
	Name                string   `dynamodbav:"name"`
	NumberOfShares      float64  `dynamodbav:"number_of_shares_to_buy"`
	SellDate            *string  `dynamodbav:"sell_date,omitempty"`
	Performance         *float64 `dynamodbav:"performance,omitempty"`
	PerformanceRatio    *float64 `dynamodbav:"performance_ratio,omitempty"`
	CurrentValue        *float64 `dynamodbav:"current_value,omitempty"`
	BuyDateValue        *float64 `dynamodbav:"buy_date_value,omitempty"`
	CurrentPrice        *float64 `dynamodbav:"current_price,omitempty"`
	BuyDateClosingPrice *float64 `dynamodbav:"buy_date_closing_price,omitempty"`
}

func (it portfolioItem) position() (domain.Position, error) {
	buyDate, err := domain.ParseDate(it.Date)
	if err != nil {
		return domain.Position{}, err
	}
	pos := domain.Position{
		Ticker:  it.Stock,
		Name:    it.Name,
		BuyDate: buyDate,
		Shares:  it.NumberOfShares,
	}

	if it.SellDate != nil && *it.SellDate != "" {
		sold, err := domain.ParseDate(*it.SellDate)
		if err != nil {
			return domain.Position{}, err
		}
		pos.SellDate = &sold
		pos.Valuation = &domain.Valuation{
			BuyClosingPrice:    deref(it.BuyDateClosingPrice),
			BuyDateValue:       deref(it.BuyDateValue),
			CurrentPrice:       deref(it.CurrentPrice),
			CurrentValue:       deref(it.CurrentValue),
			PerformancePercent: deref(it.Performance),
			PerformanceRatio:   deref(it.PerformanceRatio),
		}
	}
	return pos, nil
}

func closedItem(rec domain.ClosingRecord) portfolioItem {
	sellDate := domain.FormatDate(rec.SellDate)
	v := rec.Valuation
	return portfolioItem{
		Stock:               rec.Ticker,
		Date:                domain.FormatDate(rec.BuyDate),
		Name:                rec.Name,
		NumberOfShares:      rec.Shares,
		SellDate:            &sellDate,
		Performance:         &v.PerformancePercent,
		PerformanceRatio:    &v.PerformanceRatio,
		CurrentValue:        &v.CurrentValue,
		BuyDateValue:        &v.BuyDateValue,
		CurrentPrice:        &v.CurrentPrice,
		BuyDateClosingPrice: &v.BuyClosingPrice,
	}
}

// realizedGainsItem is a row of the RealizedGains table (hash key, range date)
type realizedGainsItem struct {
	Key            string  `dynamodbav:"key"`
	Date           string  `dynamodbav:"date"`
	TotalSellValue float64 `dynamodbav:"total_sell_value"`
	TotalBuyValue  float64 `dynamodbav:"total_buy_value"`
	Performance    float64 `dynamodbav:"performance"`
}

// stockAnalysisItem is a row of the StockAnalytics table (hash stock, range date)
type stockAnalysisItem struct {
	Stock              string  `dynamodbav:"stock"`
	Date               string  `dynamodbav:"date"`
	Close              float64 `dynamodbav:"close"`
	Name               string  `dynamodbav:"name,omitempty"`
	Rank               *int    `dynamodbav:"rank,omitempty"`
	StockNews          string  `dynamodbav:"stock_news,omitempty"`
	InvestmentDecision string  `dynamodbav:"investment_decision,omitempty"`
	Explanation        string  `dynamodbav:"explanation,omitempty"`
	Industry           string  `dynamodbav:"industry,omitempty"`
}

func (it stockAnalysisItem) recommendation() (domain.Recommendation, error) {
	date, err := domain.ParseDate(it.Date)
	if err != nil {
		return domain.Recommendation{}, err
	}
	rank := domain.DefaultRank
	if it.Rank != nil {
		rank = *it.Rank
	}
	return domain.Recommendation{
		Ticker:      it.Stock,
		Date:        date,
		Name:        it.Name,
		Close:       it.Close,
		Rank:        rank,
		Decision:    domain.Decision(it.InvestmentDecision),
		Explanation: it.Explanation,
		Industry:    it.Industry,
		News:        it.StockNews,
	}, nil
}

func analysisItem(rec domain.Recommendation) stockAnalysisItem {
	rank := rec.Rank
	return stockAnalysisItem{
		Stock:              rec.Ticker,
		Date:               domain.FormatDate(rec.Date),
		Close:              rec.Close,
		Name:               rec.Name,
		Rank:               &rank,
		StockNews:          rec.News,
		InvestmentDecision: string(rec.Decision),
		Explanation:        rec.Explanation,
		Industry:           rec.Industry,
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
