package reconciliation

import (
	"time"

	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/pkg/formulas"
)

// HeldTickers returns the distinct tickers of the open positions in first-seen order
func HeldTickers(positions []domain.Position) []string {
	seen := make(map[string]bool, len(positions))
	var tickers []string
	for _, p := range positions {
		if !p.IsOpen() || seen[p.Ticker] {
			continue
		}
		seen[p.Ticker] = true
		tickers = append(tickers, p.Ticker)
	}
	return tickers
}

// BuildClosingRecords closes every open position on a candidate ticker, copying the
// valuation from that position's own performance record. Positions without a record
// are returned as unpriced.
func BuildClosingRecords(open []domain.Position, candidates []string, perf PerformanceLookup, sellDate time.Time) ([]domain.ClosingRecord, []domain.Position) {
	selling := make(map[string]bool, len(candidates))
	for _, t := range candidates {
		selling[t] = true
	}

	var records []domain.ClosingRecord
	var unpriced []domain.Position
	for _, p := range open {
		if !p.IsOpen() || !selling[p.Ticker] {
			continue
		}

		var rec domain.PerformanceRecord
		ok := false
		if perf != nil {
			rec, ok = perf.RecordFor(p.Ticker, p.BuyDate)
		}
		if !ok {
			unpriced = append(unpriced, p)
			continue
		}

		records = append(records, domain.ClosingRecord{
			Ticker:    p.Ticker,
			Name:      p.Name,
			BuyDate:   p.BuyDate,
			Shares:    p.Shares,
			SellDate:  sellDate,
			Valuation: rec.Valuation,
		})
	}
	return records, unpriced
}

// RealizedGainPercent is ((sell / buy) - 1) * 100 rounded to two decimals, 0 when buy is 0
func RealizedGainPercent(totalBuy, totalSell float64) float64 {
	return formulas.Round2(formulas.PercentChange(totalSell, totalBuy))
}

// LifetimePerformance sums buy and sell totals across every entry and returns the
// realized gain percent of the sums
func LifetimePerformance(entries []domain.RealizedGainsEntry) float64 {
	buys := make([]float64, 0, len(entries))
	sells := make([]float64, 0, len(entries))
	for _, e := range entries {
		buys = append(buys, e.TotalBuyValue)
		sells = append(sells, e.TotalSellValue)
	}
	return RealizedGainPercent(formulas.Sum(buys), formulas.Sum(sells))
}

// EntryFor builds the ledger entry of date from every position sold on that date.
// It also returns how many positions the entry counts.
func EntryFor(date time.Time, positions []domain.Position) (domain.RealizedGainsEntry, int) {
	day := domain.FormatDate(date)
	var buys, sells []float64
	for _, p := range positions {
		if p.SellDate == nil || p.Valuation == nil || domain.FormatDate(*p.SellDate) != day {
			continue
		}
		buys = append(buys, p.Valuation.BuyDateValue)
		sells = append(sells, p.Valuation.CurrentValue)
	}

	entry := domain.RealizedGainsEntry{
		Date:           date,
		TotalBuyValue:  formulas.Round2(formulas.Sum(buys)),
		TotalSellValue: formulas.Round2(formulas.Sum(sells)),
	}
	entry.PerformancePercent = RealizedGainPercent(entry.TotalBuyValue, entry.TotalSellValue)
	return entry, len(buys)
}

// ApplyClosings returns positions with each closed record replacing the position of
// the same (ticker, buy date)
func ApplyClosings(positions []domain.Position, records []domain.ClosingRecord) []domain.Position {
	closed := make(map[domain.PositionKey]domain.Position, len(records))
	for _, r := range records {
		p := r.Position()
		closed[p.Key()] = p
	}

	out := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if c, ok := closed[p.Key()]; ok {
			p = c
		}
		out = append(out, p)
	}
	return out
}

// ReplaceEntry returns entries with the entry of the same date replaced (or appended)
func ReplaceEntry(entries []domain.RealizedGainsEntry, entry domain.RealizedGainsEntry) []domain.RealizedGainsEntry {
	day := domain.FormatDate(entry.Date)
	out := make([]domain.RealizedGainsEntry, 0, len(entries)+1)
	replaced := false
	for _, e := range entries {
		if domain.FormatDate(e.Date) == day {
			out = append(out, entry)
			replaced = true
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, entry)
	}
	return out
}
