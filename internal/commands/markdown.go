package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"

	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/internal/modules/portfolio"
)

// usd formats an amount in dollars, e.g. $1,234.56
func usd(amount float64) string {
	return money.NewFromFloat(amount, money.USD).Display()
}

func percent(p float64) string {
	return fmt.Sprintf("%+.2f%%", p)
}

// GainsMarkdown renders the realized gains ledger as a markdown table
func GainsMarkdown(entries []domain.RealizedGainsEntry, lifetime float64) string {
	var b strings.Builder

	b.WriteString("# Realized gains\n\n")
	if len(entries) == 0 {
		b.WriteString("No positions have been closed yet.\n")
		return b.String()
	}

	b.WriteString("| Date | Bought for | Sold for | Performance |\n")
	b.WriteString("|:---|---:|---:|---:|\n")

	var totalBuy, totalSell float64
	for _, e := range entries {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			domain.FormatDate(e.Date), usd(e.TotalBuyValue), usd(e.TotalSellValue), percent(e.PerformancePercent))
		totalBuy += e.TotalBuyValue
		totalSell += e.TotalSellValue
	}
	fmt.Fprintf(&b, "| **Total** | **%s** | **%s** | |\n", usd(totalBuy), usd(totalSell))

	fmt.Fprintf(&b, "\n**Lifetime performance:** %s\n", percent(lifetime))
	return b.String()
}

// RunSummaryMarkdown renders what a run did
func RunSummaryMarkdown(r *portfolio.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", r.Date)
	fmt.Fprintf(&b, "Run `%s` took %s.\n", r.RunID, r.Duration().Round(time.Millisecond))

	if perf := r.Performance; perf != nil && len(perf.Records) > 0 {
		b.WriteString("\n## Open positions\n\n")
		b.WriteString("| Ticker | Bought | Value | Performance | Benchmark |\n")
		b.WriteString("|:---|:---|---:|---:|---:|\n")
		for _, rec := range perf.Records {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				rec.Ticker, domain.FormatDate(rec.BuyDate), usd(rec.Valuation.CurrentValue),
				percent(rec.Valuation.PerformancePercent), percent(rec.Benchmark.PerformancePercent))
		}
		fmt.Fprintf(&b, "\nPortfolio %s against benchmark %s.\n",
			percent(perf.PortfolioGainPercent), percent(perf.BenchmarkGainPercent))
		for _, s := range perf.Skipped {
			fmt.Fprintf(&b, "\n- skipped %s (%s): %s", s.Ticker, s.BuyDate, s.Kind)
		}
		if len(perf.Skipped) > 0 {
			b.WriteString("\n")
		}
	}

	if len(r.Closed) > 0 {
		b.WriteString("\n## Closed\n\n")
		for _, c := range r.Closed {
			fmt.Fprintf(&b, "- %s bought %s: %s (%s)\n",
				c.Ticker, domain.FormatDate(c.BuyDate), usd(c.Valuation.CurrentValue), percent(c.Valuation.PerformancePercent))
		}
	}

	if g := r.RealizedGains; g != nil {
		fmt.Fprintf(&b, "\nRealized %s on %s (%d sold), lifetime %s.\n",
			percent(g.Entry.PerformancePercent), domain.FormatDate(g.Entry.Date), g.Positions, percent(g.LifetimeGainPercent))
	}

	if len(r.Opened) > 0 {
		b.WriteString("\n## Opened\n\n")
		for _, p := range r.Opened {
			fmt.Fprintf(&b, "- %s %g shares\n", p.Ticker, p.Shares)
		}
	}

	if len(r.Failures) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", f.Step, f.Kind, f.Message)
		}
	}

	return b.String()
}
