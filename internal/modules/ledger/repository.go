// Package ledger stores the realized gains history in ledger.db.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/pkg/formulas"
)

// Repository handles realized gains database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// AppendRealizedGains upserts the entry for its date. Totals are stored rounded to two decimals.
func (r *Repository) AppendRealizedGains(ctx context.Context, entry domain.RealizedGainsEntry) error {
	date := domain.FormatDate(entry.Date)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO realized_gains (date, total_buy_value, total_sell_value, performance, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_buy_value = excluded.total_buy_value,
			total_sell_value = excluded.total_sell_value,
			performance = excluded.performance,
			recorded_at = excluded.recorded_at`,
		date,
		formulas.Round2(entry.TotalBuyValue),
		formulas.Round2(entry.TotalSellValue),
		formulas.Round2(entry.PerformancePercent),
		time.Now().Unix(),
	)
	if err != nil {
		return domain.Wrap("append realized gains", domain.KindPersistence, fmt.Errorf("failed to upsert %s: %w", date, err))
	}

	r.log.Debug().Str("date", date).Float64("performance", entry.PerformancePercent).Msg("Realized gains stored")
	return nil
}

// ListRealizedGains returns every entry ordered by date
func (r *Repository) ListRealizedGains(ctx context.Context) ([]domain.RealizedGainsEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, total_buy_value, total_sell_value, performance
		FROM realized_gains
		ORDER BY date`)
	if err != nil {
		return nil, domain.Wrap("list realized gains", domain.KindPersistence, err)
	}
	defer rows.Close()

	var entries []domain.RealizedGainsEntry
	for rows.Next() {
		var (
			entry domain.RealizedGainsEntry
			date  string
		)
		if err := rows.Scan(&date, &entry.TotalBuyValue, &entry.TotalSellValue, &entry.PerformancePercent); err != nil {
			return nil, fmt.Errorf("failed to scan realized gains: %w", err)
		}
		if entry.Date, err = domain.ParseDate(date); err != nil {
			r.log.Warn().Err(err).Msg("Skipping realized gains row with bad date")
			continue
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating realized gains: %w", err)
	}

	return entries, nil
}
