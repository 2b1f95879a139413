// Package recommendations stores the analyst recommendations the advisor trades on.
package recommendations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/database"
	"github.com/aristath/portfolio-advisor/internal/domain"
)

// lookupChunkSize keeps IN lists well under SQLite's variable limit
const lookupChunkSize = 500

// Repository handles recommendation database operations (portfolio.db, stock_analytics)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new recommendation repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "recommendations").Logger(),
	}
}

// LookupRecommendations returns the recommendations stored for the tickers on date.
// Tickers without a recommendation are simply absent.
func (r *Repository) LookupRecommendations(ctx context.Context, tickers []string, date time.Time) ([]domain.Recommendation, error) {
	day := domain.FormatDate(date)
	var out []domain.Recommendation

	for start := 0; start < len(tickers); start += lookupChunkSize {
		end := start + lookupChunkSize
		if end > len(tickers) {
			end = len(tickers)
		}
		chunk := tickers[start:end]

		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, day)
		for _, t := range chunk {
			args = append(args, t)
		}

		query := `SELECT ticker, date, name, close, rank, decision, explanation, industry, news
			FROM stock_analytics
			WHERE date = ? AND ticker IN (?` + strings.Repeat(",?", len(chunk)-1) + `)
			ORDER BY rank, ticker`

		recs, err := r.query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}

	return out, nil
}

// SaveRecommendations upserts recommendations keyed by (ticker, date)
func (r *Repository) SaveRecommendations(ctx context.Context, recs []domain.Recommendation) (int, error) {
	saved := 0
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO stock_analytics (ticker, date, name, close, rank, decision, explanation, industry, news)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(ticker, date) DO UPDATE SET
				name = excluded.name,
				close = excluded.close,
				rank = excluded.rank,
				decision = excluded.decision,
				explanation = excluded.explanation,
				industry = excluded.industry,
				news = excluded.news`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range recs {
			rec = rec.WithDefaults()
			if rec.Ticker == "" || rec.Date.IsZero() {
				r.log.Warn().Str("ticker", rec.Ticker).Msg("Skipping recommendation without ticker or date")
				continue
			}
			if _, err := stmt.ExecContext(ctx, rec.Ticker, domain.FormatDate(rec.Date), rec.Name, rec.Close,
				rec.Rank, string(rec.Decision), rec.Explanation, rec.Industry, rec.News); err != nil {
				return fmt.Errorf("failed to save recommendation %s: %w", rec.Ticker, err)
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, domain.Wrap("save recommendations", domain.KindPersistence, err)
	}

	r.log.Info().Int("saved", saved).Msg("Saved recommendations")
	return saved, nil
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Recommendation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Wrap("query recommendations", domain.KindPersistence, err)
	}
	defer rows.Close()

	var recs []domain.Recommendation
	for rows.Next() {
		var (
			rec      domain.Recommendation
			date     string
			decision string
		)
		if err := rows.Scan(&rec.Ticker, &date, &rec.Name, &rec.Close, &rec.Rank, &decision,
			&rec.Explanation, &rec.Industry, &rec.News); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		parsed, err := domain.ParseDate(date)
		if err != nil {
			r.log.Warn().Err(err).Str("ticker", rec.Ticker).Msg("Skipping recommendation with bad date")
			continue
		}
		rec.Date = parsed
		rec.Decision = domain.Decision(decision)
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recommendations: %w", err)
	}

	return recs, nil
}
