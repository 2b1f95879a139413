// Package universe holds the investable universe: the tickers the analytics pipeline covers.
package universe

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/database"
	"github.com/aristath/portfolio-advisor/internal/domain"
)

// Security is one universe member
type Security struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Active   bool   `json:"active"`
}

// Repository handles security database operations (universe.db)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new universe repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "universe").Logger(),
	}
}

// Tickers returns the active tickers, sorted
func (r *Repository) Tickers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ticker FROM securities WHERE active = 1 ORDER BY ticker`)
	if err != nil {
		return nil, domain.Wrap("list universe", domain.KindPersistence, err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating securities: %w", err)
	}
	return tickers, nil
}

// GetAll returns every security, active or not
func (r *Repository) GetAll(ctx context.Context) ([]Security, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ticker, name, industry, active FROM securities ORDER BY ticker`)
	if err != nil {
		return nil, domain.Wrap("list securities", domain.KindPersistence, err)
	}
	defer rows.Close()

	var out []Security
	for rows.Next() {
		var s Security
		if err := rows.Scan(&s.Ticker, &s.Name, &s.Industry, &s.Active); err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Upsert inserts or updates securities and returns how many were written
func (r *Repository) Upsert(ctx context.Context, securities []Security) (int, error) {
	now := time.Now().Unix()
	written := 0

	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		for _, s := range securities {
			s.Ticker = strings.ToUpper(strings.TrimSpace(s.Ticker))
			if s.Ticker == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO securities (ticker, name, industry, active, added_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(ticker) DO UPDATE SET
					name = CASE WHEN excluded.name = '' THEN securities.name ELSE excluded.name END,
					industry = CASE WHEN excluded.industry = '' THEN securities.industry ELSE excluded.industry END,
					active = excluded.active`,
				s.Ticker, s.Name, s.Industry, s.Active, now); err != nil {
				return fmt.Errorf("failed to upsert security %s: %w", s.Ticker, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, domain.Wrap("upsert securities", domain.KindPersistence, err)
	}

	r.log.Info().Int("written", written).Msg("Universe updated")
	return written, nil
}

// Static is a universe fixed by configuration
type Static struct {
	tickers []string
}

// NewStatic creates a fixed universe; tickers are upper-cased, de-duplicated and sorted
func NewStatic(tickers []string) *Static {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return &Static{tickers: out}
}

// Tickers implements domain.UniverseProvider
func (s *Static) Tickers(context.Context) ([]string, error) {
	return append([]string(nil), s.tickers...), nil
}
