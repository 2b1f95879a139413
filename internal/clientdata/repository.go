// Package clientdata caches market data responses in client_data.db.
// Payloads are msgpack blobs with an expiration timestamp for cache-first behavior.
package clientdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/portfolio-advisor/internal/domain"
)

// Repository provides cache operations for price histories
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Store saves a history with expiration = now + ttl, replacing any previous entry
func (r *Repository) Store(ctx context.Context, h *domain.PriceHistory, ttl time.Duration) error {
	blob, err := msgpack.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal price history: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO price_history (ticker, data, expires_at) VALUES (?, ?, ?)",
		h.Ticker, blob, r.now().Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store price history for %s: %w", h.Ticker, err)
	}
	return nil
}

// GetIfFresh returns the history only if it has not expired.
// Returns nil, nil when the ticker is missing or stale.
func (r *Repository) GetIfFresh(ctx context.Context, ticker string) (*domain.PriceHistory, error) {
	return r.get(ctx, "SELECT data FROM price_history WHERE ticker = ? AND expires_at > ?", ticker, r.now().Unix())
}

// Get returns the history regardless of expiration. Returns nil, nil when missing.
func (r *Repository) Get(ctx context.Context, ticker string) (*domain.PriceHistory, error) {
	return r.get(ctx, "SELECT data FROM price_history WHERE ticker = ?", ticker)
}

func (r *Repository) get(ctx context.Context, query string, args ...interface{}) (*domain.PriceHistory, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}

	var h domain.PriceHistory
	if err := msgpack.Unmarshal(blob, &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal price history: %w", err)
	}
	return &h, nil
}

// Delete removes a specific entry
func (r *Repository) Delete(ctx context.Context, ticker string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM price_history WHERE ticker = ?", ticker); err != nil {
		return fmt.Errorf("failed to delete price history for %s: %w", ticker, err)
	}
	return nil
}

// DeleteExpired removes all rows where expires_at < now and returns how many went
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM price_history WHERE expires_at < ?", r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired price history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
