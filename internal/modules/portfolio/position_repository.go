package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/database"
	"github.com/aristath/portfolio-advisor/internal/domain"
)

// PositionRepository handles position database operations (portfolio.db)
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

const positionColumns = `ticker, buy_date, name, shares, sell_date, buy_closing_price, buy_date_value,
	current_price, current_value, performance, performance_ratio`

// ListPositions returns every position, open and closed, oldest first
func (r *PositionRepository) ListPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY buy_date, ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			// One bad row must not hide the others
			r.log.Warn().Err(err).Msg("Skipping malformed position row")
			continue
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// SaveNewPositions writes one open position per valid order. Re-saving an order for the same
// ticker and date updates the still-open position instead of duplicating it.
func (r *PositionRepository) SaveNewPositions(ctx context.Context, orders []domain.BuyOrder, date time.Time) ([]domain.Position, error) {
	buyDate := domain.FormatDate(date)
	now := time.Now().Unix()
	var saved []domain.Position

	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		saved = saved[:0]
		for _, order := range orders {
			order = order.Normalize()
			if err := order.Validate(); err != nil {
				r.log.Warn().Err(err).Str("ticker", order.Ticker).Float64("shares", order.SharesToBuy).Msg("Skipping invalid buy order")
				continue
			}

			res, err := tx.ExecContext(ctx, `
				INSERT INTO positions (ticker, buy_date, name, shares, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(ticker, buy_date) DO UPDATE SET
					name = excluded.name,
					shares = excluded.shares,
					updated_at = excluded.updated_at
				WHERE positions.sell_date IS NULL`,
				order.Ticker, buyDate, order.Name, order.SharesToBuy, now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert position %s: %w", order.Ticker, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				r.log.Warn().Str("ticker", order.Ticker).Str("buy_date", buyDate).Msg("Position already closed for this date, not reopening")
				continue
			}

			saved = append(saved, domain.Position{
				Ticker:  order.Ticker,
				Name:    order.Name,
				BuyDate: domain.DateOf(date),
				Shares:  order.SharesToBuy,
			})
		}
		return nil
	})
	if err != nil {
		return nil, domain.Wrap("save new positions", domain.KindPersistence, err)
	}

	r.log.Info().Int("saved", len(saved)).Int("orders", len(orders)).Str("date", buyDate).Msg("Saved new positions")
	return saved, nil
}

// ClosePositions writes the closing records in one transaction, keyed by (ticker, buy_date).
// A record without a stored position is inserted as a closed position.
func (r *PositionRepository) ClosePositions(ctx context.Context, records []domain.ClosingRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().Unix()

	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO positions (ticker, buy_date, name, shares, sell_date, buy_closing_price, buy_date_value,
				current_price, current_value, performance, performance_ratio, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(ticker, buy_date) DO UPDATE SET
				sell_date = excluded.sell_date,
				buy_closing_price = excluded.buy_closing_price,
				buy_date_value = excluded.buy_date_value,
				current_price = excluded.current_price,
				current_value = excluded.current_value,
				performance = excluded.performance,
				performance_ratio = excluded.performance_ratio,
				updated_at = excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare close statement: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			v := rec.Valuation
			_, err := stmt.ExecContext(ctx,
				rec.Ticker, domain.FormatDate(rec.BuyDate), rec.Name, rec.Shares, domain.FormatDate(rec.SellDate),
				v.BuyClosingPrice, v.BuyDateValue, v.CurrentPrice, v.CurrentValue, v.PerformancePercent, v.PerformanceRatio,
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to close position %s/%s: %w", rec.Ticker, domain.FormatDate(rec.BuyDate), err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Wrap("close positions", domain.KindPersistence, err)
	}

	r.log.Info().Int("closed", len(records)).Msg("Closed positions")
	return nil
}

// WipeAllPositions deletes every position and returns how many were removed
func (r *PositionRepository) WipeAllPositions(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM positions`)
	if err != nil {
		return 0, domain.Wrap("wipe positions", domain.KindPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count wiped positions: %w", err)
	}

	r.log.Warn().Int64("deleted", n).Msg("Wiped all positions")
	return int(n), nil
}

func scanPosition(rows *sql.Rows) (domain.Position, error) {
	var (
		pos                                    domain.Position
		buyDate                                string
		sellDate                               sql.NullString
		buyClose, buyValue, curPrice, curValue sql.NullFloat64
		perf, ratio                            sql.NullFloat64
	)

	if err := rows.Scan(&pos.Ticker, &buyDate, &pos.Name, &pos.Shares, &sellDate,
		&buyClose, &buyValue, &curPrice, &curValue, &perf, &ratio); err != nil {
		return pos, err
	}

	parsed, err := domain.ParseDate(buyDate)
	if err != nil {
		return pos, fmt.Errorf("position %s: %w", pos.Ticker, err)
	}
	pos.BuyDate = parsed

	if sellDate.Valid && sellDate.String != "" {
		sold, err := domain.ParseDate(sellDate.String)
		if err != nil {
			return pos, fmt.Errorf("position %s: %w", pos.Ticker, err)
		}
		pos.SellDate = &sold
		pos.Valuation = &domain.Valuation{
			BuyClosingPrice:    buyClose.Float64,
			BuyDateValue:       buyValue.Float64,
			CurrentPrice:       curPrice.Float64,
			CurrentValue:       curValue.Float64,
			PerformancePercent: perf.Float64,
			PerformanceRatio:   ratio.Float64,
		}
	}

	return pos, nil
}
