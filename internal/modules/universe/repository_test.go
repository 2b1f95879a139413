package universe

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/portfolio-advisor/internal/testing"
)

func TestRepository_UpsertAndTickers(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "universe")
	defer cleanup()

	repo := NewRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	n, err := repo.Upsert(ctx, []Security{
		{Ticker: "msft", Name: "Microsoft", Industry: "Technology", Active: true},
		{Ticker: "AAPL", Name: "Apple", Active: true},
		{Ticker: "GE", Name: "General Electric", Active: false},
		{Ticker: " "},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tickers, err := repo.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, tickers)

	// Empty name keeps the stored one
	_, err = repo.Upsert(ctx, []Security{{Ticker: "MSFT", Active: false}})
	require.NoError(t, err)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "MSFT", all[2].Ticker)
	assert.Equal(t, "Microsoft", all[2].Name)
	assert.False(t, all[2].Active)
}

func TestStatic(t *testing.T) {
	u := NewStatic([]string{"msft", "AAPL", "", "MSFT"})
	tickers, err := u.Tickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, tickers)
}
