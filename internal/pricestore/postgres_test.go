package pricestore

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// Requires a disposable database; the table is truncated.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	store := NewPostgresStore(pool)
	require.NoError(t, store.Migrate(ctx))

	_, err = pool.Exec(ctx, "TRUNCATE data.daily_prices")
	require.NoError(t, err)
	require.NoError(t, store.SaveBatch(ctx, fixture()))

	storeContract(t, store)
}
