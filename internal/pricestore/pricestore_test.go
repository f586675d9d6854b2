package pricestore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signal-backtest/internal/contracts"
	"github.com/wonny/signal-backtest/pkg/database"
)

func day(s string) time.Time {
	d, err := contracts.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func rec(date, symbol string, open, close float64) contracts.PriceRecord {
	return contracts.PriceRecord{
		Date:   day(date),
		Symbol: symbol,
		Open:   decimal.NewFromFloat(open),
		High:   decimal.NewFromFloat(close + 1),
		Low:    decimal.NewFromFloat(open - 1),
		Close:  decimal.NewFromFloat(close),
	}
}

func withMarket(r contracts.PriceRecord, market string) contracts.PriceRecord {
	r.Market = market
	return r
}

func fixture() []contracts.PriceRecord {
	// deliberately unsorted; the last AAA row has no market
	return []contracts.PriceRecord{
		withMarket(rec("2024-01-03", "BBB", 20, 21), "NYSE"),
		withMarket(rec("2024-01-02", "AAA", 10, 11), "NASDAQ"),
		withMarket(rec("2024-01-02", "BBB", 19, 20), "NYSE"),
		withMarket(rec("2024-01-03", "AAA", 11, 12.5), "NASDAQ"),
		rec("2024-01-05", "AAA", 12, 13),
	}
}

// storeContract runs the same read checks against any implementation
func storeContract(t *testing.T, store contracts.PriceReader) {
	ctx := context.Background()

	t.Run("FetchRange orders by date then symbol", func(t *testing.T) {
		rows, err := store.FetchRange(ctx, day("2024-01-02"), day("2024-01-03"))
		require.NoError(t, err)
		require.Len(t, rows, 4)

		got := make([]string, 0, len(rows))
		for _, r := range rows {
			got = append(got, r.Date.Format(contracts.DateLayout)+"/"+r.Symbol)
		}
		assert.Equal(t, []string{
			"2024-01-02/AAA", "2024-01-02/BBB",
			"2024-01-03/AAA", "2024-01-03/BBB",
		}, got)
		assert.True(t, rows[2].Close.Equal(decimal.RequireFromString("12.5")))
	})

	t.Run("FetchRange is inclusive and may be empty", func(t *testing.T) {
		rows, err := store.FetchRange(ctx, day("2024-01-05"), day("2024-01-05"))
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		rows, err = store.FetchRange(ctx, day("2024-01-04"), day("2024-01-04"))
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("IsTradingDay", func(t *testing.T) {
		ok, err := store.IsTradingDay(ctx, day("2024-01-03"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.IsTradingDay(ctx, day("2024-01-04"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), stats.RowCount)
		assert.Equal(t, int64(2), stats.SymbolCount)
		assert.Equal(t, day("2024-01-02"), stats.FirstDate)
		assert.Equal(t, day("2024-01-05"), stats.LastDate)
	})

	t.Run("MarketCounts skips rows without a market", func(t *testing.T) {
		counts, err := store.MarketCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"NASDAQ": 2, "NYSE": 2}, counts)

		rows, err := store.FetchRange(ctx, day("2024-01-02"), day("2024-01-02"))
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "NASDAQ", rows[0].Market)
		assert.Equal(t, "NYSE", rows[1].Market)
	})

	t.Run("Series is case-insensitive on symbol", func(t *testing.T) {
		points, err := store.Series(ctx, "aaa", contracts.PriceClose)
		require.NoError(t, err)
		require.Len(t, points, 3)
		assert.Equal(t, day("2024-01-02"), points[0].Date)
		assert.True(t, points[0].Price.Equal(decimal.NewFromInt(11)))
		assert.True(t, points[2].Price.Equal(decimal.NewFromInt(13)))

		points, err = store.Series(ctx, "ZZZ", contracts.PriceOpen)
		require.NoError(t, err)
		assert.Empty(t, points)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(fixture()))
}

func TestMemoryStoreLastDuplicateWins(t *testing.T) {
	store := NewMemoryStore([]contracts.PriceRecord{
		rec("2024-01-02", "AAA", 10, 11),
		rec("2024-01-02", "AAA", 10, 99),
	})

	rows, err := store.FetchRange(context.Background(), day("2024-01-01"), day("2024-12-31"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Close.Equal(decimal.NewFromInt(99)))
}

func TestMemoryStoreIsReadOnly(t *testing.T) {
	store := NewMemoryStore(nil)
	assert.Error(t, store.SaveBatch(context.Background(), fixture()))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.RowCount)
	assert.True(t, stats.FirstDate.IsZero())
}

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "prices.db"))
	require.NoError(t, err)

	store, err := NewSQLiteStore(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.SaveBatch(context.Background(), fixture()))

	storeContract(t, store)
}

func TestSQLiteStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	require.NoError(t, store.SaveBatch(ctx, []contracts.PriceRecord{rec("2024-01-02", "AAA", 10, 11)}))
	require.NoError(t, store.SaveBatch(ctx, []contracts.PriceRecord{rec("2024-01-02", "AAA", 10, 15)}))

	rows, err := store.FetchRange(ctx, day("2024-01-02"), day("2024-01-02"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Close.Equal(decimal.NewFromInt(15)))
}

func TestSQLiteStoreUpsertKeepsKnownMarket(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	require.NoError(t, store.SaveBatch(ctx, []contracts.PriceRecord{withMarket(rec("2024-01-02", "AAA", 10, 11), "NYSE")}))
	require.NoError(t, store.SaveBatch(ctx, []contracts.PriceRecord{rec("2024-01-02", "AAA", 10, 15)}))

	counts, err := store.MarketCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"NYSE": 1}, counts)

	empty, err := newSQLiteStore(t).MarketCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStoreEmptyStats(t *testing.T) {
	stats, err := newSQLiteStore(t).Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.RowCount)
	assert.True(t, stats.LastDate.IsZero())
}

func TestLoadCSV(t *testing.T) {
	input := `Date,Symbol,Open,High,Low,Close,market
2024-01-02,AAA,10,12,9,11.5,NASDAQ
2024-01-03,BBB,20,21,19,20.25,NYSE
`
	records, err := LoadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, day("2024-01-02"), records[0].Date)
	assert.Equal(t, "AAA", records[0].Symbol)
	assert.True(t, records[0].Close.Equal(decimal.RequireFromString("11.5")))
	assert.True(t, records[1].High.Equal(decimal.NewFromInt(21)))
	assert.Equal(t, "NASDAQ", records[0].Market)
	assert.Equal(t, "NYSE", records[1].Market)

	// no market column
	records, err = LoadCSV(strings.NewReader("date,symbol,open,high,low,close\n2024-01-02,AAA,1,2,1,2\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Market)
}

func TestLoadCSVErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "missing column",
			input:   "date,symbol,open,high,low\n2024-01-02,AAA,1,2,3\n",
			wantErr: `missing column "close"`,
		},
		{
			name:    "bad date",
			input:   "date,symbol,open,high,low,close\n01/02/2024,AAA,1,2,3,4\n",
			wantErr: "line 2: date",
		},
		{
			name:    "bad price",
			input:   "date,symbol,open,high,low,close\n2024-01-02,AAA,1,x,3,4\n",
			wantErr: "line 2: high",
		},
		{
			name:    "empty symbol",
			input:   "date,symbol,open,high,low,close\n2024-01-02,,1,2,3,4\n",
			wantErr: "symbol is empty",
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: "read csv header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
