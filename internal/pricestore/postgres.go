package pricestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/signal-backtest/internal/contracts"
)

// Compile-time interface checks.
var (
	_ contracts.PriceReader = (*PostgresStore)(nil)
	_ contracts.PriceWriter = (*PostgresStore)(nil)
)

// PostgresStore reads data.daily_prices
// ⭐ SSOT: PostgreSQL price queries live here only
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new price store over pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema and table when missing
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS data`,
		`CREATE TABLE IF NOT EXISTS data.daily_prices (
			stock_code  TEXT    NOT NULL,
			trade_date  DATE    NOT NULL,
			open_price  NUMERIC NOT NULL,
			high_price  NUMERIC NOT NULL,
			low_price   NUMERIC NOT NULL,
			close_price NUMERIC NOT NULL,
			volume      BIGINT  NOT NULL DEFAULT 0,
			PRIMARY KEY (stock_code, trade_date)
		)`,
		`ALTER TABLE data.daily_prices ADD COLUMN IF NOT EXISTS market TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_daily_prices_trade_date ON data.daily_prices (trade_date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate daily_prices: %w", err)
		}
	}
	return nil
}

// FetchRange returns every record dated in [start, end] by date, then symbol
func (s *PostgresStore) FetchRange(ctx context.Context, start, end time.Time) ([]contracts.PriceRecord, error) {
	query := `
		SELECT stock_code, trade_date,
		       open_price::text, high_price::text, low_price::text, close_price::text, market
		FROM data.daily_prices
		WHERE trade_date BETWEEN $1 AND $2
		ORDER BY trade_date ASC, stock_code ASC
	`

	rows, err := s.pool.Query(ctx, query, contracts.Day(start), contracts.Day(end))
	if err != nil {
		return nil, fmt.Errorf("query daily_prices: %w", err)
	}
	defer rows.Close()

	var records []contracts.PriceRecord
	for rows.Next() {
		var (
			rec                    contracts.PriceRecord
			open, high, low, close string
		)
		if err := rows.Scan(&rec.Symbol, &rec.Date, &open, &high, &low, &close, &rec.Market); err != nil {
			return nil, fmt.Errorf("scan daily_prices row: %w", err)
		}
		if err := parsePrices(&rec, open, high, low, close); err != nil {
			return nil, fmt.Errorf("daily_prices row %s/%s: %w", rec.Symbol, rec.Date.Format(contracts.DateLayout), err)
		}
		rec.Date = contracts.Day(rec.Date)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func parsePrices(rec *contracts.PriceRecord, open, high, low, close string) error {
	var err error
	if rec.Open, err = decimal.NewFromString(open); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if rec.High, err = decimal.NewFromString(high); err != nil {
		return fmt.Errorf("high: %w", err)
	}
	if rec.Low, err = decimal.NewFromString(low); err != nil {
		return fmt.Errorf("low: %w", err)
	}
	if rec.Close, err = decimal.NewFromString(close); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// IsTradingDay reports whether any symbol has a row on date
func (s *PostgresStore) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM data.daily_prices WHERE trade_date = $1)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, contracts.Day(date)).Scan(&exists); err != nil {
		return false, fmt.Errorf("query trading day: %w", err)
	}
	return exists, nil
}

// Stats summarizes data.daily_prices
func (s *PostgresStore) Stats(ctx context.Context) (*contracts.PriceStats, error) {
	query := `
		SELECT COUNT(*), COUNT(DISTINCT stock_code), MIN(trade_date), MAX(trade_date)
		FROM data.daily_prices
	`

	var (
		stats       contracts.PriceStats
		first, last *time.Time
	)
	if err := s.pool.QueryRow(ctx, query).Scan(&stats.RowCount, &stats.SymbolCount, &first, &last); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	if first != nil {
		stats.FirstDate = contracts.Day(*first)
	}
	if last != nil {
		stats.LastDate = contracts.Day(*last)
	}
	return &stats, nil
}

// Series returns one price column of symbol in date order
func (s *PostgresStore) Series(ctx context.Context, symbol string, t contracts.PriceType) ([]contracts.PricePoint, error) {
	column, err := postgresColumn(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT trade_date, %s::text
		FROM data.daily_prices
		WHERE UPPER(stock_code) = $1
		ORDER BY trade_date ASC
	`, column)

	rows, err := s.pool.Query(ctx, query, strings.ToUpper(symbol))
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var points []contracts.PricePoint
	for rows.Next() {
		var (
			date  time.Time
			price string
		)
		if err := rows.Scan(&date, &price); err != nil {
			return nil, fmt.Errorf("scan series row: %w", err)
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("series row %s: %w", date.Format(contracts.DateLayout), err)
		}
		points = append(points, contracts.PricePoint{Date: contracts.Day(date), Price: p})
	}
	return points, rows.Err()
}

// MarketCounts returns the number of rows per non-empty market
func (s *PostgresStore) MarketCounts(ctx context.Context) (map[string]int64, error) {
	query := `
		SELECT market, COUNT(*)
		FROM data.daily_prices
		WHERE market <> ''
		GROUP BY market
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query market counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			market string
			n      int64
		)
		if err := rows.Scan(&market, &n); err != nil {
			return nil, fmt.Errorf("scan market count: %w", err)
		}
		counts[market] = n
	}
	return counts, rows.Err()
}

// SaveBatch upserts records in a single round trip
func (s *PostgresStore) SaveBatch(ctx context.Context, records []contracts.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO data.daily_prices AS dp (stock_code, trade_date, open_price, high_price, low_price, close_price, market)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7)
		ON CONFLICT (stock_code, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			market = COALESCE(NULLIF(EXCLUDED.market, ''), dp.market)`

	for _, r := range records {
		batch.Queue(query, r.Symbol, contracts.Day(r.Date),
			r.Open.String(), r.High.String(), r.Low.String(), r.Close.String(), r.Market)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", r.Symbol, r.Date.Format(contracts.DateLayout), err)
		}
	}

	return nil
}

func postgresColumn(t contracts.PriceType) (string, error) {
	switch t {
	case contracts.PriceOpen:
		return "open_price", nil
	case contracts.PriceHigh:
		return "high_price", nil
	case contracts.PriceLow:
		return "low_price", nil
	case contracts.PriceClose:
		return "close_price", nil
	default:
		return "", fmt.Errorf("unknown price type %d", int(t))
	}
}
