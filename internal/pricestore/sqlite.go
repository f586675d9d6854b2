package pricestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/wonny/signal-backtest/internal/contracts"
)

// Compile-time interface checks.
var (
	_ contracts.PriceReader = (*SQLiteStore)(nil)
	_ contracts.PriceWriter = (*SQLiteStore)(nil)
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS stocks (
		date   TEXT NOT NULL,
		symbol TEXT NOT NULL,
		open   REAL NOT NULL,
		high   REAL NOT NULL,
		low    REAL NOT NULL,
		close  REAL NOT NULL,
		market TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (symbol, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stocks_date ON stocks(date)`,
}

// SQLiteStore reads and writes the stocks table of a SQLite file
// ⭐ SSOT: SQLite price queries live here only
type SQLiteStore struct {
	db *sql.DB
	sq sq.StatementBuilderType
}

// NewSQLiteStore wraps db and creates the stocks table when missing
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{
		db: db,
		sq: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate stocks table: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FetchRange returns every record dated in [start, end] by date, then symbol
func (s *SQLiteStore) FetchRange(ctx context.Context, start, end time.Time) ([]contracts.PriceRecord, error) {
	query, args, err := s.sq.
		Select("date", "symbol", "open", "high", "low", "close", "market").
		From("stocks").
		Where(sq.GtOrEq{"date": start.Format(contracts.DateLayout)}).
		Where(sq.LtOrEq{"date": end.Format(contracts.DateLayout)}).
		OrderBy("date ASC", "symbol ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build fetch query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stocks: %w", err)
	}
	defer rows.Close()

	var records []contracts.PriceRecord
	for rows.Next() {
		var (
			date string
			rec  contracts.PriceRecord
		)
		if err := rows.Scan(&date, &rec.Symbol, &rec.Open, &rec.High, &rec.Low, &rec.Close, &rec.Market); err != nil {
			return nil, fmt.Errorf("scan stocks row: %w", err)
		}
		if rec.Date, err = contracts.ParseDate(date); err != nil {
			return nil, fmt.Errorf("stocks row %s/%s: %w", rec.Symbol, date, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// IsTradingDay reports whether any symbol has a row on date
func (s *SQLiteStore) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	query, args, err := s.sq.
		Select("1").
		From("stocks").
		Where(sq.Eq{"date": date.Format(contracts.DateLayout)}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build trading day query: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query trading day: %w", err)
	}
	return true, nil
}

// Stats summarizes the stocks table
func (s *SQLiteStore) Stats(ctx context.Context) (*contracts.PriceStats, error) {
	query, args, err := s.sq.
		Select("COUNT(*)", "COUNT(DISTINCT symbol)", "MIN(date)", "MAX(date)").
		From("stocks").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stats query: %w", err)
	}

	var (
		stats       contracts.PriceStats
		first, last sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stats.RowCount, &stats.SymbolCount, &first, &last); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	if first.Valid {
		if stats.FirstDate, err = contracts.ParseDate(first.String); err != nil {
			return nil, fmt.Errorf("first date: %w", err)
		}
	}
	if last.Valid {
		if stats.LastDate, err = contracts.ParseDate(last.String); err != nil {
			return nil, fmt.Errorf("last date: %w", err)
		}
	}
	return &stats, nil
}

// Series returns one price column of symbol in date order
func (s *SQLiteStore) Series(ctx context.Context, symbol string, t contracts.PriceType) ([]contracts.PricePoint, error) {
	column, err := sqliteColumn(t)
	if err != nil {
		return nil, err
	}

	query, args, err := s.sq.
		Select("date", column).
		From("stocks").
		Where(sq.Expr("UPPER(symbol) = ?", strings.ToUpper(symbol))).
		OrderBy("date ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build series query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var points []contracts.PricePoint
	for rows.Next() {
		var (
			date  string
			price decimal.Decimal
		)
		if err := rows.Scan(&date, &price); err != nil {
			return nil, fmt.Errorf("scan series row: %w", err)
		}
		d, err := contracts.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("series row %s: %w", date, err)
		}
		points = append(points, contracts.PricePoint{Date: d, Price: price})
	}
	return points, rows.Err()
}

// MarketCounts returns the number of rows per non-empty market
func (s *SQLiteStore) MarketCounts(ctx context.Context) (map[string]int64, error) {
	query, args, err := s.sq.
		Select("market", "COUNT(*)").
		From("stocks").
		Where(sq.NotEq{"market": ""}).
		GroupBy("market").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build market count query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// SaveBatch upserts records in one transaction
func (s *SQLiteStore) SaveBatch(ctx context.Context, records []contracts.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range records {
		query, args, err := s.sq.
			Insert("stocks").
			Columns("date", "symbol", "open", "high", "low", "close", "market").
			Values(
				contracts.Day(r.Date).Format(contracts.DateLayout), r.Symbol,
				r.Open.InexactFloat64(), r.High.InexactFloat64(),
				r.Low.InexactFloat64(), r.Close.InexactFloat64(),
				r.Market,
			).
			Suffix(`ON CONFLICT(symbol, date) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				market = CASE WHEN excluded.market = '' THEN stocks.market ELSE excluded.market END`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert %s/%s: %w", r.Symbol, r.Date.Format(contracts.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func sqliteColumn(t contracts.PriceType) (string, error) {
	switch t {
	case contracts.PriceOpen:
		return "open", nil
	case contracts.PriceHigh:
		return "high", nil
	case contracts.PriceLow:
		return "low", nil
	case contracts.PriceClose:
		return "close", nil
	default:
		return "", fmt.Errorf("unknown price type %d", int(t))
	}
}
