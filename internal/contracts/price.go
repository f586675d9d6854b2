package contracts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO calendar date format used at every boundary
const DateLayout = "2006-01-02"

// PriceType selects one column of a daily OHLC record
type PriceType int

const (
	PriceOpen PriceType = iota + 1
	PriceHigh
	PriceLow
	PriceClose
)

// ParsePriceType accepts a single letter (O, H, L, C) or the full column name, case-insensitive
func ParsePriceType(s string) (PriceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "o", "open":
		return PriceOpen, nil
	case "h", "high":
		return PriceHigh, nil
	case "l", "low":
		return PriceLow, nil
	case "c", "close":
		return PriceClose, nil
	default:
		return 0, fmt.Errorf("unknown price type %q", s)
	}
}

func (p PriceType) String() string {
	switch p {
	case PriceOpen:
		return "Open"
	case PriceHigh:
		return "High"
	case PriceLow:
		return "Low"
	case PriceClose:
		return "Close"
	default:
		return fmt.Sprintf("PriceType(%d)", int(p))
	}
}

// Letter returns the one-letter token form used in indicator tokens
func (p PriceType) Letter() string {
	s := p.String()
	if p < PriceOpen || p > PriceClose {
		return "?"
	}
	return s[:1]
}

// Valid reports whether p is one of the four OHLC columns
func (p PriceType) Valid() bool {
	return p >= PriceOpen && p <= PriceClose
}

// PriceRecord is one daily OHLC row of one symbol.
// At most one record exists per (Symbol, Date).
type PriceRecord struct {
	Date   time.Time
	Symbol string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Market string // listing venue such as NYSE; empty when unknown
}

// Price returns the column selected by t
func (r PriceRecord) Price(t PriceType) decimal.Decimal {
	switch t {
	case PriceOpen:
		return r.Open
	case PriceHigh:
		return r.High
	case PriceLow:
		return r.Low
	default:
		return r.Close
	}
}

// PricePoint is a single dated price of one column
type PricePoint struct {
	Date  time.Time
	Price decimal.Decimal
}

// PriceStats summarizes the price table
type PriceStats struct {
	RowCount    int64
	SymbolCount int64
	FirstDate   time.Time
	LastDate    time.Time
}

// PriceStore is the read-only price table consumed by the back-test engine.
// Implementations must be safe for concurrent readers.
type PriceStore interface {
	// FetchRange returns every record with date in [start, end],
	// ordered by date ascending then symbol ascending.
	FetchRange(ctx context.Context, start, end time.Time) ([]PriceRecord, error)

	// IsTradingDay reports whether any symbol has a record on date.
	IsTradingDay(ctx context.Context, date time.Time) (bool, error)
}

// PriceReader adds summary queries used by the HTTP layer and CLI
type PriceReader interface {
	PriceStore

	Stats(ctx context.Context) (*PriceStats, error)
	Series(ctx context.Context, symbol string, t PriceType) ([]PricePoint, error)

	// MarketCounts returns the number of rows per market. Rows without a
	// market are not counted.
	MarketCounts(ctx context.Context) (map[string]int64, error)
}

// PriceWriter persists records; used by imports only
type PriceWriter interface {
	SaveBatch(ctx context.Context, records []PriceRecord) error
}

// Day truncates t to midnight UTC of its calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD)
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
