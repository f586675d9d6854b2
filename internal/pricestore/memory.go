package pricestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/wonny/signal-backtest/internal/contracts"
)

// Compile-time interface checks.
var _ Store = (*MemoryStore)(nil)

var errReadOnly = errors.New("memory store is read-only")

// MemoryStore is an immutable in-memory price table
type MemoryStore struct {
	records []contracts.PriceRecord // sorted by date, then symbol
	days    map[time.Time]struct{}
	symbols map[string]struct{}
}

// NewMemoryStore copies records, normalizes dates and sorts them.
// When a (symbol, date) pair repeats, the last record wins.
func NewMemoryStore(records []contracts.PriceRecord) *MemoryStore {
	type key struct {
		symbol string
		date   time.Time
	}
	latest := make(map[key]int, len(records))
	sorted := make([]contracts.PriceRecord, 0, len(records))
	for _, r := range records {
		r.Date = contracts.Day(r.Date)
		k := key{r.Symbol, r.Date}
		if i, ok := latest[k]; ok {
			sorted[i] = r
			continue
		}
		latest[k] = len(sorted)
		sorted = append(sorted, r)
	}
	sortRecords(sorted)

	days := make(map[time.Time]struct{})
	symbols := make(map[string]struct{})
	for _, r := range sorted {
		days[r.Date] = struct{}{}
		symbols[r.Symbol] = struct{}{}
	}

	return &MemoryStore{records: sorted, days: days, symbols: symbols}
}

func sortRecords(records []contracts.PriceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].Symbol < records[j].Symbol
	})
}

// FetchRange returns a copy of the records dated in [start, end]
func (s *MemoryStore) FetchRange(_ context.Context, start, end time.Time) ([]contracts.PriceRecord, error) {
	start, end = contracts.Day(start), contracts.Day(end)
	lo := sort.Search(len(s.records), func(i int) bool { return !s.records[i].Date.Before(start) })
	hi := sort.Search(len(s.records), func(i int) bool { return s.records[i].Date.After(end) })
	if lo >= hi {
		return nil, nil
	}

	out := make([]contracts.PriceRecord, hi-lo)
	copy(out, s.records[lo:hi])
	return out, nil
}

// IsTradingDay reports whether any symbol has a record on date
func (s *MemoryStore) IsTradingDay(_ context.Context, date time.Time) (bool, error) {
	_, ok := s.days[contracts.Day(date)]
	return ok, nil
}

// Stats summarizes the table
func (s *MemoryStore) Stats(_ context.Context) (*contracts.PriceStats, error) {
	stats := &contracts.PriceStats{
		RowCount:    int64(len(s.records)),
		SymbolCount: int64(len(s.symbols)),
	}
	if len(s.records) > 0 {
		stats.FirstDate = s.records[0].Date
		stats.LastDate = s.records[len(s.records)-1].Date
	}
	return stats, nil
}

// Series returns one price column of symbol in date order
func (s *MemoryStore) Series(_ context.Context, symbol string, t contracts.PriceType) ([]contracts.PricePoint, error) {
	var points []contracts.PricePoint
	for _, r := range s.records {
		if strings.EqualFold(r.Symbol, symbol) {
			points = append(points, contracts.PricePoint{Date: r.Date, Price: r.Price(t)})
		}
	}
	return points, nil
}

// MarketCounts returns the number of rows per non-empty market
func (s *MemoryStore) MarketCounts(_ context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, r := range s.records {
		if r.Market != "" {
			counts[r.Market]++
		}
	}
	return counts, nil
}

// SaveBatch is not supported; the table is immutable
func (s *MemoryStore) SaveBatch(_ context.Context, _ []contracts.PriceRecord) error {
	return errReadOnly
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
