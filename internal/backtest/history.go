package backtest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/wonny/signal-backtest/internal/contracts"
)

// LagBasis selects the calendar lags are counted on
type LagBasis string

const (
	// LagBasisSymbol counts lags on the symbol's own observed dates
	LagBasisSymbol LagBasis = "symbol"
	// LagBasisMarket counts lags on every observed date of the fetched rows
	LagBasisMarket LagBasis = "market"
)

// ParseLagBasis parses "symbol" or "market"; empty means symbol
func ParseLagBasis(s string) (LagBasis, error) {
	switch LagBasis(strings.ToLower(strings.TrimSpace(s))) {
	case "", LagBasisSymbol:
		return LagBasisSymbol, nil
	case LagBasisMarket:
		return LagBasisMarket, nil
	default:
		return "", fmt.Errorf("unknown lag basis %q", s)
	}
}

// series is one symbol's records, strictly increasing by date
type series struct {
	records  []contracts.PriceRecord
	calendar *Calendar
}

// asOf returns the latest record dated on or before d
func (s *series) asOf(d time.Time) (contracts.PriceRecord, bool) {
	i := sort.Search(len(s.records), func(i int) bool { return s.records[i].Date.After(d) })
	if i == 0 {
		return contracts.PriceRecord{}, false
	}
	return s.records[i-1], true
}

type lookupKey struct {
	symbol    string
	date      time.Time
	priceType contracts.PriceType
	lag       int
}

// IndexStats counts index work for one run
type IndexStats struct {
	Symbols     int
	SeriesBuilt int
	Lookups     int
	MemoHits    int
}

// HistoryIndex answers "price of type T, N trading days before date D" for
// the rows of a single run. Not safe for concurrent use; one per run.
type HistoryIndex struct {
	rows      []contracts.PriceRecord
	positions map[string][]int // row positions per symbol
	series    map[string]*series
	market    *Calendar
	basis     LagBasis
	memo      map[lookupKey]optional.Option[decimal.Decimal]
	stats     IndexStats
}

// NewHistoryIndex groups rows by symbol in one pass. Per-symbol series are
// materialized on first lookup.
func NewHistoryIndex(rows []contracts.PriceRecord, basis LagBasis) *HistoryIndex {
	positions := make(map[string][]int)
	dates := make([]time.Time, 0, len(rows))
	for i, r := range rows {
		positions[r.Symbol] = append(positions[r.Symbol], i)
		dates = append(dates, r.Date)
	}

	return &HistoryIndex{
		rows:      rows,
		positions: positions,
		series:    make(map[string]*series),
		market:    NewCalendar(dates),
		basis:     basis,
		memo:      make(map[lookupKey]optional.Option[decimal.Decimal]),
		stats:     IndexStats{Symbols: len(positions)},
	}
}

// Market returns the calendar of every date present in the rows
func (h *HistoryIndex) Market() *Calendar {
	return h.market
}

// Stats returns counters accumulated so far
func (h *HistoryIndex) Stats() IndexStats {
	return h.stats
}

// seriesFor builds the symbol's series on first use
func (h *HistoryIndex) seriesFor(symbol string) *series {
	if s, ok := h.series[symbol]; ok {
		return s
	}

	pos, ok := h.positions[symbol]
	if !ok {
		return nil
	}

	records := make([]contracts.PriceRecord, 0, len(pos))
	for _, p := range pos {
		r := h.rows[p]
		r.Date = contracts.Day(r.Date)
		records = append(records, r)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })

	// one record per date; the last one wins, as with a store upsert
	uniq := records[:0]
	days := make([]time.Time, 0, len(records))
	for _, r := range records {
		if len(uniq) > 0 && r.Date.Equal(uniq[len(uniq)-1].Date) {
			uniq[len(uniq)-1] = r
			continue
		}
		uniq = append(uniq, r)
		days = append(days, r.Date)
	}

	s := &series{records: uniq, calendar: newSortedCalendar(days)}
	h.series[symbol] = s
	h.stats.SeriesBuilt++
	return s
}

// Lookup returns the priceType price of symbol lag trading days before date,
// or None when the symbol has no record on or before the resolved date or
// its history is too short. Results are memoized per
// (symbol, date, priceType, lag).
func (h *HistoryIndex) Lookup(symbol string, date time.Time, priceType contracts.PriceType, lag int) optional.Option[decimal.Decimal] {
	key := lookupKey{symbol: symbol, date: contracts.Day(date), priceType: priceType, lag: lag}
	h.stats.Lookups++

	if v, ok := h.memo[key]; ok {
		h.stats.MemoHits++
		return v
	}

	v := h.resolve(key)
	h.memo[key] = v
	return v
}

func (h *HistoryIndex) resolve(key lookupKey) optional.Option[decimal.Decimal] {
	s := h.seriesFor(key.symbol)
	if s == nil {
		return optional.None[decimal.Decimal]()
	}

	cal := s.calendar
	if h.basis == LagBasisMarket {
		cal = h.market
	}

	target, err := cal.DaysBefore(key.date, key.lag)
	if err != nil {
		return optional.None[decimal.Decimal]()
	}

	rec, ok := s.asOf(target)
	if !ok {
		return optional.None[decimal.Decimal]()
	}
	return optional.Some(rec.Price(key.priceType))
}
