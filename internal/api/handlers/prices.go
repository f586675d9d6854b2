package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/signal-backtest/internal/contracts"
	"github.com/wonny/signal-backtest/pkg/logger"
	"github.com/wonny/signal-backtest/pkg/redis"
)

// StatsView is the cached summary of the price table
type StatsView struct {
	RowCount    int64  `json:"row_count"`
	SymbolCount int64  `json:"unique_stock_count"`
	FirstDate   string `json:"first_date,omitempty"`
	LastDate    string `json:"last_date,omitempty"`
}

// PointView is one dated price in a series reply
type PointView struct {
	Date  string      `json:"date"`
	Price json.Number `json:"price"`
}

// SeriesView is the body of /api/v2/{price_type}/{symbol}
type SeriesView struct {
	Symbol    string      `json:"symbol"`
	PriceType string      `json:"price_type"`
	Prices    []PointView `json:"prices"`
}

// RowView is one price row in a yearly dump
type RowView struct {
	Date   string      `json:"date"`
	Symbol string      `json:"symbol"`
	Market string      `json:"market,omitempty"`
	Open   json.Number `json:"open"`
	High   json.Number `json:"high"`
	Low    json.Number `json:"low"`
	Close  json.Number `json:"close"`
}

// YearView is the body of /api/v2/{year}
type YearView struct {
	Year     int       `json:"year"`
	RowCount int       `json:"row_count"`
	Rows     []RowView `json:"rows"`
}

// Cache is the JSON cache the price handler reads through
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func() (interface{}, error)) error
}

// PriceHandler serves read-only price table queries
type PriceHandler struct {
	store  contracts.PriceReader
	cache  Cache
	logger *logger.Logger
}

// NewPriceHandler creates a new price handler
func NewPriceHandler(store contracts.PriceReader, cache Cache, log *logger.Logger) *PriceHandler {
	return &PriceHandler{
		store:  store,
		cache:  cache,
		logger: log,
	}
}

func (h *PriceHandler) stats(ctx context.Context) (*StatsView, error) {
	var view StatsView
	err := h.cache.GetOrLoad(ctx, redis.StatsKey(), &view, redis.TTLStats, func() (interface{}, error) {
		stats, err := h.store.Stats(ctx)
		if err != nil {
			return nil, err
		}
		v := StatsView{RowCount: stats.RowCount, SymbolCount: stats.SymbolCount}
		if !stats.FirstDate.IsZero() {
			v.FirstDate = stats.FirstDate.Format(contracts.DateLayout)
			v.LastDate = stats.LastDate.Format(contracts.DateLayout)
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// RowCount returns the number of price rows
// GET /api/v1/row_count
func (h *PriceHandler) RowCount(w http.ResponseWriter, r *http.Request) {
	view, err := h.stats(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to count rows")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve row count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"row_count": view.RowCount})
}

// UniqueStockCount returns the number of distinct symbols
// GET /api/v1/unique_stock_count
func (h *PriceHandler) UniqueStockCount(w http.ResponseWriter, r *http.Request) {
	view, err := h.stats(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to count symbols")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve unique stock count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"unique_stock_count": view.SymbolCount})
}

// RowByMarketCount returns the number of rows per market
// GET /api/v1/row_by_market_count
func (h *PriceHandler) RowByMarketCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var counts map[string]int64
	err := h.cache.GetOrLoad(ctx, redis.MarketCountsKey(), &counts, redis.TTLStats, func() (interface{}, error) {
		return h.store.MarketCounts(ctx)
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to count rows by market")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve row count by market")
		return
	}
	if counts == nil {
		counts = map[string]int64{}
	}

	respondJSON(w, http.StatusOK, counts)
}

// DateRange returns the first and last dates in the table
// GET /api/v1/date_range
func (h *PriceHandler) DateRange(w http.ResponseWriter, r *http.Request) {
	view, err := h.stats(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read date range")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve date range")
		return
	}
	if view.RowCount == 0 {
		respondError(w, http.StatusNotFound, "No price data loaded")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"first_date": view.FirstDate,
		"last_date":  view.LastDate,
	})
}

// Series returns one price column of a symbol
// GET /api/v2/{price_type}/{symbol}
func (h *PriceHandler) Series(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := strings.ToUpper(strings.TrimSpace(vars["symbol"]))

	priceType, err := contracts.ParsePriceType(vars["price_type"])
	if err != nil {
		respondFieldError(w, http.StatusBadRequest, "price_type", "Invalid price type (valid: open, high, low, close)")
		return
	}

	points, err := h.series(r.Context(), symbol, priceType)
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to load price series")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve price series")
		return
	}
	if len(points) == 0 {
		respondError(w, http.StatusNotFound, "No data found for symbol "+symbol)
		return
	}

	respondJSON(w, http.StatusOK, SeriesView{
		Symbol:    symbol,
		PriceType: strings.ToLower(priceType.String()),
		Prices:    points,
	})
}

// series reads through the cache. Empty series are not cached so a symbol
// imported later is served at once.
func (h *PriceHandler) series(ctx context.Context, symbol string, priceType contracts.PriceType) ([]PointView, error) {
	key := redis.SeriesKey(priceType.String(), symbol)

	var points []PointView
	if found, err := h.cache.Get(ctx, key, &points); err == nil && found {
		return points, nil
	}

	series, err := h.store.Series(ctx, symbol, priceType)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, nil
	}

	points = make([]PointView, 0, len(series))
	for _, p := range series {
		points = append(points, PointView{
			Date:  p.Date.Format(contracts.DateLayout),
			Price: json.Number(p.Price.String()),
		})
	}
	if err := h.cache.Set(ctx, key, points, redis.TTLSeries); err != nil {
		h.logger.WithError(err).WithField("key", key).Warn("Failed to cache price series")
	}
	return points, nil
}

// ByYear returns every row of one calendar year
// GET /api/v2/{year}
func (h *PriceHandler) ByYear(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil || year < 1 || year > 9999 {
		respondFieldError(w, http.StatusBadRequest, "year", "Invalid year")
		return
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

	records, err := h.store.FetchRange(r.Context(), start, end)
	if err != nil {
		h.logger.WithError(err).WithField("year", year).Error("Failed to load yearly rows")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve data for year")
		return
	}
	if len(records) == 0 {
		respondError(w, http.StatusNotFound, "No data found for year "+strconv.Itoa(year))
		return
	}

	rows := make([]RowView, 0, len(records))
	for _, rec := range records {
		rows = append(rows, RowView{
			Date:   rec.Date.Format(contracts.DateLayout),
			Symbol: rec.Symbol,
			Market: rec.Market,
			Open:   json.Number(rec.Open.String()),
			High:   json.Number(rec.High.String()),
			Low:    json.Number(rec.Low.String()),
			Close:  json.Number(rec.Close.String()),
		})
	}

	respondJSON(w, http.StatusOK, YearView{Year: year, RowCount: len(rows), Rows: rows})
}
