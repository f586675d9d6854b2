package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signal-backtest/internal/backtest"
	"github.com/wonny/signal-backtest/internal/contracts"
	"github.com/wonny/signal-backtest/internal/pricestore"
	"github.com/wonny/signal-backtest/pkg/config"
	"github.com/wonny/signal-backtest/pkg/logger"
)

// mapCache keeps JSON values in memory and records every Set
type mapCache struct {
	values map[string][]byte
	sets   []string
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	c.sets = append(c.sets, key)
	return nil
}

func (c *mapCache) GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func() (interface{}, error)) error {
	if found, err := c.Get(ctx, key, dest); err == nil && found {
		return nil
	}
	v, err := load()
	if err != nil {
		return err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return err
	}
	raw, _ := json.Marshal(v)
	return json.Unmarshal(raw, dest)
}

// swapStore lets a test replace the rows behind a handler
type swapStore struct {
	contracts.PriceReader
}

func closeRow(date, symbol string, price int64) contracts.PriceRecord {
	d, _ := contracts.ParseDate(date)
	p := decimal.NewFromInt(price)
	return contracts.PriceRecord{Date: d, Symbol: symbol, Open: p, High: p, Low: p, Close: p}
}

func seriesRequest(priceType, symbol string) *http.Request {
	req := httptest.NewRequest("GET", "/api/v2/"+priceType+"/"+symbol, nil)
	return mux.SetURLVars(req, map[string]string{"price_type": priceType, "symbol": symbol})
}

func TestSeriesDoesNotCacheMissingSymbol(t *testing.T) {
	store := &swapStore{PriceReader: pricestore.NewMemoryStore([]contracts.PriceRecord{
		closeRow("2024-01-01", "AAA", 10),
	})}
	cache := newMapCache()
	h := NewPriceHandler(store, cache, logger.Nop())

	rec := httptest.NewRecorder()
	h.Series(rec, seriesRequest("close", "NEW"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, cache.sets)

	// the symbol is imported after the miss
	store.PriceReader = pricestore.NewMemoryStore([]contracts.PriceRecord{
		closeRow("2024-01-01", "AAA", 10),
		closeRow("2024-01-02", "NEW", 7),
	})

	rec = httptest.NewRecorder()
	h.Series(rec, seriesRequest("close", "NEW"))
	require.Equal(t, http.StatusOK, rec.Code)

	var view SeriesView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Prices, 1)
	assert.Equal(t, json.Number("7"), view.Prices[0].Price)
	assert.Equal(t, []string{"prices:series:close:NEW"}, cache.sets)
}

func TestSeriesServedFromCache(t *testing.T) {
	store := &swapStore{PriceReader: pricestore.NewMemoryStore([]contracts.PriceRecord{
		closeRow("2024-01-01", "AAA", 10),
	})}
	cache := newMapCache()
	h := NewPriceHandler(store, cache, logger.Nop())

	rec := httptest.NewRecorder()
	h.Series(rec, seriesRequest("close", "AAA"))
	require.Equal(t, http.StatusOK, rec.Code)

	store.PriceReader = pricestore.NewMemoryStore(nil)

	rec = httptest.NewRecorder()
	h.Series(rec, seriesRequest("close", "AAA"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, cache.sets, 1)
}

func TestRowByMarketCountIsCached(t *testing.T) {
	row := closeRow("2024-01-01", "AAA", 10)
	row.Market = "NYSE"
	store := &swapStore{PriceReader: pricestore.NewMemoryStore([]contracts.PriceRecord{row})}
	cache := newMapCache()
	h := NewPriceHandler(store, cache, logger.Nop())

	rec := httptest.NewRecorder()
	h.RowByMarketCount(rec, httptest.NewRequest("GET", "/api/v1/row_by_market_count", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"NYSE":1}`, rec.Body.String())
	assert.Equal(t, []string{"prices:markets"}, cache.sets)

	store.PriceReader = pricestore.NewMemoryStore(nil)

	rec = httptest.NewRecorder()
	h.RowByMarketCount(rec, httptest.NewRequest("GET", "/api/v1/row_by_market_count", nil))
	assert.JSONEq(t, `{"NYSE":1}`, rec.Body.String())
}

type errRunner struct{ err error }

func (e errRunner) Run(context.Context, backtest.Request) (*backtest.Result, error) {
	return nil, e.err
}

func TestBacktestClientCancelLogsWarn(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&config.Config{LogLevel: "debug", LogFormat: "json", Env: "development"}, &buf)

	err := fmt.Errorf("backtest aborted after 3 rows: %w", context.Canceled)
	h := NewBacktestHandler(errRunner{err: err}, time.Second, log)

	body := `{"start_date":"2024-01-01","end_date":"2024-01-05","value_1":"C1","value_2":"C2","operator":">"}`
	req := httptest.NewRequest("POST", "/api/v4/back_test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Run(rec, req)

	assert.Equal(t, StatusClientClosedRequest, rec.Code)
	assert.Empty(t, rec.Body.String())

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "Backtest cancelled by client")
	assert.NotContains(t, out, `"level":"error"`)
}
