package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/signal-backtest/internal/api/handlers"
	"github.com/wonny/signal-backtest/pkg/logger"
	"github.com/wonny/signal-backtest/pkg/redis"
)

// RouterDeps is everything the router wires together
type RouterDeps struct {
	Backtest *handlers.BacktestHandler
	Prices   *handlers.PriceHandler
	Limiter  *redis.RateLimiter
	Logger   *logger.Logger

	APIKeys            []string
	RateLimitPerMinute int
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: routing lives in this function only
func NewRouter(deps RouterDeps) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(apiKeyMiddleware(deps.APIKeys))
	if deps.Limiter != nil {
		api.Use(rateLimitMiddleware(deps.Limiter, deps.RateLimitPerMinute, deps.Logger))
	}

	// v1: table summary
	api.HandleFunc("/v1/row_count", deps.Prices.RowCount).Methods("GET")
	api.HandleFunc("/v1/unique_stock_count", deps.Prices.UniqueStockCount).Methods("GET")
	api.HandleFunc("/v1/row_by_market_count", deps.Prices.RowByMarketCount).Methods("GET")
	api.HandleFunc("/v1/date_range", deps.Prices.DateRange).Methods("GET")

	// v2: yearly rows and price series
	api.HandleFunc("/v2/{year:[0-9]{4}}", deps.Prices.ByYear).Methods("GET")
	api.HandleFunc("/v2/{price_type}/{symbol}", deps.Prices.Series).Methods("GET")

	// v4: back-test
	api.HandleFunc("/v4/back_test", deps.Backtest.Run).Methods("POST")

	// Apply middleware
	r.Use(requestIDMiddleware())
	r.Use(loggingMiddleware(deps.Logger))
	r.Use(recoveryMiddleware(deps.Logger))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "signal-backtest-api",
	})
}
