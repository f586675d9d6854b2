package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/signal-backtest/internal/api"
	"github.com/wonny/signal-backtest/internal/api/handlers"
	"github.com/wonny/signal-backtest/internal/backtest"
	"github.com/wonny/signal-backtest/internal/contracts"
	"github.com/wonny/signal-backtest/internal/pricestore"
	"github.com/wonny/signal-backtest/pkg/config"
	"github.com/wonny/signal-backtest/pkg/logger"
	"github.com/wonny/signal-backtest/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server.

Endpoints:
  GET  /health                         - Health check
  GET  /api/v1/row_count               - Rows in the price table
  GET  /api/v1/unique_stock_count      - Distinct symbols
  GET  /api/v1/date_range              - First and last trading day
  GET  /api/v2/{price_type}/{symbol}   - Price series of one symbol
  POST /api/v4/back_test               - Run a signal back-test

Example:
  go run ./cmd/sigbt api
  go run ./cmd/sigbt api --port 9090`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}

	log := logger.New(cfg)
	log.WithFields(map[string]interface{}{
		"port":  cfg.Port,
		"env":   cfg.Env,
		"store": cfg.StoreDriver,
	}).Info("Initializing API server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pricestore.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open price store: %w", err)
	}
	defer store.Close()
	log.Info("Price store ready")

	redisClient, err := redis.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	engine, err := newEngine(cfg, store, log)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.RouterDeps{
		Backtest:           handlers.NewBacktestHandler(engine, cfg.Backtest.Timeout, log),
		Prices:             handlers.NewPriceHandler(store, redis.NewCache(redisClient, keyPrefix), log),
		Limiter:            redis.NewRateLimiter(redisClient, keyPrefix),
		Logger:             log,
		APIKeys:            cfg.Auth.APIKeys,
		RateLimitPerMinute: cfg.Auth.RateLimitPerMinute,
	})
	server := api.New(cfg, log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-quit:
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

// newEngine builds the back-test engine from the engine settings in cfg
func newEngine(cfg *config.Config, store contracts.PriceStore, log *logger.Logger) (*backtest.Engine, error) {
	basis, err := backtest.ParseLagBasis(cfg.Backtest.LagBasis)
	if err != nil {
		return nil, err
	}
	return backtest.NewEngine(store, log, backtest.Options{
		LagBasis:    basis,
		HistoryDays: cfg.Backtest.HistoryDays,
	}), nil
}
