package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/signal-backtest/internal/contracts"
	"github.com/wonny/signal-backtest/pkg/logger"
	"github.com/wonny/signal-backtest/pkg/redis"
)

// StatsRefreshJob drops the cached price table summary so the v1 endpoints
// pick up newly imported rows
type StatsRefreshJob struct {
	store  contracts.PriceReader
	cache  *redis.Cache
	logger *logger.Logger
}

// NewStatsRefreshJob creates a new stats refresh job
func NewStatsRefreshJob(store contracts.PriceReader, cache *redis.Cache, log *logger.Logger) *StatsRefreshJob {
	return &StatsRefreshJob{
		store:  store,
		cache:  cache,
		logger: log,
	}
}

// Name returns the job name
func (j *StatsRefreshJob) Name() string {
	return "stats_refresh"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *StatsRefreshJob) Schedule() string {
	return "*/5 * * * *"
}

// Run checks the store is readable, then drops the cached summary and market counts
func (j *StatsRefreshJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled stats refresh")

	stats, err := j.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	if err := j.cache.Delete(ctx, redis.StatsKey(), redis.MarketCountsKey()); err != nil {
		return fmt.Errorf("drop cached stats: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"rows":    stats.RowCount,
		"symbols": stats.SymbolCount,
	}).Info("Stats refresh completed")

	return nil
}
