package commands

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/signal-backtest/pkg/config"
	"github.com/wonny/signal-backtest/pkg/database"
	"github.com/wonny/signal-backtest/pkg/redis"
)

var dataCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check store and Redis connectivity",
	RunE:  runDataCheck,
}

func init() {
	dataCmd.AddCommand(dataCheckCmd)
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Config loaded (ENV: %s, STORE: %s)", cfg.Env, cfg.StoreDriver))

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		err = checkPostgres(ctx, cfg)
	case config.DriverSQLite:
		err = checkSQLite(ctx, cfg)
	}
	if err != nil {
		PrintError(err.Error())
		return err
	}

	if err := checkRedis(ctx, cfg); err != nil {
		PrintError(err.Error())
		return err
	}

	fmt.Println()
	PrintSuccess("All checks passed")
	return nil
}

func checkPostgres(ctx context.Context, cfg *config.Config) error {
	PrintKeyValue("Database URL", maskURL(cfg.Database.URL), 14)

	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	PrintSuccess("PostgreSQL healthy")
	PrintKeyValue("Response time", status.ResponseTime.String(), 14)
	PrintKeyValue("Connections", fmt.Sprintf("%d total, %d acquired, %d idle",
		status.TotalConns, status.AcquiredConn, status.IdleConns), 14)
	return nil
}

func checkSQLite(ctx context.Context, cfg *config.Config) error {
	PrintKeyValue("SQLite path", cfg.SQLite.Path, 14)

	db, err := database.OpenSQLite(ctx, cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}

	PrintSuccess("SQLite reachable")
	PrintKeyValue("Response time", time.Since(start).String(), 14)
	return nil
}

func checkRedis(ctx context.Context, cfg *config.Config) error {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer client.Close()

	if !client.Enabled() {
		PrintKeyValue("Redis", "disabled (in-process cache and rate limits)", 14)
		return nil
	}
	PrintSuccess("Redis reachable at " + cfg.Redis.Host + ":" + cfg.Redis.Port)
	PrintKeyValue("Redis DB", strconv.Itoa(cfg.Redis.DB), 14)
	return nil
}

// maskURL hides the password of a connection URL
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
