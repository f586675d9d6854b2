package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/signal-backtest/internal/contracts"
	"github.com/wonny/signal-backtest/internal/pricestore"
	"github.com/wonny/signal-backtest/pkg/config"
	"github.com/wonny/signal-backtest/pkg/redis"
)

// dataCmd represents the data command
var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Price table management",
	Long: `Imports daily prices into the configured store and summarizes it.

Example:
  go run ./cmd/sigbt data import --csv prices.csv
  go run ./cmd/sigbt data stats`,
}

var (
	dataImportCmd = &cobra.Command{
		Use:   "import",
		Short: "Import a CSV file into the price store",
		RunE:  runDataImport,
	}

	dataStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show row, symbol and date coverage",
		RunE:  runDataStats,
	}

	dataImportCSV   string
	dataImportBatch int
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataImportCmd)
	dataCmd.AddCommand(dataStatsCmd)

	dataImportCmd.Flags().StringVar(&dataImportCSV, "csv", "", "CSV file (date, symbol, open, high, low, close)")
	dataImportCmd.Flags().IntVar(&dataImportBatch, "batch", 1000, "rows per write")
	dataImportCmd.MarkFlagRequired("csv")
}

func runDataImport(cmd *cobra.Command, args []string) error {
	if dataImportBatch <= 0 {
		return fmt.Errorf("--batch must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	records, err := readCSVFile(dataImportCSV)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := pricestore.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open price store: %w", err)
	}
	defer store.Close()

	started := time.Now()
	if err := importRecords(ctx, store, records, dataImportBatch); err != nil {
		return err
	}

	log.WithFields(map[string]interface{}{
		"file":  dataImportCSV,
		"rows":  len(records),
		"store": cfg.StoreDriver,
	}).Info("CSV import completed")

	if err := invalidateImportCache(ctx, cfg, records); err != nil {
		log.WithError(err).Warn("Failed to clear cached price views")
		PrintWarning("Cached API views may be stale until their TTL expires")
	}

	PrintSuccess(fmt.Sprintf("Imported %d rows in %.2fs", len(records), time.Since(started).Seconds()))
	return nil
}

// importRecords writes records in chunks of batch rows
func importRecords(ctx context.Context, store contracts.PriceWriter, records []contracts.PriceRecord, batch int) error {
	total := (len(records) + batch - 1) / batch
	for i := 0; i < len(records); i += batch {
		end := min(i+batch, len(records))
		if err := store.SaveBatch(ctx, records[i:end]); err != nil {
			return fmt.Errorf("save rows %d-%d: %w", i+1, end, err)
		}
		PrintProgress("Import", fmt.Sprintf("Saved %d rows", end-i), i/batch+1, total)
	}
	return nil
}

type keyDeleter interface {
	Delete(ctx context.Context, keys ...string) error
}

func invalidateImportCache(ctx context.Context, cfg *config.Config, records []contracts.PriceRecord) error {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer client.Close()

	return clearImportedKeys(ctx, redis.NewCache(client, keyPrefix), records)
}

// clearImportedKeys drops the stats views and the series of every imported symbol
func clearImportedKeys(ctx context.Context, cache keyDeleter, records []contracts.PriceRecord) error {
	seen := make(map[string]bool)
	var symbols []string
	for _, r := range records {
		if !seen[r.Symbol] {
			seen[r.Symbol] = true
			symbols = append(symbols, r.Symbol)
		}
	}
	return cache.Delete(ctx, redis.ImportKeys(symbols)...)
}

func runDataStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := pricestore.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open price store: %w", err)
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	PrintDoubleSeparator()
	fmt.Printf("  Price table (%s)\n", cfg.StoreDriver)
	PrintSeparator()
	PrintKeyValue("Rows", strconv.FormatInt(stats.RowCount, 10), 10)
	PrintKeyValue("Symbols", strconv.FormatInt(stats.SymbolCount, 10), 10)
	if stats.RowCount == 0 {
		PrintWarning("The price table is empty")
		return nil
	}
	PrintKeyValue("First day", stats.FirstDate.Format(time.DateOnly), 10)
	PrintKeyValue("Last day", stats.LastDate.Format(time.DateOnly), 10)
	return nil
}
