package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/signal-backtest/internal/api/handlers"
	"github.com/wonny/signal-backtest/internal/backtest"
	"github.com/wonny/signal-backtest/internal/contracts"
	"github.com/wonny/signal-backtest/internal/pricestore"
	"github.com/wonny/signal-backtest/pkg/config"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Signal back-testing",
	Long: `Evaluates a signal "value_1 <op> value_2" over a date range.

Indicators are a price letter (O, H, L, C) followed by a lag in trading
days, e.g. C1 is yesterday's close. On every row where the signal holds
the intraday return of the purchase convention is added to the total.

Example:
  go run ./cmd/sigbt backtest run --from 2024-01-02 --to 2024-06-28 --v1 C1 --v2 C2 --op ">"
  go run ./cmd/sigbt backtest run --csv prices.csv --from 2024-01-02 --to 2024-01-31 --v1 O0 --v2 C1 --op "<" --purchase short --json`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a back-test",
		Long: `Runs one back-test against the configured price store, or against
a CSV file with --csv (columns date, symbol, open, high, low, close).

Flags:
  --from      start date (YYYY-MM-DD, must be a trading day)
  --to        end date (YYYY-MM-DD, must be a trading day)
  --v1, --v2  indicators such as C1, O0, H3
  --op        comparator: > < >= <= == !=
  --purchase  buy_open_sell_close (default) or sell_open_buy_close`,
		RunE: runBacktest,
	}

	// Flags
	backtestFrom     string
	backtestTo       string
	backtestValue1   string
	backtestValue2   string
	backtestOperator string
	backtestPurchase string
	backtestCSV      string
	backtestJSON     bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	backtestRunCmd.Flags().StringVar(&backtestFrom, "from", "", "start date (YYYY-MM-DD, required)")
	backtestRunCmd.Flags().StringVar(&backtestTo, "to", "", "end date (YYYY-MM-DD, required)")
	backtestRunCmd.Flags().StringVar(&backtestValue1, "v1", "", "first indicator (required)")
	backtestRunCmd.Flags().StringVar(&backtestValue2, "v2", "", "second indicator (required)")
	backtestRunCmd.Flags().StringVar(&backtestOperator, "op", "", "comparator (required)")
	backtestRunCmd.Flags().StringVar(&backtestPurchase, "purchase", "", "purchase convention")
	backtestRunCmd.Flags().StringVar(&backtestCSV, "csv", "", "read prices from a CSV file instead of the store")
	backtestRunCmd.Flags().BoolVar(&backtestJSON, "json", false, "print the result as JSON")

	for _, name := range []string{"from", "to", "v1", "v2", "op"} {
		backtestRunCmd.MarkFlagRequired(name)
	}
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, store, err := openBacktestStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	log := newLogger(cfg)
	engine, err := newEngine(cfg, store, log)
	if err != nil {
		return err
	}

	req := backtest.Request{
		StartDate:          backtestFrom,
		EndDate:            backtestTo,
		Indicator1:         backtestValue1,
		Indicator2:         backtestValue2,
		Operator:           backtestOperator,
		PurchaseConvention: backtestPurchase,
	}

	ctx := cmd.Context()
	if cfg.Backtest.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Backtest.Timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := engine.Run(ctx, req)
	if err != nil {
		if backtest.IsClientError(err) {
			PrintError(err.Error())
		}
		return err
	}

	if backtestJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(handlers.BacktestResponse{
			Return:          json.Number(result.TotalReturn.StringFixed(2)),
			NumObservations: result.NumObservations,
			SkippedRows:     result.SkippedRows,
		})
	}

	PrintDoubleSeparator()
	fmt.Printf("  Back-test  %s %s %s\n", backtestValue1, backtestOperator, backtestValue2)
	PrintSeparator()
	PrintKeyValue("Period", fmt.Sprintf("%s ~ %s", backtestFrom, backtestTo), 16)
	PrintKeyValue("Return", result.TotalReturn.StringFixed(2), 16)
	PrintKeyValue("Observations", strconv.Itoa(result.NumObservations), 16)
	PrintKeyValue("Rows scanned", strconv.Itoa(result.RowsScanned), 16)
	PrintKeyValue("Skipped rows", strconv.Itoa(result.SkippedRows), 16)
	PrintKeyValue("Symbols", strconv.Itoa(result.Symbols), 16)
	PrintKeyValue("Trading days", strconv.Itoa(result.TradingDays), 16)
	PrintSeparator()
	PrintSuccess(fmt.Sprintf("Completed in %.2fs", time.Since(started).Seconds()))
	return nil
}

// openBacktestStore returns the configured store, or an in-memory store
// loaded from --csv. CSV runs do not need a store in the environment.
func openBacktestStore(ctx context.Context) (*config.Config, pricestore.Store, error) {
	if backtestCSV == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, nil, err
		}
		store, err := pricestore.Open(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open price store: %w", err)
		}
		return cfg, store, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		cfg = csvConfig()
	}

	records, err := readCSVFile(backtestCSV)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pricestore.NewMemoryStore(records), nil
}

// csvConfig is used when the environment has no usable store settings
func csvConfig() *config.Config {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "warn",
		LogFormat: "console",
		Backtest: config.BacktestConfig{
			LagBasis: string(backtest.LagBasisSymbol),
		},
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg
}

func readCSVFile(path string) ([]contracts.PriceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	records, err := pricestore.LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return records, nil
}
