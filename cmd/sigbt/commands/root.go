package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wonny/signal-backtest/pkg/config"
	"github.com/wonny/signal-backtest/pkg/logger"
)

// keyPrefix namespaces every Redis key; the API and the scheduler must agree
const keyPrefix = "sigbt"

var (
	// Global flags
	envFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sigbt",
	Short: "Signal back-test evaluator",
	Long: `sigbt Unified CLI

Evaluates lagged-price trading signals against a daily price table
and reports the aggregate intraday return.

Usage:
  go run ./cmd/sigbt [command]

Examples:
  go run ./cmd/sigbt api
  go run ./cmd/sigbt backtest run --from 2024-01-02 --to 2024-06-28 --v1 C1 --v2 C2 --op ">"
  go run ./cmd/sigbt data import --csv prices.csv
  go run ./cmd/sigbt scheduler start`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile == "" {
			return nil
		}
		// variables already set in the environment win over the file
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load before .env")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig loads configuration and applies global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger builds the logger for one-shot commands; it writes to stderr so
// stdout stays machine readable
func newLogger(cfg *config.Config) *logger.Logger {
	return logger.NewWithWriter(cfg, os.Stderr)
}
