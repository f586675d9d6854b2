package main

import (
	"os"

	"github.com/wonny/signal-backtest/cmd/sigbt/commands"
)

// main is the entry point for the sigbt CLI
// ⭐ single entry point: go run ./cmd/sigbt [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
