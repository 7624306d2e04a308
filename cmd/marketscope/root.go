package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "marketscope",
	Short: "Marketscope - market analysis bot with usage accounting",
	Long: `Marketscope serves chat commands for stock and crypto analysis, backed by
an LLM, and accounts for every billable action in a durable usage ledger.

Per-user limits are enforced over trailing windows:
  - Monthly and daily spend ceilings (USD)
  - Hourly request ceilings
  - A premium tier with raised defaults`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
