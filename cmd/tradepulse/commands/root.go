package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	verbose      bool
	jsonOutput   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tradepulse",
	Short: "TradePulse - 미국 주식 스코어링 엔진",
	Long: `TradePulse Unified CLI

Rate-limited market data, technical and calendar directives, weighted composites.

Usage:
  go run ./cmd/tradepulse [command]

Examples:
  go run ./cmd/tradepulse api
  go run ./cmd/tradepulse score AAPL --directives rsi,macd
  go run ./cmd/tradepulse explain trend_strength
  go run ./cmd/tradepulse providers --kind data
  go run ./cmd/tradepulse usage alpha_vantage`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "", "strategy profile YAML (default: STRATEGY_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
}
