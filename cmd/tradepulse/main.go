package main

import (
	"os"

	"github.com/wonny/tradepulse/cmd/tradepulse/commands"
)

// main is the entry point for the TradePulse CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/tradepulse [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
