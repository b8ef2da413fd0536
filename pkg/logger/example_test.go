package logger_test

import (
	"errors"

	"github.com/wonny/tradepulse/pkg/config"
	"github.com/wonny/tradepulse/pkg/logger"
)

// Example_withFields demonstrates structured logging with fields
func Example_withFields() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	// Create logger (SSOT)
	log := logger.New(cfg).WithComponent("scoring")

	log.WithFields(map[string]interface{}{
		"symbol":     "AAPL",
		"directives": 3,
		"fresh":      true,
	}).Info("Scored symbol")

	log.WithError(errors.New("alpha_vantage: minute quota exhausted")).
		WithField("input", "indicator:RSI").
		Warn("Input unavailable")
}
