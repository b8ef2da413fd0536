package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/wonny/tradepulse/pkg/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"invalid", zerolog.InfoLevel}, // Default
		{"", zerolog.InfoLevel},        // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v (%q)", err, buf.String())
	}
	return entry
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&config.Config{Env: "test", LogLevel: "debug", LogFormat: "json"}, &buf)

	log.WithComponent("callcache").WithField("provider", "alpha_vantage").Warn("quota exhausted")

	entry := decode(t, &buf)
	if entry["level"] != "warn" {
		t.Errorf("Expected level warn, got %v", entry["level"])
	}
	if entry["component"] != "callcache" {
		t.Errorf("Expected component callcache, got %v", entry["component"])
	}
	if entry["provider"] != "alpha_vantage" {
		t.Errorf("Expected provider field, got %v", entry["provider"])
	}
	if entry["env"] != "test" {
		t.Errorf("Expected env test, got %v", entry["env"])
	}
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&config.Config{Env: "test", LogLevel: "error", LogFormat: "json"}, &buf)

	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at error level, got %q", buf.String())
	}
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&config.Config{Env: "test", LogLevel: "info", LogFormat: "console"}, &buf)

	log.Info("test message")
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", buf.String())
	}
}

func TestWithFieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := &Logger{zlog: zerolog.New(&buf)}

	logger.WithFields(map[string]interface{}{
		"symbol":    "AAPL",
		"directive": "rsi",
		"score":     72.5,
	}).WithError(errors.New("provider timeout")).Error("scoring degraded")

	entry := decode(t, &buf)
	if entry["symbol"] != "AAPL" || entry["directive"] != "rsi" {
		t.Errorf("Expected symbol/directive fields, got %v", entry)
	}
	if entry["score"] != 72.5 {
		t.Errorf("Expected score 72.5, got %v", entry["score"])
	}
	if entry["error"] != "provider timeout" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
}

func TestFormattedMethods(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := &Logger{zlog: zerolog.New(&buf)}

	logger.Infof("fetched %d bars for %s", 100, "MSFT")

	entry := decode(t, &buf)
	if entry["message"] != "fetched 100 bars for MSFT" {
		t.Errorf("Unexpected message %v", entry["message"])
	}
}

func TestNop(t *testing.T) {
	// Must not panic and must be chainable
	Nop().WithField("k", "v").WithComponent("x").Info("discarded")
}
