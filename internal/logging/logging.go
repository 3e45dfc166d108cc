// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "tws-bridge", "logs", "bridge.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// File writer with rotation
	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	if len(writers) == 0 {
		writer = os.Stdout
	} else if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithOrderID adds an order ID to the logger context.
func WithOrderID(logger zerolog.Logger, orderID int64) zerolog.Logger {
	return logger.With().Int64("order_id", orderID).Logger()
}

// WithCorrelation adds a bracket correlation ID to the logger context.
func WithCorrelation(logger zerolog.Logger, correlationID string) zerolog.Logger {
	return logger.With().Str("correlation_id", correlationID).Logger()
}

// LogOrder logs an order status event.
func LogOrder(logger zerolog.Logger, orderID int64, symbol, side, status string) {
	logger.Info().
		Str("event", "order").
		Int64("order_id", orderID).
		Str("symbol", symbol).
		Str("side", side).
		Str("status", status).
		Msg("Order update")
}

// LogRiskRejection logs a pre-trade rejection by the session guardrail.
func LogRiskRejection(logger zerolog.Logger, symbol, rule, reason string) {
	logger.Warn().
		Str("event", "risk_rejection").
		Str("symbol", symbol).
		Str("rule", rule).
		Str("reason", reason).
		Msg("Order blocked by risk gate")
}

// LogTradeResult logs a recorded trade result.
func LogTradeResult(logger zerolog.Logger, pnl, cumulative float64, consecutiveLosses int) {
	logger.Info().
		Str("event", "trade_result").
		Float64("pnl", pnl).
		Float64("session_pnl", cumulative).
		Int("consecutive_losses", consecutiveLosses).
		Msg("Trade result recorded")
}
