// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelDisabled turns logging off.
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	// Hits go to stdout, so logs never should.
	Output io.Writer

	// RunID, when set, is attached to every event as run_id.
	RunID string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. Loggers derived from
// log.Logger afterwards, such as those of NewLogger, inherit its fields.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logCtx := zerolog.New(output).With().Timestamp()
	if cfg.RunID != "" {
		logCtx = logCtx.Str("run_id", cfg.RunID)
	}
	logger := logCtx.Logger()

	log.Logger = logger

	return logger
}

// ParseLevel validates a level name from configuration.
func ParseLevel(s string) (LogLevel, error) {
	switch level := LogLevel(strings.ToLower(strings.TrimSpace(s))); level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelDisabled:
		return level, nil
	case "warning":
		return LevelWarn, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Page fetched (page, status_code, duration)
//   - Next page not scheduled, empty page reached
//   - Retry backoff decisions
//
// Info: Normal operation events
//   - Scroll completed (pages, hits, duration)
//   - Request succeeded after retry
//   - Run resumed from checkpoint
//
// Warn: Warning conditions that don't prevent operation
//   - Page with hits but no continuation token (ends the run)
//   - Retriable request errors, retries exhausted
//   - Checkpoint or clear-scroll failures
//   - Scroll failed (error_kind)
//
// Error: Error conditions requiring attention
//   - Configuration errors
//   - Metrics server failures
//
// Context Fields:
//   - component: es-scroll, es-client, cli
//   - run_id: Run identifier
//   - page: 1-based page number within the run
//   - hits: Hits delivered
//   - status_code: HTTP status code
//   - duration: Page or request duration
//   - error_class: Request error classification (client, server, rate_limit, network)
//   - error_kind: Run failure kind (transport, status, parse, protocol, canceled, other)
//   - attempt: Request attempt number
