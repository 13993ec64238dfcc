// Package logger provides structured logging for the mediation bridge
package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for the host request ID
	RequestIDKey contextKey = "request_id"
	// PlacementIDKey is the context key for the placement ID
	PlacementIDKey contextKey = "placement_id"
)

// Log is the global logger instance
var Log zerolog.Logger

// Config holds logger configuration
type Config struct {
	// Level is the minimum level to log: debug, info, warn, error
	Level string
	// Format is the output format: json or console
	Format string
	// TimeFormat is the timestamp format
	TimeFormat string
}

// DefaultConfig returns the default logger configuration.
// It reads from environment variables if set:
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_FORMAT: json or console (default: json)
func DefaultConfig() Config {
	cfg := Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = strings.ToLower(format)
	}

	return cfg
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) {
	zerolog.TimeFieldFormat = cfg.TimeFormat
	zerolog.MessageFieldName = "message"

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: cfg.TimeFormat})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	Log = logger.Level(level).With().
		Timestamp().
		Str("service", "mediation-bridge").
		Logger()
}

// WithRequestID returns a context carrying the host request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithPlacementID returns a context carrying the placement ID
func WithPlacementID(ctx context.Context, placementID string) context.Context {
	return context.WithValue(ctx, PlacementIDKey, placementID)
}

// FromContext returns a logger enriched with IDs found in the context
func FromContext(ctx context.Context) zerolog.Logger {
	logger := Log

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		logger = logger.With().Str("request_id", requestID).Logger()
	}
	if placementID, ok := ctx.Value(PlacementIDKey).(string); ok && placementID != "" {
		logger = logger.With().Str("placement_id", placementID).Logger()
	}

	return logger
}

// Bridge returns a logger for resolution bridge events
func Bridge() zerolog.Logger {
	return Log.With().Str("component", "bridge").Logger()
}

// Dispatch returns a logger for dispatcher events, tagged with the placement
func Dispatch(placementID string) zerolog.Logger {
	return Log.With().
		Str("component", "dispatch").
		Str("placement_id", placementID).
		Logger()
}

// Partner returns a logger for partner SDK boundary events
func Partner() zerolog.Logger {
	return Log.With().Str("component", "partner").Logger()
}

// HTTP returns a logger for HTTP server events
func HTTP() zerolog.Logger {
	return Log.With().Str("component", "http").Logger()
}

// Storage returns a logger for storage events
func Storage() zerolog.Logger {
	return Log.With().Str("component", "storage").Logger()
}

func init() {
	// Ensure the global logger is usable before Init is called
	Init(DefaultConfig())
}
