package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LoggingConfig mirrors config.LoggingConfig so this package stays free of
// application imports.
type LoggingConfig struct {
	Level     string
	Output    string // stdout (default), stderr, console, file
	FilePath  string
	MaxSizeMB int
	MaxFiles  int

	// MaxAgeDays and Uncompressed are passed through to FileConfig.
	MaxAgeDays   int
	Uncompressed bool
}

type contextKey string

const (
	loggerKey        contextKey = "logger"
	correlationIDKey contextKey = "correlation_id"
)

// New creates a zerolog.Logger with the specified level and JSON output.
// If the level string is invalid, it defaults to info.
func New(level string) zerolog.Logger {
	return newWithWriter(os.Stdout, level)
}

// NewFromConfig creates a zerolog.Logger writing to the output named by
// cfg.Output. "file" rotates through lumberjack and "console" prints
// human-readable lines to stderr for local runs.
func NewFromConfig(cfg LoggingConfig) zerolog.Logger {
	var writer io.Writer
	switch cfg.Output {
	case "file":
		writer = NewFileWriter(FileConfig{
			Path:         cfg.FilePath,
			MaxSizeMB:    cfg.MaxSizeMB,
			MaxFiles:     cfg.MaxFiles,
			MaxAgeDays:   cfg.MaxAgeDays,
			Uncompressed: cfg.Uncompressed,
		})
	case "stderr":
		writer = os.Stderr
	case "console":
		writer = consoleWriter(os.Stderr)
	default:
		writer = os.Stdout
	}

	return newWithWriter(writer, cfg.Level)
}

func newWithWriter(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: true}
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithCorrelationID stores a correlation ID in the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext retrieves the correlation ID from the context.
// Returns an empty string if not set.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns the context's logger with the correlation id
// attached, or an info-level stdout logger when none is stored.
func FromContext(ctx context.Context) zerolog.Logger {
	log := stored(ctx)
	if id := CorrelationIDFromContext(ctx); id != "" {
		log = log.With().Str("correlation_id", id).Logger()
	}
	return log
}

// WithCampaign returns a context whose logger carries the campaign id.
func WithCampaign(ctx context.Context, campaignID string) context.Context {
	return WithLogger(ctx, stored(ctx).With().Str("campaign_id", campaignID).Logger())
}

// stored returns the logger saved by WithLogger without context fields.
func stored(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return l
	}
	return New("info")
}

// NewCorrelationID generates a new UUID-based correlation ID.
func NewCorrelationID() string {
	return uuid.New().String()
}
