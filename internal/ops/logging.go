package ops

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sandwichfarm/quartz/internal/config"
)

// Logger is a structured logger wrapper
type Logger struct {
	*slog.Logger
	level  slog.Level
	format string
}

// NewLogger creates a new structured logger based on config
func NewLogger(cfg *config.Logging) *Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		format: cfg.Format,
	}
}

// NewLoggerWithWriter creates a logger with a custom writer
func NewLoggerWithWriter(cfg *config.Logging, w io.Writer) *Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		format: cfg.Format,
	}
}

// WithComponent adds a component field to all log messages
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		level:  l.level,
		format: l.format,
	}
}

// WithFields adds custom fields to the logger
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
		level:  l.level,
		format: l.format,
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// Component-specific logger helpers

// LogRelayConnection logs a relay connection event
func (l *Logger) LogRelayConnection(relay string, connected bool, err error) {
	if err != nil {
		l.Warn("relay connection failed",
			"relay", relay,
			"error", err)
	} else if connected {
		l.Info("relay connected",
			"relay", relay)
	} else {
		l.Info("relay disconnected",
			"relay", relay)
	}
}

// LogPublish logs the outcome of sending an event to one relay
func (l *Logger) LogPublish(relay string, eventID string, kind int, err error) {
	if err != nil {
		l.Warn("publish failed",
			"relay", relay,
			"event_id", eventID,
			"kind", kind,
			"error", err)
	} else {
		l.Debug("published",
			"relay", relay,
			"event_id", eventID,
			"kind", kind)
	}
}

// LogIngest logs an event entering the local graph
func (l *Logger) LogIngest(relay string, eventID string, kind int, duration time.Duration) {
	l.Debug("event ingested",
		"relay", relay,
		"event_id", eventID,
		"kind", kind,
		"duration_us", duration.Microseconds())
}

// LogReconnect logs a relay set change
func (l *Logger) LogReconnect(relays []string) {
	l.Info("relay set changed, reconnecting",
		"count", len(relays),
		"relays", relays)
}

// LogMutationSkipped logs a mutation that was not applied
func (l *Logger) LogMutationSkipped(op string, reason string) {
	l.Debug("mutation skipped",
		"operation", op,
		"reason", reason)
}

// LogSpamHide logs an author hidden for duplicated messages
func (l *Logger) LogSpamHide(pubkey string, duplicates int) {
	l.Info("hiding spammer for this session",
		"pubkey", pubkey,
		"duplicates", duplicates)
}

// LogStorageOperation logs an archive operation
func (l *Logger) LogStorageOperation(op string, duration time.Duration, err error) {
	if err != nil {
		l.Error("storage operation failed",
			"operation", op,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("storage operation completed",
			"operation", op,
			"duration_ms", duration.Milliseconds())
	}
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(version, commit string, config map[string]interface{}) {
	l.Info("quartz starting",
		"version", version,
		"commit", commit,
		"config", config)
}

// LogShutdown logs application shutdown
func (l *Logger) LogShutdown(reason string) {
	l.Info("quartz shutting down",
		"reason", reason)
}

// LogPanic logs a panic with stack trace
func (l *Logger) LogPanic(recovered interface{}, stack string) {
	l.Error("panic recovered",
		"panic", fmt.Sprintf("%v", recovered),
		"stack", stack)
}

// Default logger configuration
var defaultLogger *Logger

func init() {
	// Create a default logger for early startup
	defaultLogger = NewLogger(&config.Logging{
		Level:  "info",
		Format: "text",
	})
}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Helper functions for common logging patterns

// Info logs an info message
func Info(msg string, fields ...any) {
	defaultLogger.Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...any) {
	defaultLogger.Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...any) {
	defaultLogger.Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...any) {
	defaultLogger.Error(msg, fields...)
}
