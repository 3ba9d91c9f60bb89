// Package logging provides structured logging using Go's slog package.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger

	mu     sync.Mutex
	output io.Writer = os.Stderr
	level  Level     = LevelWarn
	format Format    = FormatText
)

func init() {
	// The engine is embedded in host programs; stay quiet unless asked.
	InitLogger(LevelWarn, FormatText)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// ParseLevel converts a level name such as "debug" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat converts "json" or "text" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "text", "":
		return FormatText, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// InitLogger initializes the global logger with the specified level and format.
func InitLogger(l Level, f Format) {
	mu.Lock()
	defer mu.Unlock()
	level, format = l, f
	rebuild()
}

// SetOutput redirects the global logger, keeping level and format.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	rebuild()
}

func rebuild() {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(handler)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// Helper functions for common logging patterns

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// DatabaseOpened logs a database file being opened or created.
func DatabaseOpened(path string, pageSize int, pages uint32, created bool, args ...any) {
	allArgs := []any{
		"path", path,
		"page_size", pageSize,
		"pages", pages,
		"created", created,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("database_opened", allArgs...)
}

// CatalogLoaded logs the catalog bootstrap result.
func CatalogLoaded(tables, views, indexes int, args ...any) {
	allArgs := []any{
		"tables", tables,
		"views", views,
		"indexes", indexes,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("catalog_loaded", allArgs...)
}

// StatementExecuted logs one executed SQL statement.
func StatementExecuted(kind string, duration time.Duration, rows int64, args ...any) {
	allArgs := []any{
		"kind", kind,
		"duration_us", duration.Microseconds(),
		"rows", rows,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("statement_executed", allArgs...)
}

// StatementFailed logs a statement that returned an error.
func StatementFailed(kind string, err error, args ...any) {
	allArgs := []any{
		"kind", kind,
		"error", err.Error(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("statement_failed", allArgs...)
}

// PagesFlushed logs a pager flush.
func PagesFlushed(path string, pages int, duration time.Duration, args ...any) {
	allArgs := []any{
		"path", path,
		"pages", pages,
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("pages_flushed", allArgs...)
}

// TransactionEvent logs transaction state changes.
func TransactionEvent(event string, id uint64, ops int, args ...any) {
	allArgs := []any{
		"event", event,
		"txn_id", id,
		"operations", ops,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("transaction_event", allArgs...)
}

// CorruptRow logs a row skipped because it failed its integrity check.
func CorruptRow(table string, pageID uint32, offset int, args ...any) {
	allArgs := []any{
		"table", table,
		"page_id", pageID,
		"offset", offset,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("corrupt_row_skipped", allArgs...)
}

// ReplicationAppend logs an entry written to the replication log.
func ReplicationAppend(lsn uint64, bytes int, args ...any) {
	allArgs := []any{
		"lsn", lsn,
		"bytes", bytes,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("replication_append", allArgs...)
}
