// Package logger provides a standardized way for different logging frameworks to be integrated into go-elite,
// allowing users to choose their preferred logging implementation.
//
// The package keeps one process-wide default logger. SetDefault replaces it (the last registration wins)
// and ResetDefault restores the built-in slog logger. Components such as rtsi.Client, driver.Driver and
// primary.Client capture a logger when they are constructed, so replacing the default afterwards only affects
// components created later.
//
// The Logger interface defines methods for logging messages at various severity levels (Debug, Info, Warn, Error, Fatal)
// and supports structured logging with key-value pairs.
//
// Log Levels:
//
//   - DebugLevel:  Detailed debug information, typically disabled in production.
//   - InfoLevel:  General informational messages.
//   - WarnLevel:  Warnings about potential issues.
//   - ErrorLevel:  Errors that require attention.
//   - FatalLevel:  Critical errors that cause program termination.
package logger

import "strings"

// LogLevel indicates the logging severity level.
type LogLevel = int8

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel LogLevel = iota - 1
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual
	// human review.
	WarnLevel
	// ErrorLevel logs are high-priority. If an application is running smoothly,
	// it shouldn't generate any error-level logs.
	ErrorLevel
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel
)

// Logger is the structured logger used by every go-elite component. keysAndValues are alternating
// attribute keys and values, as in log/slog.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs at error severity and then calls os.Exit(1).
	Fatal(msg string, keysAndValues ...any)
	// With returns a child logger carrying keyValues on every record. The child shares the parent's level.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level. Hot paths check it before building debug attributes.
	Level() LogLevel
	SetLevel(level LogLevel)
}

// ParseLevel converts a level name ("debug", "info", "warn", "error", "fatal") to LogLevel.
// Unknown names map to InfoLevel.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}
