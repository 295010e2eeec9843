// Package log provides the common logging interface for tablet
// components. Library code traces table lifecycle events at Debug, so
// at the default Info level it only emits warnings, such as a temp file
// that could not be removed.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents the logging level
type Level int

const (
	// LevelDebug for table lifecycle tracing
	LevelDebug Level = iota
	// LevelInfo for general operational information
	LevelInfo
	// LevelWarn for recoverable problems, such as a temp file that
	// could not be removed
	LevelWarn
	// LevelError for failures surfaced to the caller
	LevelError
	// LevelFatal aborts the process
	LevelFatal
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// Logger is the leveled, field-carrying logging interface
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
	// WithField returns a logger with one context field attached
	WithField(key string, value interface{}) Logger
	// WithFields returns a logger with the given fields attached
	WithFields(fields map[string]interface{}) Logger
	SetLevel(level Level)
	GetLevel() Level
}

// StandardLogger writes timestamped, leveled lines to a single output
type StandardLogger struct {
	mu     sync.Mutex
	level  Level
	out    io.Writer
	fields map[string]interface{}
}

// Option configures a StandardLogger
type Option func(*StandardLogger)

// WithLevel sets the minimum level emitted
func WithLevel(level Level) Option {
	return func(l *StandardLogger) { l.level = level }
}

// WithOutput sets the output writer
func WithOutput(out io.Writer) Option {
	return func(l *StandardLogger) { l.out = out }
}

// NewStandardLogger creates a logger writing to stderr at Info level
// unless configured otherwise.
func NewStandardLogger(options ...Option) *StandardLogger {
	logger := &StandardLogger{
		level:  LevelInfo,
		out:    os.Stderr,
		fields: make(map[string]interface{}),
	}
	for _, option := range options {
		option(logger)
	}
	return logger
}

func (l *StandardLogger) log(level Level, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	formatted := msg
	if len(args) > 0 {
		formatted = fmt.Sprintf(msg, args...)
	}

	fieldsStr := ""
	for k, v := range l.fields {
		fieldsStr += fmt.Sprintf(" %s=%v", k, v)
	}

	fmt.Fprintf(l.out, "[%s] [%s]%s %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"), level.String(), fieldsStr, formatted)

	if level == LevelFatal {
		os.Exit(1)
	}
}

// Debug logs a debug-level message
func (l *StandardLogger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args...) }

// Info logs an info-level message
func (l *StandardLogger) Info(msg string, args ...interface{}) { l.log(LevelInfo, msg, args...) }

// Warn logs a warning-level message
func (l *StandardLogger) Warn(msg string, args ...interface{}) { l.log(LevelWarn, msg, args...) }

// Error logs an error-level message
func (l *StandardLogger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args...) }

// Fatal logs a fatal-level message and exits
func (l *StandardLogger) Fatal(msg string, args ...interface{}) { l.log(LevelFatal, msg, args...) }

// WithField returns a logger with one additional context field
func (l *StandardLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger with the given context fields added
func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StandardLogger{level: l.level, out: l.out, fields: merged}
}

// SetLevel sets the minimum emitted level
func (l *StandardLogger) SetLevel(level Level) { l.level = level }

// GetLevel returns the minimum emitted level
func (l *StandardLogger) GetLevel() Level { return l.level }

var defaultLogger = NewStandardLogger()

// SetDefaultLogger replaces the package-level logger
func SetDefaultLogger(logger *StandardLogger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the package-level logger
func GetDefaultLogger() *StandardLogger {
	return defaultLogger
}

// Debug logs to the default logger
func Debug(msg string, args ...interface{}) { defaultLogger.Debug(msg, args...) }

// Info logs to the default logger
func Info(msg string, args ...interface{}) { defaultLogger.Info(msg, args...) }

// Warn logs to the default logger
func Warn(msg string, args ...interface{}) { defaultLogger.Warn(msg, args...) }

// Error logs to the default logger
func Error(msg string, args ...interface{}) { defaultLogger.Error(msg, args...) }

// WithField returns a default-logger child with one context field
func WithField(key string, value interface{}) Logger {
	return defaultLogger.WithField(key, value)
}

// SetLevel sets the default logger's level
func SetLevel(level Level) { defaultLogger.SetLevel(level) }
