package internal

import (
	"log"
	"os"
	"strings"
)

// LogLevel controls logging verbosity.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// ParseLogLevel maps a level name to a LogLevel, defaulting to INFO.
func ParseLogLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ERROR":
		return LogLevelError
	case "WARN":
		return LogLevelWarn
	case "DEBUG":
		return LogLevelDebug
	case "TRACE":
		return LogLevelTrace
	default:
		return LogLevelInfo
	}
}

// Logger provides leveled logging on top of the standard library logger.
type Logger struct {
	level LogLevel
}

// NewLogger creates a logger with the given level.
func NewLogger(level LogLevel) *Logger {
	return &Logger{level: level}
}

// NewDefaultLogger creates a logger whose level comes from the LOG_LEVEL
// environment variable.
func NewDefaultLogger() *Logger {
	return &Logger{level: ParseLogLevel(os.Getenv("LOG_LEVEL"))}
}

// Error logs error messages.
func (l *Logger) Error(format string, args ...interface{}) {
	l.printf(LogLevelError, "[ERROR] ", format, args...)
}

// Warn logs warning messages. Non-fatal inference conditions (degenerate
// variance groupings, single-contrast cross-correction) land here.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.printf(LogLevelWarn, "[WARN] ", format, args...)
}

// Info logs informational messages.
func (l *Logger) Info(format string, args ...interface{}) {
	l.printf(LogLevelInfo, "[INFO] ", format, args...)
}

// Debug logs debug messages.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.printf(LogLevelDebug, "[DEBUG] ", format, args...)
}

// Trace logs per-permutation detail; off unless explicitly requested.
func (l *Logger) Trace(format string, args ...interface{}) {
	l.printf(LogLevelTrace, "[TRACE] ", format, args...)
}

func (l *Logger) printf(level LogLevel, prefix, format string, args ...interface{}) {
	if l.level >= level {
		log.Printf(prefix+format, args...)
	}
}
