// Package logging wraps zerolog with key/value convenience methods and a
// process-wide default logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger. Fields are passed as alternating key/value
// pairs.
type Logger struct {
	zl zerolog.Logger
}

var global atomic.Pointer[Logger]

func init() {
	global.Store(NewDevelopment())
}

// NewProduction creates a JSON logger on stderr at info level.
func NewProduction() *Logger {
	return NewWithWriter(os.Stderr, zerolog.InfoLevel)
}

// NewDevelopment creates a console logger on stderr at debug level.
func NewDevelopment() *Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, zerolog.DebugLevel)
}

// NewWithWriter creates a logger with a custom writer.
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
	return &Logger{zl: zl}
}

// New creates a logger from the configured format ("json" or "console")
// and level name. Unknown levels fall back to info.
func New(format, level string, w io.Writer) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if format == "console" || format == "pretty" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(w, lvl)
}

// SetGlobal sets the global logger instance.
func SetGlobal(logger *Logger) {
	global.Store(logger)
}

// Global returns the global logger instance.
func Global() *Logger {
	return global.Load()
}

func (l *Logger) emit(e *zerolog.Event, msg string, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		addField(e, key, fields[i+1])
	}
	e.Msg(msg)
}

func addField(e *zerolog.Event, key string, value any) {
	switch v := value.(type) {
	case error:
		e.Str(key, v.Error())
	case time.Duration:
		e.Dur(key, v)
	default:
		e.Interface(key, v)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...any) { l.emit(l.zl.Debug(), msg, fields) }

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...any) { l.emit(l.zl.Info(), msg, fields) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...any) { l.emit(l.zl.Warn(), msg, fields) }

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...any) { l.emit(l.zl.Error(), msg, fields) }

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(msg string, fields ...any) { l.emit(l.zl.Fatal(), msg, fields) }

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...any) *Logger {
	c := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case error:
			c = c.Str(key, v.Error())
		case time.Duration:
			c = c.Dur(key, v)
		default:
			c = c.Interface(key, v)
		}
	}
	return &Logger{zl: c.Logger()}
}

// Debug logs a debug message using the global logger.
func Debug(msg string, fields ...any) { Global().Debug(msg, fields...) }

// Info logs an info message using the global logger.
func Info(msg string, fields ...any) { Global().Info(msg, fields...) }

// Warn logs a warning message using the global logger.
func Warn(msg string, fields ...any) { Global().Warn(msg, fields...) }

// Error logs an error message using the global logger.
func Error(msg string, fields ...any) { Global().Error(msg, fields...) }

// With creates a child of the global logger.
func With(fields ...any) *Logger { return Global().With(fields...) }
