package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
)

// Configure sets the process-wide level and output format ("console" or "json").
// Loggers created before the call pick up the new settings.
func Configure(level string, format string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var w io.Writer = out
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	mu.Lock()
	base = zerolog.New(w).With().Timestamp().Logger()
	mu.Unlock()
}

// Logger provides structured logging for the server
type Logger struct {
	prefix string
}

// NewLogger creates a new logger with a prefix
func NewLogger(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV(zerolog.InfoLevel, msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV(zerolog.WarnLevel, msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV(zerolog.ErrorLevel, msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logWithKV(zerolog.DebugLevel, msg, keysAndValues...)
}

func (l *Logger) logWithKV(level zerolog.Level, msg string, keysAndValues ...interface{}) {
	mu.RLock()
	logger := base
	mu.RUnlock()

	event := logger.WithLevel(level).Str("component", l.prefix)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		switch v := keysAndValues[i+1].(type) {
		case error:
			event = event.AnErr(key, v)
		default:
			event = event.Interface(key, v)
		}
	}
	event.Msg(msg)
}
