package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a structured logger taking alternating key/value pairs.
type Logger struct {
	zl zerolog.Logger
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
	once          sync.Once
)

// Init initializes the default logger with a JSON writer on os.Stdout.
// It ensures that the logger is initialized only once.
func Init() {
	once.Do(func() {
		mu.Lock()
		defaultLogger = New(os.Stdout, "info", "json")
		mu.Unlock()
	})
}

// Configure replaces the default logger with one using the given level and format.
// Format "console" writes human readable lines, anything else writes JSON.
func Configure(level, format string) {
	Init()
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = New(os.Stdout, level, format)
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) *Logger {
	if strings.EqualFold(format, "console") || strings.EqualFold(format, "text") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return &Logger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Get returns the initialized default logger.
func Get() *Logger {
	Init()
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// With returns a child logger carrying the given key/value pairs on every entry.
func (l *Logger) With(kv ...any) *Logger {
	ctx := l.zl.With()
	if len(kv) > 0 {
		ctx = ctx.Fields(pairs(kv))
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) Info(msg string, kv ...any) {
	l.zl.Info().Fields(pairs(kv)).Msg(msg)
}

func (l *Logger) Warn(msg string, kv ...any) {
	l.zl.Warn().Fields(pairs(kv)).Msg(msg)
}

func (l *Logger) Debug(msg string, kv ...any) {
	l.zl.Debug().Fields(pairs(kv)).Msg(msg)
}

// Error logs msg at error level, attaching err when it is non-nil.
func (l *Logger) Error(msg string, err error, kv ...any) {
	ev := l.zl.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Fields(pairs(kv)).Msg(msg)
}

// pairs turns a key/value list into the slice form zerolog accepts.
// A trailing key without value is dropped.
func pairs(kv []any) []any {
	if len(kv)%2 != 0 {
		kv = kv[:len(kv)-1]
	}
	return kv
}

// Info logs an informational message using the default logger.
func Info(msg string, kv ...any) {
	Get().Info(msg, kv...)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, kv ...any) {
	Get().Warn(msg, kv...)
}

// Error logs an error message using the default logger.
func Error(msg string, err error, kv ...any) {
	Get().Error(msg, err, kv...)
}

// Debug logs a debug message using the default logger.
func Debug(msg string, kv ...any) {
	Get().Debug(msg, kv...)
}

// With returns a child of the default logger.
func With(kv ...any) *Logger {
	return Get().With(kv...)
}
