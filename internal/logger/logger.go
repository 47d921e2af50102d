package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu  sync.RWMutex
	log *slog.Logger
)

func init() {
	Configure(os.Stdout, debugFromEnv())
}

func debugFromEnv() bool {
	return os.Getenv("DEBUG") != "" || os.Getenv("EXIFSORT_DEBUG") != ""
}

// Configure replaces the global logger. Debug output is enabled when verbose is
// set or when DEBUG / EXIFSORT_DEBUG is present in the environment.
func Configure(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose || debugFromEnv() {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})

	mu.Lock()
	log = slog.New(handler)
	mu.Unlock()
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Info logs at info level.
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}
