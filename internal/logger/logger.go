// Package logger provides leveled logging for ragline.
// Warnings and errors are always written; debug and info output
// require verbose mode, enabled via the --verbose flag.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/phuslu/log"
	"golang.org/x/term"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	current           = newLogger(os.Stderr, false)
)

// newLogger builds a logger for w. Terminals get console formatting,
// everything else gets JSON lines.
func newLogger(w io.Writer, v bool) *log.Logger {
	level := log.WarnLevel
	if v {
		level = log.DebugLevel
	}

	var writer log.Writer = &log.IOWriter{Writer: w}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		writer = &log.ConsoleWriter{Writer: w, ColorOutput: true}
	}

	return &log.Logger{Level: level, Writer: writer}
}

func logger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	current = newLogger(output, v)
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	current = newLogger(w, verbose)
}

// Debug logs a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	logger().Debug().Msgf(format, args...)
}

// Section logs a section header if verbose mode is enabled.
func Section(name string) {
	logger().Debug().Str("section", name).Msgf("=== %s ===", name)
}

// Info logs an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	logger().Info().Msgf(format, args...)
}

// Warn logs a warning.
func Warn(format string, args ...any) {
	logger().Warn().Msgf(format, args...)
}

// Error logs an error.
func Error(format string, args ...any) {
	logger().Error().Msgf(format, args...)
}
