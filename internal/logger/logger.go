// Package logger provides leveled, printf-style logging for the CLI.
//
// Messages follow the "<component>: message" convention used throughout the
// connectors. Output is produced by a zerolog root logger that writes human
// readable lines to stderr unless JSON output is requested.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the root logger.
type Options struct {
	Level        string
	Format       string
	Writer       io.Writer
	StaticFields map[string]string
}

var (
	mu      sync.RWMutex
	root    = newLogger(Options{})
	verbose bool
	level   = zerolog.InfoLevel
)

// Init replaces the root logger. Safe to call more than once.
func Init(opt Options) {
	l := newLogger(opt)
	mu.Lock()
	defer mu.Unlock()
	level = parseLevel(opt.Level)
	if verbose {
		l = l.Level(zerolog.DebugLevel)
	} else {
		l = l.Level(level)
	}
	root = l
}

// SetVerbose enables or disables debug output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		root = root.Level(zerolog.DebugLevel)
		return
	}
	root = root.Level(level)
}

// IsVerbose reports whether debug output is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// Get returns the current root logger.
func Get() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := root
	return &l
}

// Named returns a child logger tagged with a component field.
func Named(component string) *zerolog.Logger {
	l := Get().With().Str("component", component).Logger()
	return &l
}

// Debug logs a formatted message at debug level.
func Debug(format string, args ...any) {
	Get().Debug().Msg(fmt.Sprintf(format, args...))
}

// Info logs a formatted message at info level.
func Info(format string, args ...any) {
	Get().Info().Msg(fmt.Sprintf(format, args...))
}

// Warn logs a formatted message at warn level.
func Warn(format string, args ...any) {
	Get().Warn().Msg(fmt.Sprintf(format, args...))
}

// Error logs a formatted message at error level.
func Error(format string, args ...any) {
	Get().Error().Msg(fmt.Sprintf(format, args...))
}

func newLogger(opt Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if !strings.EqualFold(opt.Format, "json") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(w).With().Timestamp()
	for k, v := range opt.StaticFields {
		ctx = ctx.Str(k, v)
	}
	return ctx.Logger().Level(parseLevel(opt.Level))
}

// parseLevel maps a level name onto zerolog, defaulting to info.
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
