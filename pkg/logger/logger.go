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

// Level is the verbosity threshold used by the logger.
//
// Lower values are more verbose.
type Level int

const (
	// LevelTrace enables extremely verbose logs (socket frames, bridge payloads).
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo enables informational logs (default).
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
)

var (
	mu     sync.RWMutex
	level  = LevelInfo
	output zerolog.Logger
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	output = newConsole(os.Stderr)
}

func newConsole(w io.Writer) zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	return zerolog.New(writer).Level(zerolog.TraceLevel).With().Timestamp().Logger()
}

// ParseLevel parses a log level string into a Level.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// String implements fmt.Stringer.
func (l Level) String() string {
	return toZerolog(l).String()
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelTrace:
		return zerolog.TraceLevel
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetOutput replaces the writer used by the global logger with a
// human-readable console writer.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = newConsole(w)
}

// SetJSON switches the global logger to structured JSON lines on w.
func SetJSON(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = zerolog.New(w).Level(zerolog.TraceLevel).With().Timestamp().Logger()
}

// SetLevel sets the global log level threshold.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// Enabled reports whether a level would be emitted by the current configuration.
func Enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

// With returns a structured logger tagged with the given component name. It
// honours the current level threshold.
func With(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return output.With().Str("component", component).Logger().Level(toZerolog(level))
}

func logf(l Level, format string, args ...any) {
	mu.RLock()
	if l < level {
		mu.RUnlock()
		return
	}
	lg := output
	mu.RUnlock()
	lg.WithLevel(toZerolog(l)).Msgf(format, args...)
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }

// Infof logs at INFO level.
func Infof(format string, args ...any) { logf(LevelInfo, format, args...) }

// Warnf logs at WARN level.
func Warnf(format string, args ...any) { logf(LevelWarn, format, args...) }

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }
