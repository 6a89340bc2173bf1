// Package logging provides a small structured logger interface used across
// the run execution subsystem. It wraps the standard library logger rather
// than pulling in a third-party structured logging package, matching the
// teacher's own ambient logging style (internal/shared/logging is likewise a
// thin wrapper, not zap/zerolog/logrus).
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/catface996/aiops-executor/internal/id"
)

// Logger is the minimal logging contract used throughout the subsystem.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// componentLogger prefixes every line with a component name and, when
// present, the log id carried by the context it was derived from.
type componentLogger struct {
	mu        *sync.Mutex
	out       io.Writer
	component string
	logID     string
}

// NewComponentLogger creates a logger that tags every line with component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{mu: &sync.Mutex{}, out: os.Stderr, component: component}
}

// NewComponentLoggerTo is like NewComponentLogger but writes to an explicit
// writer; used by tests to assert on log output.
func NewComponentLoggerTo(component string, out io.Writer) Logger {
	return &componentLogger{mu: &sync.Mutex{}, out: out, component: component}
}

func (l *componentLogger) logf(level, format string, args ...interface{}) {
	if l == nil || l.out == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logID != "" {
		fmt.Fprintf(l.out, "%s [%s] [%s] %s\n", log.Prefix(), level, l.component, withLogID(l.logID, msg))
		return
	}
	fmt.Fprintf(l.out, "[%s] [%s] %s\n", level, l.component, msg)
}

func withLogID(logID, msg string) string {
	return fmt.Sprintf("log_id=%s %s", logID, msg)
}

func (l *componentLogger) Debug(format string, args ...interface{}) { l.logf("DEBUG", format, args...) }
func (l *componentLogger) Info(format string, args ...interface{})  { l.logf("INFO", format, args...) }
func (l *componentLogger) Warn(format string, args ...interface{})  { l.logf("WARN", format, args...) }
func (l *componentLogger) Error(format string, args ...interface{}) { l.logf("ERROR", format, args...) }

// WithLogID returns a copy of logger that stamps every line with logID.
func WithLogID(logger Logger, logID string) Logger {
	cl, ok := logger.(*componentLogger)
	if !ok || cl == nil {
		return logger
	}
	return &componentLogger{mu: cl.mu, out: cl.out, component: cl.component, logID: logID}
}

// FromContext derives a logger tagged with the context's log id, falling
// back to base if the context carries none.
func FromContext(ctx context.Context, base Logger) Logger {
	logID := id.LogIDFromContext(ctx)
	if logID == "" {
		return OrNop(base)
	}
	return WithLogID(OrNop(base), logID)
}

// nopLogger discards everything; returned by OrNop for nil inputs so callers
// never need a nil check before logging.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// OrNop returns logger unchanged unless it is nil or a typed-nil pointer, in
// which case it returns a safe no-op logger. Protects against the classic Go
// "non-nil interface wrapping a nil pointer" footgun.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return nopLogger{}
	}
	return logger
}

// IsNil reports whether logger is a nil interface or wraps a typed nil
// pointer of a known logger implementation.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	if cl, ok := logger.(*componentLogger); ok && cl == nil {
		return true
	}
	return false
}
