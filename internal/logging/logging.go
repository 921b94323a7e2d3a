// Package logging provides the structured, context-carried logger used by
// every component of the seat runtime. Components never write to stderr
// directly; they pull a Logger out of the context.Context they were handed
// at construction time, so a single process can run several seats with
// independently routed logs and so tests can swap in a recording logger.
package logging

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Level indicates the importance of a log entry. A larger value is more
// severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is the interface consumed by every internal package. Log is called
// once per entry; implementations must not block the caller for long, since
// most call sites are event-loop handlers.
type Logger interface {
	Log(level Level, ts time.Time, tag, msg string)
}

// MultiLogger fans a log entry out to a dynamic set of underlying loggers,
// which can be added and removed while it is in use.
type MultiLogger struct {
	mu      sync.Mutex
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger seeded with the given loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log implements Logger.
func (ml *MultiLogger) Log(level Level, ts time.Time, tag, msg string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	for _, l := range ml.loggers {
		l.Log(level, ts, tag, msg)
	}
}

// AddLogger adds a logger to the fan-out set.
func (ml *MultiLogger) AddLogger(l Logger) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.loggers = append(ml.loggers, l)
}

// RemoveLogger removes a logger from the fan-out set.
func (ml *MultiLogger) RemoveLogger(l Logger) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	j := 0
	for i, cur := range ml.loggers {
		if cur == l {
			continue
		}
		ml.loggers[j] = ml.loggers[i]
		j++
	}
	ml.loggers = ml.loggers[:j]
}

// contextKey is the key type for the Logger attached to a context.Context.
type contextKey struct{}

// NewContext returns a context carrying logger. Descendant contexts inherit
// it until a descendant attaches its own via NewContext again.
func NewContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the Logger attached to ctx, if any.
func FromContext(ctx context.Context) (Logger, bool) {
	l, ok := ctx.Value(contextKey{}).(Logger)
	return l, ok
}

// Debugf logs a debug-level entry tagged with tag, using ctx's attached
// Logger. It is a silent no-op if ctx has none, which keeps call sites in
// tests free of nil checks.
func Debugf(ctx context.Context, tag, format string, args ...interface{}) {
	log(ctx, LevelDebug, tag, format, args...)
}

// Infof logs an info-level entry.
func Infof(ctx context.Context, tag, format string, args ...interface{}) {
	log(ctx, LevelInfo, tag, format, args...)
}

// Warnf logs a warn-level entry.
func Warnf(ctx context.Context, tag, format string, args ...interface{}) {
	log(ctx, LevelWarn, tag, format, args...)
}

// Errorf logs an error-level entry.
func Errorf(ctx context.Context, tag, format string, args ...interface{}) {
	log(ctx, LevelError, tag, format, args...)
}

func log(ctx context.Context, level Level, tag, format string, args ...interface{}) {
	logger, ok := FromContext(ctx)
	if !ok {
		return
	}
	logger.Log(level, time.Now(), tag, fmt.Sprintf(format, args...))
}
