package logging

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ConsoleLogger writes human-readable lines to an io.Writer (typically
// stderr for a daemon started from an init script). It is the default
// sink installed by cmd/seatd before any seat is attached.
type ConsoleLogger struct {
	mu  sync.Mutex
	w   io.Writer
	min Level
}

var _ Logger = (*ConsoleLogger)(nil)

// NewConsoleLogger creates a ConsoleLogger writing to w, suppressing
// entries below min.
func NewConsoleLogger(w io.Writer, min Level) *ConsoleLogger {
	return &ConsoleLogger{w: w, min: min}
}

// Log implements Logger.
func (l *ConsoleLogger) Log(level Level, ts time.Time, tag, msg string) {
	if level < l.min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s %-5s %-10s %s\n", ts.Format("2006-01-02T15:04:05.000"), level, tag, msg)
}
