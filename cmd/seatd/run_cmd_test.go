package main

import (
	"testing"

	"seatrt/internal/config"
	"seatrt/internal/logging"
)

func TestNewLoggerDefaultsToConsole(t *testing.T) {
	cfg := config.Default()
	l, closeFn, err := newLogger(cfg)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer closeFn()
	if _, ok := l.(*logging.ConsoleLogger); !ok {
		t.Fatalf("got %T, want *logging.ConsoleLogger", l)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "not-a-level"
	if _, _, err := newLogger(cfg); err == nil {
		t.Fatal("expected an error for an unrecognized log level")
	}
}
