package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/coreos/go-systemd/daemon"
	"github.com/google/subcommands"

	"seatrt/internal/config"
	"seatrt/internal/eloop"
	"seatrt/internal/logging"
	"seatrt/internal/seat"
)

// runCmd implements subcommands.Command to start the daemon.
type runCmd struct {
	configPath string
}

var _ subcommands.Command = (*runCmd)(nil)

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "start the seat runtime daemon" }
func (*runCmd) Usage() string {
	return `Usage: seatd run [-config path]

Starts the VT/seat runtime multiplexer: it discovers seats and their
devices, multiplexes VT switching across the sessions registered on each
seat, and blocks until SIGTERM/SIGINT.
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "path to a YAML configuration file; defaults built in if empty")
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := config.Default()
	if r.configPath != "" {
		var err error
		cfg, err = config.Load(r.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seatd: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	logger, closeLogger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seatd: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeLogger()
	ctx = logging.NewContext(ctx, logger)

	loop, err := eloop.New(logger)
	if err != nil {
		logging.Errorf(ctx, "seatd", "creating event loop: %v", err)
		return subcommands.ExitFailure
	}
	defer loop.Close()

	rt, err := seat.NewRuntime(ctx, loop, cfg)
	if err != nil {
		logging.Errorf(ctx, "seatd", "starting runtime: %v", err)
		return subcommands.ExitFailure
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Debugf(ctx, "seatd", "sd_notify unavailable: %v", err)
	} else if sent {
		logging.Infof(ctx, "seatd", "notified service manager of readiness")
	}

	if err := rt.Run(); err != nil {
		logging.Errorf(ctx, "seatd", "event loop exited with error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// newLogger builds the Logger cfg.LogSink selects, plus a closer to run
// before process exit. Neither sink holds a resource to release, so both
// closers are currently no-ops.
func newLogger(cfg config.Config) (logging.Logger, func(), error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.LogSink {
	case config.LogSinkJournal:
		jl, err := logging.NewJournalLogger()
		if err != nil {
			return nil, nil, err
		}
		return jl, func() {}, nil
	default:
		cl := logging.NewConsoleLogger(os.Stderr, level)
		return cl, func() {}, nil
	}
}
