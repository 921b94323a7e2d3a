package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

// versionCmd prints the build version and exits.
type versionCmd struct{}

var _ subcommands.Command = (*versionCmd)(nil)

func (*versionCmd) Name() string             { return "version" }
func (*versionCmd) Synopsis() string         { return "print version and exit" }
func (*versionCmd) Usage() string            { return "Usage: seatd version\n" }
func (*versionCmd) SetFlags(f *flag.FlagSet) {}

func (*versionCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Printf("seatd version %s\n", version)
	return subcommands.ExitSuccess
}
