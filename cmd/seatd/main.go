// Package main implements seatd, the VT/seat runtime multiplexer daemon.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

// version is filled in at build time via -ldflags; left as a placeholder
// otherwise.
var version = "<unknown>"

// doMain implements the program body in a separate function so deferred
// functions run before os.Exit, which does not unwind the stack.
func doMain() int {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&versionCmd{}, "")

	flag.Parse()

	ctx := context.Background()
	return int(subcommands.Execute(ctx))
}

func main() {
	os.Exit(doMain())
}
