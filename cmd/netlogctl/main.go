// Package main provides the netlogctl CLI entrypoint.
//
// Usage:
//
//	netlogctl <command> [options]
//
// All commands are read-only: they inspect finished log files, replay a
// demo event source through an in-process Observer, or attach to a running
// netlogd's stats endpoint. None of them write to a production run's chunk
// ring or final log.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/netlog/cli/cmd"
	"github.com/pithecene-io/netlog/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "netlogctl",
		Usage:          "netlog inspection and demo CLI",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.VersionCommand(commit),
			cmd.InspectCommand(),
			cmd.TailCommand(),
			cmd.WatchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit() errors and prints a
// message for anything unexpected.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
