// Package main provides the askstream CLI entrypoint.
//
// Usage:
//
//	askstream <command> [options]
//
// Exit codes for `ask`:
//   - 0: stream completed
//   - 1: stream failed (transport, status, timeout)
//   - 2: invalid flags or configuration
//   - 130: stream aborted (SIGINT/SIGTERM)
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/askstream/cli/cmd"
	"github.com/pithecene-io/askstream/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

// Overridden in tests.
var (
	osExit           = os.Exit
	stderr io.Writer = os.Stderr
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "askstream",
		Usage:          "Ask questions against a streaming answer service",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.AskCommand(),
			cmd.KnowledgeBasesCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler preserves exit codes from cli.Exit(), including wrapped ones.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() is empty or "exit status N"; nothing to print
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			_, _ = fmt.Fprintln(stderr, msg)
		}
		osExit(code)
		return
	}

	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	osExit(1)
}
