package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/voidmem/internal/errors"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"register": true, "reinforce": true, "tick": true,
	"degrade": true, "remove": true, "engram": true,
	"stats": true, "top": true, "inspect": true, "territories": true,
	"events": true, "history": true,
	"checkpoint": true, "snapshots": true, "export": true, "import": true,
	"restore": true, "prune-snapshots": true,
	"telemetry": true, "drill": true, "drills": true, "seed": true,
	"serve": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run a CLI command vs the MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	// Global flags (--store, --verbose, --help, --version) → CLI
	return len(arg) > 1 && arg[0] == '-'
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner(w io.Writer) {
	fmt.Fprintln(w, `
                _     _
 __   _____ (_) __| |_ __ ___   ___ _ __ ___
 \ \ / / _ \| |/ _`+"`"+` | '_ `+"`"+` _ \ / _ \ '_ `+"`"+` _ \
  \ V / (_) | | (_| | | | | | |  __/ | | | | |
   \_/ \___/|_|\__,_|_| |_| |_|\___|_| |_| |_|

  Void Dynamics memory manager

  Usage: voidmem <command> [options]
         voidmem --help

  MCP server mode requires piped input.`)
}

func main() {
	os.Exit(run(os.Args))
}

// run executes the program and returns its exit code.
func run(args []string) int {
	if len(args) < 2 && isTerminal() {
		printBanner(os.Stdout)
		return errors.ExitOK
	}

	if !isCLIMode(args) {
		// Unknown argument + terminal → show error (don't start MCP server)
		if len(args) >= 2 && isTerminal() {
			fmt.Fprintf(os.Stderr, "error: unknown command %q\n", args[1])
			fmt.Fprintf(os.Stderr, "Run 'voidmem --help' for usage.\n")
			return errors.ExitValidation
		}
		args = []string{args[0], "mcp"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := newEnv(os.Stdin, os.Stdout)
	defer env.close()

	return exitCode(newCLIApp(env).RunContext(ctx, args), os.Stderr)
}

// exitCode prints err and maps it to a process exit status.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return errors.ExitOK
	}
	var coder cli.ExitCoder
	if stderrors.As(err, &coder) {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(stderr, "error:", msg)
		}
		return coder.ExitCode()
	}
	fmt.Fprintln(stderr, "error:", err)
	if errors.ExitCode(err) == errors.ExitInternal {
		// Flag and argument parsing failures.
		return errors.ExitValidation
	}
	return errors.ExitCode(err)
}
