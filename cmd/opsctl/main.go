// Command opsctl launches, observes and cancels long running admin operations.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/adminops/internal/domain/operation"
)

var build = "develop"

const usageText = `usage: opsctl [-config file] [-json] <command> [args]

commands:
  launch <kind> [-param key=value]... [-deployment name]
  status <jobId>
  cancel <jobId>

kinds: git-commit git-push git-commit-and-push git-force-reset sql-backup sql-restore sql-export
`

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// globalOptions are flags accepted before the command name.
type globalOptions struct {
	configPath string
	asJSON     bool
}

// run executes one CLI invocation and returns the process exit code. ctx is
// cancelled when the operator interrupts the command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("opsctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usageText) }

	var opts globalOptions
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	fs.BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	if err := fs.Parse(args); err != nil {
		return operation.ExitFailure
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return operation.ExitFailure
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "launch":
		return runLaunch(ctx, opts, cmdArgs, stdout, stderr)
	case "status":
		return runStatus(ctx, opts, cmdArgs, stdout, stderr)
	case "cancel":
		return runCancel(ctx, opts, cmdArgs, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, build)
		return operation.ExitSuccess
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return operation.ExitFailure
	}
}
