// Command migrator applies versioned schema migrations against the
// deployment's SQLite database. It is invoked by the surrounding deployment
// tooling, which provides the database location and the migrations directory
// through the environment (see internal/config).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
)

// runCtx is cancelled on SIGINT/SIGTERM so an interrupted batch still walks
// its guaranteed lock-release path before the process exits.
var runCtx context.Context

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = ctx

	parser := flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = "schema migration engine"

	mustAddCommand(parser, "init", "Create the migration log and lock tables", &initCommand{})
	mustAddCommand(parser, "run", "Apply pending migrations in order", &runCommand{})
	mustAddCommand(parser, "status", "Show applied and pending migrations", &statusCommand{})
	mustAddCommand(parser, "validate", "Run health checks against the target", &validateCommand{})
	mustAddCommand(parser, "backup", "Take a snapshot of the target database", &backupCommand{})
	mustAddCommand(parser, "restore", "Restore the target from a snapshot", &restoreCommand{})
	mustAddCommand(parser, "rollback", "Roll back one applied migration", &rollbackCommand{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(flagsErr.Message)
			return
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func mustAddCommand(parser *flags.Parser, name, description string, cmd interface{}) {
	if _, err := parser.AddCommand(name, description, "", cmd); err != nil {
		panic(fmt.Sprintf("register command %s: %v", name, err))
	}
}
