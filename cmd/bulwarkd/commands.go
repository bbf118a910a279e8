package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goliatone/go-bulwark/repository"
	"github.com/mitchellh/cli"
)

type baseCommand struct {
	ui cli.Ui
}

func (c *baseCommand) fail(format string, args ...any) int {
	c.ui.Error(fmt.Sprintf(format, args...))
	return 1
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type MigrateCommand struct {
	baseCommand
}

func (c *MigrateCommand) Synopsis() string { return "Apply database migrations" }

func (c *MigrateCommand) Help() string {
	return strings.TrimSpace(`
Usage: bulwarkd migrate

  Applies every pending schema migration for the configured DB_DRIVER.
`)
}

func (c *MigrateCommand) Run(args []string) int {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := openApp(ctx)
	if err != nil {
		return c.fail("Error loading app: %v", err)
	}
	defer app.Close()

	if err := repository.Migrate(ctx, app.db); err != nil {
		return c.fail("Error migrating: %v", err)
	}

	version, err := repository.MigrationVersion(ctx, app.db)
	if err != nil {
		return c.fail("Error reading migration version: %v", err)
	}
	c.ui.Output(fmt.Sprintf("Schema at version %d", version))
	return 0
}

type RotateKeyCommand struct {
	baseCommand
}

func (c *RotateKeyCommand) Synopsis() string { return "Generate a new signing key generation" }

func (c *RotateKeyCommand) Help() string {
	return strings.TrimSpace(`
Usage: bulwarkd rotate-key

  Generates a new signing key generation and makes it current. Tokens
  signed by earlier generations stay valid until the retention window
  of the superseded generation passes.
`)
}

func (c *RotateKeyCommand) Run(args []string) int {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := openApp(ctx)
	if err != nil {
		return c.fail("Error loading app: %v", err)
	}
	defer app.Close()

	if err := app.wire(); err != nil {
		return c.fail("Error assembling components: %v", err)
	}

	key, err := app.keys.RotateKey(ctx)
	if err != nil {
		return c.fail("Error rotating key: %v", err)
	}
	c.ui.Output(fmt.Sprintf("Current signing key generation is %d", key.Generation))
	return 0
}

type SweepCommand struct {
	baseCommand
}

func (c *SweepCommand) Synopsis() string { return "Remove expired lifecycle state once" }

func (c *SweepCommand) Help() string {
	return strings.TrimSpace(`
Usage: bulwarkd sweep

  Runs every reaper sweeper once and prints how many records each removed.
`)
}

func (c *SweepCommand) Run(args []string) int {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := openApp(ctx)
	if err != nil {
		return c.fail("Error loading app: %v", err)
	}
	defer app.Close()

	if err := app.wire(); err != nil {
		return c.fail("Error assembling components: %v", err)
	}

	result := app.reaper.SweepOnce(ctx)
	for name, removed := range result.Removed {
		c.ui.Output(fmt.Sprintf("%-16s %d", name, removed))
	}
	if result.Err != nil {
		return c.fail("Sweep finished with errors: %v", result.Err)
	}
	return 0
}

type ServeCommand struct {
	baseCommand
}

func (c *ServeCommand) Synopsis() string { return "Run the lifecycle engine and reaper" }

func (c *ServeCommand) Help() string {
	return strings.TrimSpace(`
Usage: bulwarkd serve [options]

  Assembles every component, ensures a current signing key exists and
  runs the reaper until SIGINT or SIGTERM.

Options:

  -migrate    Apply pending migrations before starting. Defaults to true.
`)
}

func (c *ServeCommand) Run(args []string) int {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	flags.Usage = func() { c.ui.Output(c.Help()) }
	migrate := flags.Bool("migrate", true, "apply migrations before starting")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	app, err := openApp(ctx)
	if err != nil {
		return c.fail("Error loading app: %v", err)
	}
	defer app.Close()

	if *migrate {
		if err := repository.Migrate(ctx, app.db); err != nil {
			return c.fail("Error migrating: %v", err)
		}
	}

	if err := app.wire(); err != nil {
		return c.fail("Error assembling components: %v", err)
	}

	key, err := app.keys.CurrentGeneration(ctx)
	if err != nil {
		return c.fail("Error loading signing key: %v", err)
	}
	app.logger.Info("serving with signing key generation %d", key.Generation)

	if err := app.reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return c.fail("Reaper stopped: %v", err)
	}
	app.logger.Info("shutdown complete")
	return 0
}
