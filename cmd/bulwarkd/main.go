// Command bulwarkd bootstraps the credential lifecycle engine.
package main

import (
	"fmt"
	"os"

	"github.com/mitchellh/cli"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}
	base := baseCommand{ui: ui}

	if len(args) == 0 {
		args = []string{"serve"}
	}

	c := &cli.CLI{
		Name:    "bulwarkd",
		Version: version,
		Args:    args,
		Commands: map[string]cli.CommandFactory{
			"migrate": func() (cli.Command, error) {
				return &MigrateCommand{baseCommand: base}, nil
			},
			"rotate-key": func() (cli.Command, error) {
				return &RotateKeyCommand{baseCommand: base}, nil
			},
			"sweep": func() (cli.Command, error) {
				return &SweepCommand{baseCommand: base}, nil
			},
			"serve": func() (cli.Command, error) {
				return &ServeCommand{baseCommand: base}, nil
			},
		},
		HelpFunc:   cli.BasicHelpFunc("bulwarkd"),
		HelpWriter: os.Stderr,
	}

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing CLI: %s\n", err.Error())
		return 1
	}
	return exitCode
}
