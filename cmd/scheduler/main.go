// Command scheduler is the process entrypoint: it wires a PersistentStore,
// loads a ServiceSpec, and runs either the deploy or uninstall
// ServiceScheduler to completion (spec.md Sec 4.13).
package main

import (
	"os"

	"github.com/hashicorp/cli"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/takirala/dcos-commons/cmd/scheduler/command"
)

func main() {
	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "scheduler",
		Output: os.Stderr,
		Level:  hclog.Info,
	})

	c := cli.NewCLI("scheduler", "0.1.0")
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"run":       command.RunCommandFactory(ui, logger),
		"uninstall": command.UninstallCommandFactory(ui, logger),
	}

	exitStatus, err := c.Run()
	if err != nil {
		logger.Error("command exited with error", "error", err)
	}
	os.Exit(exitStatus)
}
