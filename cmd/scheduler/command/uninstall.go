package command

import (
	"flag"
	"fmt"

	"github.com/hashicorp/cli"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/takirala/dcos-commons/pkg/framework"
	"github.com/takirala/dcos-commons/pkg/scheduler"
	"github.com/takirala/dcos-commons/pkg/spec"
	"github.com/takirala/dcos-commons/pkg/store"
)

// UninstallCommandFactory builds the "uninstall" subcommand.
func UninstallCommandFactory(ui cli.Ui, logger hclog.Logger) cli.CommandFactory {
	return func() (cli.Command, error) {
		return &UninstallCommand{ui: ui, logger: logger}, nil
	}
}

// UninstallCommand resumes against a previously-populated store and drives
// the uninstall-mode scheduler to completion (spec.md Sec 4.11, Sec 4.13).
type UninstallCommand struct {
	ui     cli.Ui
	logger hclog.Logger
}

func (c *UninstallCommand) Synopsis() string { return "Tear down a previously deployed service" }

func (c *UninstallCommand) Help() string {
	return `Usage: scheduler uninstall -store=<path>

  Resumes against an existing persistent store and runs the service to
  completion in uninstall mode: kill every task, unreserve every resource,
  destroy every volume, wipe persistent state, and deregister the
  framework. No secrets client is configured, so no TLS secrets are
  deleted.
`
}

func (c *UninstallCommand) Run(args []string) int {
	fs := flag.NewFlagSet("uninstall", flag.ContinueOnError)
	storePath := fs.String("store", "", "bolt-backed persistent store file (required)")
	if err := fs.Parse(args); err != nil {
		return ExitGeneral
	}
	if *storePath == "" {
		c.ui.Error("missing required -store flag")
		return ExitGeneral
	}

	ps, closeFn, err := openStore(*storePath)
	if err != nil {
		c.ui.Error(fmt.Sprintf("opening store: %v", err))
		return ExitSchedulerInitFailed
	}
	defer closeFn()

	frameworks := store.NewFrameworkStore(ps)
	states, err := store.NewStateStore(ps, c.logger)
	if err != nil {
		c.ui.Error(fmt.Sprintf("initializing state store: %v", err))
		return ExitSchedulerInitFailed
	}
	configs := store.NewConfigStore(ps)
	serviceName := lookupServiceName(configs)

	drv := newDevDriver(c.logger)
	uninstall, err := scheduler.NewUninstallScheduler(scheduler.UninstallDeps{
		Driver:      drv,
		PS:          ps,
		Frameworks:  frameworks,
		States:      states,
		ServiceName: serviceName,
		Logger:      c.logger,
	})
	if err != nil {
		c.ui.Error(fmt.Sprintf("constructing uninstall scheduler: %v", err))
		return ExitSchedulerInitFailed
	}

	processor := framework.NewOfferProcessor(drv, uninstall, ps, framework.Config{Logger: c.logger})
	fwScheduler := framework.NewFrameworkScheduler(processor, uninstall, uninstall, nil, c.logger)
	fwScheduler.SetAPIServerStarted()
	drv.registered(fwScheduler)

	return waitForShutdown(c.logger, drv)
}

func lookupServiceName(configs *store.ConfigStore) string {
	id, err := configs.GetTargetConfig()
	if err != nil {
		return ""
	}
	raw, err := configs.Fetch(id)
	if err != nil {
		return ""
	}
	svc, err := spec.Unmarshal(raw)
	if err != nil {
		return ""
	}
	return svc.Name
}
