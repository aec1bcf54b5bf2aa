// Package command implements the scheduler binary's cli.Command
// subcommands: run (deploy mode) and uninstall.
package command

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/cli"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/takirala/dcos-commons/pkg/framework"
	"github.com/takirala/dcos-commons/pkg/scheduler"
	"github.com/takirala/dcos-commons/pkg/spec"
	"github.com/takirala/dcos-commons/pkg/store"
)

// Exit codes, spec.md Sec 6: 1 is the general failure code; the rest are
// dedicated to the specific fatal conditions the scheduler distinguishes.
const (
	ExitGeneral             = 1
	ExitRegistrationFailure = 2
	ExitMasterDisconnect    = 3
	ExitDriverError         = 4
	ExitSchedulerInitFailed = 5
)

// RunCommandFactory builds the "run" subcommand.
func RunCommandFactory(ui cli.Ui, logger hclog.Logger) cli.CommandFactory {
	return func() (cli.Command, error) {
		return &RunCommand{ui: ui, logger: logger}, nil
	}
}

// RunCommand loads a ServiceSpec and drives a deploy-mode ServiceScheduler.
type RunCommand struct {
	ui     cli.Ui
	logger hclog.Logger
}

func (c *RunCommand) Synopsis() string { return "Run the scheduler in deploy mode" }

func (c *RunCommand) Help() string {
	return `Usage: scheduler run [options]

  Loads a ServiceSpec and runs the deploy-mode scheduler against it.

Options:
  -spec=<path>       Path to a JSON-encoded ServiceSpec (required)
  -store=<path>      Bolt-backed persistent store file (default: in-memory)
  -role=<role>       Reservation role to stamp on claimed resources
  -principal=<name>  Reservation principal
  -version=<semver>  This scheduler binary's own version, for config
                     compatibility gating against ServiceSpec.MinSchedulerVersion
`
}

func (c *RunCommand) Run(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	specPath := fs.String("spec", "", "path to a JSON ServiceSpec")
	storePath := fs.String("store", "", "bolt-backed persistent store file")
	role := fs.String("role", "", "reservation role")
	principal := fs.String("principal", "", "reservation principal")
	schedVersion := fs.String("version", "0.1.0", "scheduler binary version")
	if err := fs.Parse(args); err != nil {
		return ExitGeneral
	}
	if *specPath == "" {
		c.ui.Error("missing required -spec flag")
		return ExitGeneral
	}

	svc, err := loadSpec(*specPath)
	if err != nil {
		c.ui.Error(fmt.Sprintf("loading spec: %v", err))
		return ExitSchedulerInitFailed
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

	if raw, err := spec.Marshal(svc); err == nil {
		if id, err := configs.Store(store.RawSpec(raw)); err == nil {
			_ = configs.SetTargetConfig(id, *schedVersion, svc.MinSchedulerVersion)
		}
	}

	drv := newDevDriver(c.logger)
	deploy, err := scheduler.NewDeployScheduler(svc, scheduler.Deps{
		Driver:     drv,
		PS:         ps,
		Frameworks: frameworks,
		States:     states,
		Configs:    configs,
		Logger:     c.logger,
		Role:       *role,
		Principal:  *principal,
	})
	if err != nil {
		c.ui.Error(fmt.Sprintf("constructing scheduler: %v", err))
		return ExitSchedulerInitFailed
	}

	processor := framework.NewOfferProcessor(drv, deploy, ps, framework.Config{Logger: c.logger})
	fwScheduler := framework.NewFrameworkScheduler(processor, deploy, deploy, []string{*role}, c.logger)
	fwScheduler.SetAPIServerStarted()

	drv.registered(fwScheduler)

	return waitForShutdown(c.logger, drv)
}

// waitForShutdown blocks until SIGINT/SIGTERM or the driver reports a fatal
// condition, then exits with the code spec.md Sec 6 assigns that condition.
func waitForShutdown(logger hclog.Logger, drv *devDriver) int {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		logger.Info("shutdown signal received")
		return 0
	case <-drv.disconnected:
		logger.Error("master disconnected")
		return ExitMasterDisconnect
	case <-drv.fatalErr:
		logger.Error("driver reported a fatal error")
		return ExitDriverError
	}
}

func loadSpec(path string) (spec.ServiceSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return spec.ServiceSpec{}, err
	}
	var svc spec.ServiceSpec
	if err := json.Unmarshal(b, &svc); err != nil {
		return spec.ServiceSpec{}, fmt.Errorf("decoding service spec: %w", err)
	}
	return svc, nil
}

func openStore(path string) (store.PersistentStore, func(), error) {
	if path == "" {
		return store.NewMemStore(), func() {}, nil
	}
	bs, err := store.NewBoltStore(path)
	if err != nil {
		return nil, nil, err
	}
	return bs, func() { _ = bs.Close() }, nil
}
