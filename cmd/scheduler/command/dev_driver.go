package command

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/takirala/dcos-commons/pkg/framework"
	"github.com/takirala/dcos-commons/pkg/offer"
)

// devDriver is a logging-only stand-in for the real master-driver binding,
// which is out of scope for this module (spec.md Sec 1: "the master driver
// RPC library itself is out of scope"). It lets `scheduler run`/`scheduler
// uninstall` exercise the full persistence/plan/evaluator pipeline locally
// without a live cluster; it never produces real offers on its own.
type devDriver struct {
	logger       hclog.Logger
	disconnected chan struct{}
	fatalErr     chan struct{}
}

func newDevDriver(logger hclog.Logger) *devDriver {
	return &devDriver{
		logger:       logger.Named("dev-driver"),
		disconnected: make(chan struct{}),
		fatalErr:     make(chan struct{}),
	}
}

// registered simulates the master's initial registered() callback so a
// local run reaches steady state and begins reconciling/persisting.
func (d *devDriver) registered(fw *framework.FrameworkScheduler) {
	fw.Registered("dev-framework-id", framework.MasterInfo{ID: "dev-master"})
}

func (d *devDriver) AcceptOffers(offerIDs []string, ops []framework.Operation, filters framework.Filters) error {
	d.logger.Info("accept offers", "offers", offerIDs, "operations", len(ops))
	return nil
}

func (d *devDriver) DeclineOffer(offerID string, filters framework.Filters) error {
	d.logger.Debug("decline offer", "offer", offerID)
	return nil
}

func (d *devDriver) KillTask(taskID string) error {
	d.logger.Info("kill task", "task_id", taskID)
	return nil
}

func (d *devDriver) ReconcileTasks(statuses []offer.TaskStatus) error {
	d.logger.Debug("reconcile tasks", "count", len(statuses))
	return nil
}

func (d *devDriver) Stop(failover bool) error {
	d.logger.Info("driver stop", "failover", failover)
	return nil
}
