package scheduler

import (
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/takirala/dcos-commons/pkg/framework"
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/store"
)

const (
	reconcileBackoffBaseline = 1 * time.Second
	reconcileBackoffLimit    = 1 * time.Hour
)

// ImplicitReconciler periodically asks the driver to reconcile all known
// tasks, forcing the master to re-send statuses for anything the scheduler
// may have missed (spec.md Sec 4.12). It stops reconciling once a full
// cycle passes with no unknown-task responses, and resumes if a later
// cycle does see one (e.g. after a master election).
type ImplicitReconciler struct {
	logger hclog.Logger
	driver framework.Driver
	states *store.StateStore

	mu       sync.Mutex
	backoff  time.Duration
	stopped  bool
	timer    *time.Timer
	unknownSeen bool
}

// NewImplicitReconciler constructs an ImplicitReconciler.
func NewImplicitReconciler(driver framework.Driver, states *store.StateStore, logger hclog.Logger) *ImplicitReconciler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ImplicitReconciler{
		logger:  logger.Named("implicit-reconciler"),
		driver:  driver,
		states:  states,
		backoff: reconcileBackoffBaseline,
	}
}

// Start begins the reconcile schedule. Call Stop to halt it (e.g. on
// process shutdown).
func (r *ImplicitReconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		return
	}
	r.timer = time.AfterFunc(0, r.tick)
}

// Stop halts the reconcile schedule.
func (r *ImplicitReconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *ImplicitReconciler) tick() {
	tasks, err := r.states.FetchTasks()
	if err != nil {
		r.logger.Error("failed to fetch tasks for reconciliation", "error", err)
		r.reschedule()
		return
	}
	var statuses []offer.TaskStatus
	for _, t := range tasks {
		if t.IsReservationOnly() {
			continue
		}
		statuses = append(statuses, offer.TaskStatus{TaskID: t.TaskID})
	}
	if len(statuses) > 0 {
		if err := r.driver.ReconcileTasks(statuses); err != nil {
			r.logger.Error("reconcile request failed", "error", err)
		}
	}
	r.reschedule()
}

// NotifyUnknownTask is called by the ServiceScheduler when a status update
// or kill response indicates the master has no record of a task-id this
// scheduler believes exists. It resets the backoff to the baseline so
// reconciliation resumes at full frequency.
func (r *ImplicitReconciler) NotifyUnknownTask() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unknownSeen = true
	r.backoff = reconcileBackoffBaseline
	if r.stopped && r.timer != nil {
		r.stopped = false
		r.timer.Reset(r.backoff)
	}
}

func (r *ImplicitReconciler) reschedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer == nil {
		return // Stop() was called mid-tick.
	}
	if !r.unknownSeen && r.backoff >= reconcileBackoffLimit {
		// A full cycle at the backoff ceiling with no unknown-task
		// responses: stop reconciling until NotifyUnknownTask fires
		// again.
		r.stopped = true
		return
	}
	r.unknownSeen = false
	r.backoff *= 2
	if r.backoff > reconcileBackoffLimit {
		r.backoff = reconcileBackoffLimit
	}
	r.timer.Reset(r.backoff)
}
