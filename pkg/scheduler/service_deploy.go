package scheduler

import (
	"fmt"
	"strings"
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/framework"
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/plan"
	"github.com/takirala/dcos-commons/pkg/spec"
	"github.com/takirala/dcos-commons/pkg/store"
)

// DeployScheduler assembles PersistentStore/StateStore/ConfigStore,
// PlanCoordinator, PlanScheduler, and ImplicitReconciler for normal
// operation, and routes master callbacks to them (spec.md Sec 4.10).
type DeployScheduler struct {
	logger hclog.Logger
	driver framework.Driver

	ps         store.PersistentStore
	frameworks *store.FrameworkStore
	states     *store.StateStore
	configs    *store.ConfigStore

	coordinator *PlanCoordinator
	planSched   *PlanScheduler
	reconciler  *ImplicitReconciler
	evaluator   *evaluator.Evaluator

	mu          sync.Mutex
	svc         spec.ServiceSpec
	deployment  *plan.DeploymentManager
	recovery    *plan.RecoveryManager
	decommMgrs  map[string]*plan.DecommissionManager
}

// Deps bundles the stores and driver a DeployScheduler is constructed
// with; every field except Logger (nil means no logging) is required.
type Deps struct {
	Driver     framework.Driver
	PS         store.PersistentStore
	Frameworks *store.FrameworkStore
	States     *store.StateStore
	Configs    *store.ConfigStore
	Logger     hclog.Logger
	Role       string
	Principal  string
}

// NewDeployScheduler constructs a DeployScheduler targeting svc. It does
// not itself persist svc as the target config; callers do that via
// ConfigStore before constructing, or via UpdateConfig after.
func NewDeployScheduler(svc spec.ServiceSpec, deps Deps) (*DeployScheduler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("service-scheduler")

	ds := &DeployScheduler{
		logger:     logger,
		driver:     deps.Driver,
		ps:         deps.PS,
		frameworks: deps.Frameworks,
		states:     deps.States,
		configs:    deps.Configs,
		svc:        svc,
		decommMgrs: make(map[string]*plan.DecommissionManager),
	}
	ds.evaluator = evaluator.NewEvaluator(deps.Role, deps.Principal, evaluator.NewOutcomeTracker(200))
	recorder := NewLaunchRecorder(deps.States, logger)
	ds.planSched = NewPlanScheduler(ds.evaluator, recorder, logger)
	ds.reconciler = NewImplicitReconciler(deps.Driver, deps.States, logger)

	deployMgr, err := plan.NewDeploymentManager(svc, "deploy", ds.lookupTask)
	if err != nil {
		return nil, fmt.Errorf("service scheduler: building deployment plan: %w", err)
	}
	ds.deployment = deployMgr
	ds.recovery = plan.NewRecoveryManager(svc, ds.lookupTask)
	ds.coordinator = NewPlanCoordinator(ds.deployment, ds.recovery)
	return ds, nil
}

func (ds *DeployScheduler) lookupTask(name string) (offer.TaskInfo, bool) {
	info, err := ds.states.FetchTask(name)
	if err != nil {
		return offer.TaskInfo{}, false
	}
	return info, true
}

// activeTaskNames is the union of launchable task names across every plan
// plus tasks currently being decommissioned (spec.md Sec 4.10 step 2).
func (ds *DeployScheduler) activeTaskNames() map[string]bool {
	active := map[string]bool{}
	for _, pod := range ds.svc.Pods {
		for i := 0; i < pod.Count; i++ {
			podInstance := spec.PodInstanceName(pod.Type, i)
			for _, t := range pod.Tasks {
				active[fmt.Sprintf("%s-%s", podInstance, t.Name)] = true
			}
		}
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for podInstance := range ds.decommMgrs {
		tasks, _ := ds.states.FetchTasks()
		for _, t := range tasks {
			if t.PodName == podInstance {
				active[t.Name] = true
			}
		}
	}
	return active
}

// Registered implements framework.RegistrationHandler.
func (ds *DeployScheduler) Registered(frameworkID string, master framework.MasterInfo, reregistered bool) {
	if reregistered {
		ds.logger.Info("reregistered with master", "framework_id", frameworkID)
		return
	}
	ds.logger.Info("registered with master", "framework_id", frameworkID)
	if frameworkID != "" {
		if err := ds.frameworks.StoreFrameworkID(frameworkID); err != nil {
			ds.logger.Error("failed to persist framework id", "error", err)
		}
	}

	active := ds.activeTaskNames()
	tasks, err := ds.states.FetchTasks()
	if err != nil {
		ds.logger.Error("failed to fetch tasks during registration", "error", err)
		tasks = nil
	}
	for _, t := range tasks {
		if !active[t.Name] {
			killID := t.TaskID
			t.TaskID = offer.EmptyTaskID
			if err := ds.states.StoreTasks([]offer.TaskInfo{t}); err != nil {
				ds.logger.Error("failed to null task-id for inactive task", "task", t.Name, "error", err)
				continue
			}
			if killID != offer.EmptyTaskID {
				if err := ds.driver.KillTask(killID); err != nil {
					ds.logger.Error("failed to kill inactive task", "task", t.Name, "error", err)
				}
			}
			continue
		}
		goalOverride, err := ds.states.FetchGoalOverride(t.Name)
		if err == nil && goalOverride.Progress == offer.ProgressPending && t.TaskID != offer.EmptyTaskID {
			inProgress, err := offer.Next(goalOverride, offer.EventBeginWork, "")
			if err != nil {
				ds.logger.Error("failed to advance goal override to in-progress", "task", t.Name, "error", err)
			} else if err := ds.states.StoreGoalOverride(t.Name, inProgress); err != nil {
				ds.logger.Error("failed to persist in-progress goal override", "task", t.Name, "error", err)
			}
			if err := ds.driver.KillTask(t.TaskID); err != nil {
				ds.logger.Error("failed to kill task for pending goal override", "task", t.Name, "error", err)
			}
		}
	}
	ds.reconciler.Start()
}

// StatusUpdate implements framework.StatusHandler.
func (ds *DeployScheduler) StatusUpdate(status offer.TaskStatus) {
	if err := ds.states.StoreStatus(status); err != nil {
		if store.IsUnknownTaskID(err) {
			ds.reconciler.NotifyUnknownTask()
			return
		}
		ds.logger.Warn("dropping status update", "task_id", status.TaskID, "error", err)
		return
	}

	tasks, err := ds.states.FetchTasks()
	if err != nil {
		ds.logger.Error("failed to fetch tasks applying status", "error", err)
		return
	}
	var matched *offer.TaskInfo
	for i := range tasks {
		if tasks[i].TaskID == status.TaskID {
			matched = &tasks[i]
			break
		}
	}
	if matched == nil {
		ds.reconciler.NotifyUnknownTask()
		return
	}

	for _, m := range ds.coordinator.Managers() {
		for _, s := range m.Plan().AllSteps() {
			s.UpdateStatus(matched.Name, status)
		}
	}

	if status.IsPermanentFailure() && !matched.PermanentlyFailed {
		matched.PermanentlyFailed = true
		if err := ds.states.StoreTasks([]offer.TaskInfo{*matched}); err != nil {
			ds.logger.Error("failed to mark task permanently failed", "task", matched.Name, "error", err)
		}
		ds.triggerRecovery(*matched, true)
	} else if status.State == offer.TaskFailed || status.State == offer.TaskLost {
		ds.triggerRecovery(*matched, false)
	}

	if status.State.IsTerminal() {
		ds.advanceGoalOverride(*matched)
	}
}

// advanceGoalOverride completes an in-progress goal override once its kill
// has been confirmed. For PAUSED it also rewrites the stored TaskInfo: its
// Command becomes offer.PausedCommand and its TaskID is cleared. No
// relaunch is started here, and the evaluator does not copy a stored
// Command into the TaskInfo it launches.
func (ds *DeployScheduler) advanceGoalOverride(t offer.TaskInfo) {
	goalOverride, err := ds.states.FetchGoalOverride(t.Name)
	if err != nil || goalOverride.Progress != offer.ProgressInProgress {
		return
	}
	complete, err := offer.Next(goalOverride, offer.EventWorkComplete, "")
	if err != nil {
		ds.logger.Error("failed to advance goal override to complete", "task", t.Name, "error", err)
		return
	}
	if err := ds.states.StoreGoalOverride(t.Name, complete); err != nil {
		ds.logger.Error("failed to persist complete goal override", "task", t.Name, "error", err)
		return
	}
	if complete.Override == offer.OverridePaused {
		t.TaskID = offer.EmptyTaskID
		t.Command = offer.PausedCommand
		if err := ds.states.StoreTasks([]offer.TaskInfo{t}); err != nil {
			ds.logger.Error("failed to queue relaunch under paused command", "task", t.Name, "error", err)
		}
	}
}

func (ds *DeployScheduler) triggerRecovery(t offer.TaskInfo, permanent bool) {
	podType, taskKind, ok := splitPodInstanceTask(t.Name)
	if !ok {
		return
	}
	if _, err := ds.recovery.HandleFailure(t.Name, t.PodName, podType, taskKind, permanent); err != nil {
		ds.logger.Error("failed to start recovery", "task", t.Name, "error", err)
	}
}

// splitPodInstanceTask splits "podtype-index-taskname" into (podtype,
// taskname). Task names are generated as fmt.Sprintf("%s-%s",
// podInstance, t.Name) where podInstance is "podtype-index". The split
// takes the first "-" as the end of the pod type; nothing validates this,
// so a pod type containing "-" is split wrongly.
func splitPodInstanceTask(taskName string) (podType, taskKind string, ok bool) {
	parts := strings.SplitN(taskName, "-", 3)
	if len(parts) != 3 {
		return "", "", false
	}
	return parts[0], parts[2], true
}

// Status implements framework.EventClient.
func (ds *DeployScheduler) Status() framework.ClientStatus {
	return framework.StatusRunning
}

// Offers implements framework.EventClient.
func (ds *DeployScheduler) Offers(batch []offer.Offer) framework.OfferResponse {
	steps := ds.coordinator.EligibleSteps()
	res, err := ds.planSched.Run(steps, batch)
	if err != nil {
		ds.logger.Error("plan scheduler run failed", "error", err)
		return framework.OfferResponse{Result: framework.NotReady}
	}
	return framework.OfferResponse{Result: framework.Processed, Recommendations: res.Accepted}
}

// UnexpectedResources implements framework.EventClient: reserved
// resources whose ids are not referenced by any non-permanently-failed,
// non-decommissioning TaskInfo (spec.md Sec 4.10).
func (ds *DeployScheduler) UnexpectedResources(unused []offer.Offer) []evaluator.Recommendation {
	tasks, err := ds.states.FetchTasks()
	if err != nil {
		ds.logger.Error("failed to fetch tasks computing unexpected resources", "error", err)
		return nil
	}
	referenced := map[string]bool{}
	for _, t := range tasks {
		if t.PermanentlyFailed || t.Decommissioning {
			continue
		}
		for _, id := range t.ResourceIDs() {
			referenced[id] = true
		}
	}
	var recs []evaluator.Recommendation
	for _, o := range unused {
		for _, r := range o.Resources {
			id := r.ReservationID()
			if id == "" || referenced[id] {
				continue
			}
			recs = append(recs, evaluator.Recommendation{Kind: evaluator.KindUnreserve, OfferID: o.ID, AgentID: o.AgentID, Resource: r})
			if r.Volume != nil {
				recs = append(recs, evaluator.Recommendation{Kind: evaluator.KindDestroyVolume, OfferID: o.ID, AgentID: o.AgentID, Resource: r, Volume: r.Volume})
			}
		}
	}
	return recs
}

// Unregistered implements framework.EventClient. DeployScheduler never
// enters the Uninstalled client status, so this is never called in
// practice; present to satisfy the interface.
func (ds *DeployScheduler) Unregistered() {}

// ResourceReleased implements framework.ResourceReleaseNotifier: it is
// called once the driver has actually accepted an Unreserve/Destroy for
// resourceID, which in practice always arrives via UnexpectedResources
// (the evaluator itself never emits those kinds). Every active
// decommission manager is told, since any of them may be waiting on this
// id; steps are then re-ticked so a now-satisfied unreserve step can
// advance toward remove.
func (ds *DeployScheduler) ResourceReleased(resourceID string) {
	ds.mu.Lock()
	mgrs := make([]*plan.DecommissionManager, 0, len(ds.decommMgrs))
	for _, m := range ds.decommMgrs {
		mgrs = append(mgrs, m)
	}
	ds.mu.Unlock()
	for _, m := range mgrs {
		m.ResourceReleased(resourceID)
	}
	advanceDecommissionSteps(mgrs)
}

// Decommission begins tearing down podInstance: registers a
// DecommissionManager with the coordinator and marks its TaskInfo so
// UnexpectedResources and activeTaskNames stop treating it as live.
func (ds *DeployScheduler) Decommission(podInstance string) {
	hooks := plan.DecommissionHooks{
		Kill: func(pod string) error {
			tasks, err := ds.states.FetchTasks()
			if err != nil {
				return err
			}
			var merr error
			for _, t := range tasks {
				if t.PodName != pod || t.TaskID == offer.EmptyTaskID {
					continue
				}
				t.Decommissioning = true
				if err := ds.states.StoreTasks([]offer.TaskInfo{t}); err != nil {
					merr = err
					continue
				}
				if err := ds.driver.KillTask(t.TaskID); err != nil {
					merr = err
				}
			}
			return merr
		},
		Unreserve: func(pod string) ([]evaluator.Recommendation, error) {
			tasks, err := ds.states.FetchTasks()
			if err != nil {
				return nil, err
			}
			var recs []evaluator.Recommendation
			for _, t := range tasks {
				if t.PodName != pod {
					continue
				}
				recs = append(recs, evaluator.UnreserveRecommendations(t, "", "")...)
			}
			return recs, nil
		},
		Remove: func(pod string) error {
			tasks, err := ds.states.FetchTasks()
			if err != nil {
				return err
			}
			for _, t := range tasks {
				if t.PodName == pod {
					if err := ds.states.ClearTask(t.Name); err != nil {
						return err
					}
				}
			}
			ds.mu.Lock()
			delete(ds.decommMgrs, pod)
			ds.mu.Unlock()
			ds.coordinator.RemoveManager(fmt.Sprintf("decommission-%s", pod))
			return nil
		},
	}
	mgr := plan.NewDecommissionManager(podInstance, hooks)
	ds.mu.Lock()
	ds.decommMgrs[podInstance] = mgr
	ds.mu.Unlock()
	ds.coordinator.AddManager(mgr)
}

// RequestGoalOverride requests target (PAUSED, STOPPED or DECOMMISSIONING) as taskName's
// goal override, moving it to PENDING so the next Registered pass kills the
// task and lets the override take effect on relaunch (spec.md Sec 3, Sec
// 4.10 step 4). Fails if an override is already active and incomplete.
func (ds *DeployScheduler) RequestGoalOverride(taskName string, target offer.Override) error {
	current, err := ds.states.FetchGoalOverride(taskName)
	if err != nil {
		return fmt.Errorf("service scheduler: fetching goal override for %q: %w", taskName, err)
	}
	pending, err := offer.Next(current, offer.EventRequestOverride, target)
	if err != nil {
		return fmt.Errorf("service scheduler: requesting override %s for %q: %w", target, taskName, err)
	}
	return ds.states.StoreGoalOverride(taskName, pending)
}

// ClearGoalOverride releases a completed PAUSED/STOPPED override, returning
// the task to its default goal.
func (ds *DeployScheduler) ClearGoalOverride(taskName string) error {
	current, err := ds.states.FetchGoalOverride(taskName)
	if err != nil {
		return fmt.Errorf("service scheduler: fetching goal override for %q: %w", taskName, err)
	}
	cleared, err := offer.Next(current, offer.EventClearOverride, "")
	if err != nil {
		return fmt.Errorf("service scheduler: clearing override for %q: %w", taskName, err)
	}
	return ds.states.StoreGoalOverride(taskName, cleared)
}

// UpdateConfig persists spec as a new config version, sets it as target,
// and replaces the deployment plan manager with a fresh one built from it
// — "restart-on-spec-change is effected by advancing a new plan generated
// from the new target config" (spec.md Sec 4.8). Only takes effect if
// spec's identity hash differs from the currently-active spec's.
func (ds *DeployScheduler) UpdateConfig(newSvc spec.ServiceSpec, schedulerVersion string) error {
	ds.mu.Lock()
	unchanged := newSvc.IdentityHash() == ds.svc.IdentityHash()
	ds.mu.Unlock()
	if unchanged {
		return nil
	}
	raw, err := spec.Marshal(newSvc)
	if err != nil {
		return fmt.Errorf("service scheduler: encoding new config: %w", err)
	}
	id, err := ds.configs.Store(store.RawSpec(raw))
	if err != nil {
		return fmt.Errorf("service scheduler: storing new config: %w", err)
	}
	if err := ds.configs.SetTargetConfig(id, schedulerVersion, newSvc.MinSchedulerVersion); err != nil {
		return err
	}
	deployMgr, err := plan.NewDeploymentManager(newSvc, "deploy", ds.lookupTask)
	if err != nil {
		return fmt.Errorf("service scheduler: building deployment plan for new config: %w", err)
	}
	ds.mu.Lock()
	ds.svc = newSvc
	ds.deployment = deployMgr
	ds.mu.Unlock()
	ds.coordinator.RemoveManager("deploy")
	ds.coordinator.AddManager(deployMgr)
	return nil
}

// ToUninstallScheduler hands off to uninstall mode in-process, sharing the
// same stores (spec.md Sec 4.11).
func (ds *DeployScheduler) ToUninstallScheduler(secrets SecretsDeleter) (*UninstallScheduler, error) {
	ds.reconciler.Stop()
	for _, m := range ds.coordinator.Managers() {
		m.Interrupt()
	}
	return NewUninstallScheduler(UninstallDeps{
		Driver:     ds.driver,
		PS:         ds.ps,
		Frameworks: ds.frameworks,
		States:     ds.states,
		Secrets:    secrets,
		Logger:     ds.logger,
	})
}
