package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/takirala/dcos-commons/internal/mock"
	"github.com/takirala/dcos-commons/pkg/framework"
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/plan"
	"github.com/takirala/dcos-commons/pkg/spec"
	"github.com/takirala/dcos-commons/pkg/store"
)

func singlePodSpec() spec.ServiceSpec {
	return mock.ServiceSpec("svc", "p0", "svc-role", 1)
}

func newTestDeployScheduler(t *testing.T) (*DeployScheduler, *store.MemStore, *store.StateStore, *fakeDriver) {
	t.Helper()
	ps := store.NewMemStore()
	states, err := store.NewStateStore(ps, nil)
	require.NoError(t, err)
	configs := store.NewConfigStore(ps)
	frameworks := store.NewFrameworkStore(ps)
	drv := &fakeDriver{}

	ds, err := NewDeployScheduler(singlePodSpec(), Deps{
		Driver:     drv,
		PS:         ps,
		Frameworks: frameworks,
		States:     states,
		Configs:    configs,
		Role:       "svc-role",
		Principal:  "svc-principal",
	})
	require.NoError(t, err)
	return ds, ps, states, drv
}

func TestNewDeployScheduler_BuildsDeployAndRecoveryManagers(t *testing.T) {
	ds, _, _, _ := newTestDeployScheduler(t)
	names := map[string]bool{}
	for _, m := range ds.coordinator.Managers() {
		names[m.Name()] = true
	}
	require.True(t, names["deploy"])
	require.True(t, names["recovery"])
}

func TestDeployScheduler_Registered_PersistsFrameworkIDAndStartsReconciler(t *testing.T) {
	ds, ps, _, _ := newTestDeployScheduler(t)
	ds.Registered("fw-1", framework.MasterInfo{ID: "m1"}, false)

	v, err := ps.Get(store.FrameworkPath)
	require.NoError(t, err)
	require.Equal(t, "fw-1", string(v))

	require.NotNil(t, ds.reconciler.timer)
	ds.reconciler.Stop()
}

func TestDeployScheduler_Registered_Reregistration_SkipsFrameworkWork(t *testing.T) {
	ds, ps, _, _ := newTestDeployScheduler(t)
	ds.Registered("fw-1", framework.MasterInfo{ID: "m1"}, true)

	_, err := ps.Get(store.FrameworkPath)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeployScheduler_Registered_KillsAndNullsInactiveTasks(t *testing.T) {
	ds, _, states, drv := newTestDeployScheduler(t)
	// "stale-0-server" belongs to no pod in singlePodSpec and isn't being
	// decommissioned, so it is inactive.
	require.NoError(t, states.StoreTasks([]offer.TaskInfo{{Name: "stale-0-server", TaskID: "T9", PodName: "stale-0"}}))

	ds.Registered("fw-1", framework.MasterInfo{ID: "m1"}, false)
	defer ds.reconciler.Stop()

	require.Contains(t, drv.killedTasks(), "T9")
	got, err := states.FetchTask("stale-0-server")
	require.NoError(t, err)
	require.Equal(t, offer.EmptyTaskID, got.TaskID)
}

func TestDeployScheduler_Registered_KillsTaskWithPendingGoalOverride(t *testing.T) {
	ds, _, states, drv := newTestDeployScheduler(t)
	require.NoError(t, states.StoreTasks([]offer.TaskInfo{{Name: "p0-0-server", TaskID: "T1", PodName: "p0-0"}}))
	require.NoError(t, states.StoreGoalOverride("p0-0-server", offer.GoalOverride{Override: offer.OverrideStopped, Progress: offer.ProgressPending}))

	ds.Registered("fw-1", framework.MasterInfo{ID: "m1"}, false)
	defer ds.reconciler.Stop()

	require.Contains(t, drv.killedTasks(), "T1")
}

func TestDeployScheduler_StatusUpdate_UnknownTaskIDNotifiesReconciler(t *testing.T) {
	ds, _, _, _ := newTestDeployScheduler(t)
	ds.StatusUpdate(offer.TaskStatus{TaskID: "ghost", State: offer.TaskRunning})
	require.True(t, ds.reconciler.unknownSeen)
}

func TestDeployScheduler_StatusUpdate_FailedTaskTriggersRecovery(t *testing.T) {
	ds, _, states, _ := newTestDeployScheduler(t)
	require.NoError(t, states.StoreTasks([]offer.TaskInfo{{Name: "p0-0-server", TaskID: "T1", PodName: "p0-0"}}))

	ds.StatusUpdate(offer.TaskStatus{TaskID: "T1", State: offer.TaskFailed, Reason: "REASON_COMMAND_EXECUTOR_FAILED"})

	steps := ds.recovery.Plan().AllSteps()
	require.Len(t, steps, 1)
	require.Equal(t, "recover-p0-0-server", steps[0].Name)
}

func TestDeployScheduler_StatusUpdate_PermanentFailureReplacesReservation(t *testing.T) {
	ds, _, states, _ := newTestDeployScheduler(t)
	require.NoError(t, states.StoreTasks([]offer.TaskInfo{{Name: "p0-0-server", TaskID: "T1", PodName: "p0-0"}}))

	ds.StatusUpdate(offer.TaskStatus{TaskID: "T1", State: offer.TaskFailed, Reason: "REASON_TASK_INVALID"})

	steps := ds.recovery.Plan().AllSteps()
	require.Len(t, steps, 1)
	require.Equal(t, "replace-p0-0-server", steps[0].Name)

	got, err := states.FetchTask("p0-0-server")
	require.NoError(t, err)
	require.True(t, got.PermanentlyFailed)
}

func TestDeployScheduler_Decommission_KillUnreserveRemoveFlow(t *testing.T) {
	ds, _, states, drv := newTestDeployScheduler(t)
	require.NoError(t, states.StoreTasks([]offer.TaskInfo{{
		Name: "p0-0-server", TaskID: "T1", PodName: "p0-0",
		Resources: []offer.Resource{{Type: "cpus", Scalar: 1, Reservation: &offer.Reservation{ResourceID: "r1"}}},
	}}))

	ds.Decommission("p0-0")
	require.Contains(t, ds.decommMgrs, "p0-0")

	mgr := ds.decommMgrs["p0-0"]
	phases := mgr.Plan().Phases
	killStep := phases[0].Steps[0]
	require.NoError(t, killStep.Start())
	killStep.Tick()
	require.Equal(t, 1, len(drv.killedTasks()))
	require.Equal(t, "T1", drv.killedTasks()[0])

	got, err := states.FetchTask("p0-0-server")
	require.NoError(t, err)
	require.True(t, got.Decommissioning)

	unreserveStep := phases[1].Steps[0]
	require.NoError(t, unreserveStep.Start())
	unreserveStep.Tick()
	require.NotEqual(t, plan.StateComplete, unreserveStep.State(), "unreserve waits for the driver to confirm release")

	ds.ResourceReleased("r1")
	unreserveStep.Tick()
	require.Equal(t, plan.StateComplete, unreserveStep.State())

	removeStep := phases[2].Steps[0]
	require.NoError(t, removeStep.Start())
	removeStep.Tick()

	_, err = states.FetchTask("p0-0-server")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NotContains(t, ds.decommMgrs, "p0-0")
}

func TestDeployScheduler_UpdateConfig_NoopWhenUnchanged(t *testing.T) {
	ds, _, _, _ := newTestDeployScheduler(t)
	before := ds.deployment
	require.NoError(t, ds.UpdateConfig(singlePodSpec(), "1.0.0"))
	require.Same(t, before, ds.deployment)
}

func TestDeployScheduler_UpdateConfig_SwapsDeploymentPlanOnChange(t *testing.T) {
	ds, _, _, _ := newTestDeployScheduler(t)
	before := ds.deployment

	changed := singlePodSpec()
	changed.Pods[0].Count = 2

	require.NoError(t, ds.UpdateConfig(changed, "1.0.0"))
	require.NotSame(t, before, ds.deployment)

	id, err := ds.configs.GetTargetConfig()
	require.NoError(t, err)
	require.NotEmpty(t, id)

	names := map[string]bool{}
	for _, m := range ds.coordinator.Managers() {
		names[m.Name()] = true
	}
	require.True(t, names["deploy"])
	require.True(t, names["recovery"])
}

func TestDeployScheduler_RequestGoalOverride_SetsPending(t *testing.T) {
	ds, _, states, _ := newTestDeployScheduler(t)
	require.NoError(t, ds.RequestGoalOverride("p0-0-server", offer.OverridePaused))

	got, err := states.FetchGoalOverride("p0-0-server")
	require.NoError(t, err)
	require.Equal(t, offer.GoalOverride{Override: offer.OverridePaused, Progress: offer.ProgressPending}, got)
}

func TestDeployScheduler_RequestGoalOverride_RejectsSecondRequestWhileActive(t *testing.T) {
	ds, _, _, _ := newTestDeployScheduler(t)
	require.NoError(t, ds.RequestGoalOverride("p0-0-server", offer.OverridePaused))
	require.Error(t, ds.RequestGoalOverride("p0-0-server", offer.OverrideStopped))
}

func TestDeployScheduler_Registered_AdvancesPendingOverrideToInProgress(t *testing.T) {
	ds, _, states, _ := newTestDeployScheduler(t)
	require.NoError(t, states.StoreTasks([]offer.TaskInfo{{Name: "p0-0-server", TaskID: "T1", PodName: "p0-0"}}))
	require.NoError(t, ds.RequestGoalOverride("p0-0-server", offer.OverridePaused))

	ds.Registered("fw-1", framework.MasterInfo{ID: "m1"}, false)
	defer ds.reconciler.Stop()

	got, err := states.FetchGoalOverride("p0-0-server")
	require.NoError(t, err)
	require.Equal(t, offer.ProgressInProgress, got.Progress)
}

func TestDeployScheduler_StatusUpdate_PausedOverrideStoresModifiedCommand(t *testing.T) {
	ds, _, states, _ := newTestDeployScheduler(t)
	require.NoError(t, states.StoreTasks([]offer.TaskInfo{{Name: "p0-0-server", TaskID: "T1", PodName: "p0-0"}}))
	require.NoError(t, states.StoreGoalOverride("p0-0-server", offer.GoalOverride{Override: offer.OverridePaused, Progress: offer.ProgressInProgress}))

	ds.StatusUpdate(offer.TaskStatus{TaskID: "T1", State: offer.TaskKilled})

	got, err := states.FetchTask("p0-0-server")
	require.NoError(t, err)
	require.Equal(t, offer.EmptyTaskID, got.TaskID)
	require.Equal(t, offer.PausedCommand, got.Command)

	override, err := states.FetchGoalOverride("p0-0-server")
	require.NoError(t, err)
	require.Equal(t, offer.GoalOverride{Override: offer.OverridePaused, Progress: offer.ProgressComplete}, override)
}

func TestDeployScheduler_StatusUpdate_StoppedOverrideCompletesWithoutRelaunch(t *testing.T) {
	ds, _, states, _ := newTestDeployScheduler(t)
	require.NoError(t, states.StoreTasks([]offer.TaskInfo{{Name: "p0-0-server", TaskID: "T1", PodName: "p0-0"}}))
	require.NoError(t, states.StoreGoalOverride("p0-0-server", offer.GoalOverride{Override: offer.OverrideStopped, Progress: offer.ProgressInProgress}))

	ds.StatusUpdate(offer.TaskStatus{TaskID: "T1", State: offer.TaskKilled})

	got, err := states.FetchTask("p0-0-server")
	require.NoError(t, err)
	require.Equal(t, "T1", got.TaskID, "STOPPED carries no relaunch, TaskInfo is left untouched")

	override, err := states.FetchGoalOverride("p0-0-server")
	require.NoError(t, err)
	require.Equal(t, offer.ProgressComplete, override.Progress)
}

func TestDeployScheduler_ClearGoalOverride_ReturnsToNone(t *testing.T) {
	ds, _, states, _ := newTestDeployScheduler(t)
	require.NoError(t, states.StoreGoalOverride("p0-0-server", offer.GoalOverride{Override: offer.OverridePaused, Progress: offer.ProgressComplete}))

	require.NoError(t, ds.ClearGoalOverride("p0-0-server"))

	got, err := states.FetchGoalOverride("p0-0-server")
	require.NoError(t, err)
	require.Equal(t, offer.GoalOverride{Override: offer.OverrideNone, Progress: offer.ProgressComplete}, got)
}

func TestDeployScheduler_ToUninstallScheduler_StopsReconciler(t *testing.T) {
	ds, _, _, _ := newTestDeployScheduler(t)
	ds.Registered("fw-1", framework.MasterInfo{ID: "m1"}, false)

	us, err := ds.ToUninstallScheduler(noopSecrets{})
	require.NoError(t, err)
	require.NotNil(t, us)
	require.Nil(t, ds.reconciler.timer)
}

type noopSecrets struct{}

func (noopSecrets) DeleteSecrets(serviceName string) error { return nil }
