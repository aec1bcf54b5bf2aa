package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/takirala/dcos-commons/internal/mock"
	"github.com/takirala/dcos-commons/pkg/framework"
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/store"
)

// fakeDriver is a framework.Driver used across this package's tests.
// reconciled, when non-nil, receives every ReconcileTasks call; killed
// records every KillTask call.
type fakeDriver struct {
	mu         sync.Mutex
	reconciled chan []offer.TaskStatus
	killed     []string
	stopped    bool
}

func (d *fakeDriver) AcceptOffers([]string, []framework.Operation, framework.Filters) error { return nil }
func (d *fakeDriver) DeclineOffer(string, framework.Filters) error                          { return nil }
func (d *fakeDriver) KillTask(taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.killed = append(d.killed, taskID)
	return nil
}
func (d *fakeDriver) Stop(bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}
func (d *fakeDriver) ReconcileTasks(statuses []offer.TaskStatus) error {
	if d.reconciled != nil {
		d.reconciled <- statuses
	}
	return nil
}

func (d *fakeDriver) killedTasks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.killed...)
}

func TestImplicitReconciler_Start_FiresImmediateTick(t *testing.T) {
	ps := store.NewMemStore()
	states, err := store.NewStateStore(ps, nil)
	require.NoError(t, err)
	info := mock.TaskInfo("p0-0", "svc-role", "svc-principal")
	require.NoError(t, states.StoreTasks([]offer.TaskInfo{info}))

	drv := &fakeDriver{reconciled: make(chan []offer.TaskStatus, 4)}
	r := NewImplicitReconciler(drv, states, nil)
	r.Start()
	defer r.Stop()

	select {
	case statuses := <-drv.reconciled:
		require.Len(t, statuses, 1)
		require.Equal(t, info.TaskID, statuses[0].TaskID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected ReconcileTasks to be called after Start")
	}
}

func TestImplicitReconciler_Tick_SkipsReservationOnlyTasks(t *testing.T) {
	ps := store.NewMemStore()
	states, err := store.NewStateStore(ps, nil)
	require.NoError(t, err)
	require.NoError(t, states.StoreTasks([]offer.TaskInfo{{Name: "p0-0-server", TaskID: offer.EmptyTaskID}}))

	drv := &fakeDriver{reconciled: make(chan []offer.TaskStatus, 4)}
	r := NewImplicitReconciler(drv, states, nil)
	r.tick()

	select {
	case <-drv.reconciled:
		t.Fatal("reservation-only task should not trigger a reconcile call")
	default:
	}
}

func TestImplicitReconciler_Reschedule_StopsAtBackoffCeilingWithNoUnknowns(t *testing.T) {
	ps := store.NewMemStore()
	states, err := store.NewStateStore(ps, nil)
	require.NoError(t, err)
	drv := &fakeDriver{reconciled: make(chan []offer.TaskStatus, 4)}
	r := NewImplicitReconciler(drv, states, nil)

	r.timer = time.NewTimer(time.Hour)
	defer r.Stop()
	r.backoff = reconcileBackoffLimit
	r.unknownSeen = false

	r.reschedule()
	require.True(t, r.stopped)
}

func TestImplicitReconciler_NotifyUnknownTask_ResumesStoppedReconciler(t *testing.T) {
	ps := store.NewMemStore()
	states, err := store.NewStateStore(ps, nil)
	require.NoError(t, err)
	drv := &fakeDriver{reconciled: make(chan []offer.TaskStatus, 4)}
	r := NewImplicitReconciler(drv, states, nil)

	r.timer = time.NewTimer(time.Hour)
	defer r.Stop()
	r.backoff = reconcileBackoffLimit
	r.stopped = true

	r.NotifyUnknownTask()
	require.False(t, r.stopped)
	require.Equal(t, reconcileBackoffBaseline, r.backoff)
}
