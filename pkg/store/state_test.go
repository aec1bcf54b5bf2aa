package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/takirala/dcos-commons/pkg/offer"
)

func TestStateStore_StoreAndFetchTask(t *testing.T) {
	ps := NewMemStore()
	s, err := NewStateStore(ps, nil)
	require.NoError(t, err)

	task := offer.TaskInfo{Name: "p0-0-server", TaskID: "T1", PodName: "p0-0"}
	require.NoError(t, s.StoreTasks([]offer.TaskInfo{task}))

	got, err := s.FetchTask("p0-0-server")
	require.NoError(t, err)
	require.Equal(t, task, got)

	all, err := s.FetchTasks()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestStateStore_StoreStatus_RefusesTerminalToNonTerminal(t *testing.T) {
	ps := NewMemStore()
	s, err := NewStateStore(ps, nil)
	require.NoError(t, err)

	task := offer.TaskInfo{Name: "p0-0-server", TaskID: "T1", PodName: "p0-0"}
	require.NoError(t, s.StoreTasks([]offer.TaskInfo{task}))

	require.NoError(t, s.StoreStatus(offer.TaskStatus{TaskID: "T1", State: offer.TaskFinished}))
	err = s.StoreStatus(offer.TaskStatus{TaskID: "T1", State: offer.TaskRunning})
	require.Error(t, err)
	require.IsType(t, &StateStoreError{}, err)
}

func TestStateStore_StoreStatus_UnknownTaskID(t *testing.T) {
	ps := NewMemStore()
	s, err := NewStateStore(ps, nil)
	require.NoError(t, err)

	err = s.StoreStatus(offer.TaskStatus{TaskID: "ghost", State: offer.TaskRunning})
	require.Error(t, err)
}

func TestStateStore_RebuildsIndexFromPersistentStore(t *testing.T) {
	ps := NewMemStore()
	s1, err := NewStateStore(ps, nil)
	require.NoError(t, err)
	task := offer.TaskInfo{Name: "p0-0-server", TaskID: "T1", PodName: "p0-0"}
	require.NoError(t, s1.StoreTasks([]offer.TaskInfo{task}))

	s2, err := NewStateStore(ps, nil)
	require.NoError(t, err)
	require.NoError(t, s2.StoreStatus(offer.TaskStatus{TaskID: "T1", State: offer.TaskRunning}))
}

func TestStateStore_GoalOverride_DefaultsToNoneComplete(t *testing.T) {
	ps := NewMemStore()
	s, err := NewStateStore(ps, nil)
	require.NoError(t, err)

	g, err := s.FetchGoalOverride("p0-0-server")
	require.NoError(t, err)
	require.Equal(t, offer.GoalOverride{Override: offer.OverrideNone, Progress: offer.ProgressComplete}, g)

	require.NoError(t, s.StoreGoalOverride("p0-0-server", offer.GoalOverride{Override: offer.OverrideStopped, Progress: offer.ProgressPending}))
	g, err = s.FetchGoalOverride("p0-0-server")
	require.NoError(t, err)
	require.Equal(t, offer.OverrideStopped, g.Override)
}

func TestStateStore_ClearTask(t *testing.T) {
	ps := NewMemStore()
	s, err := NewStateStore(ps, nil)
	require.NoError(t, err)

	task := offer.TaskInfo{Name: "p0-0-server", TaskID: "T1", PodName: "p0-0"}
	require.NoError(t, s.StoreTasks([]offer.TaskInfo{task}))
	require.NoError(t, s.ClearTask("p0-0-server"))

	_, err = s.FetchTask("p0-0-server")
	require.ErrorIs(t, err, ErrNotFound)
}
