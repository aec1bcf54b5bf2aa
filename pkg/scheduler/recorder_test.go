package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/store"
)

func TestLaunchRecorder_PersistsBeforeSending(t *testing.T) {
	ps := store.NewMemStore()
	states, err := store.NewStateStore(ps, nil)
	require.NoError(t, err)
	r := NewLaunchRecorder(states, nil)

	recs := []evaluator.Recommendation{
		{Kind: evaluator.KindLaunch, ShouldLaunch: true, TaskInfo: offer.TaskInfo{Name: "p0-0-server", TaskID: "T1"}},
	}
	toSend, err := r.Record(recs)
	require.NoError(t, err)
	require.Len(t, toSend, 1)

	got, err := states.FetchTask("p0-0-server")
	require.NoError(t, err)
	require.Equal(t, "T1", got.TaskID)
}

func TestLaunchRecorder_DropsLaunchesWithShouldLaunchFalse(t *testing.T) {
	ps := store.NewMemStore()
	states, err := store.NewStateStore(ps, nil)
	require.NoError(t, err)
	r := NewLaunchRecorder(states, nil)

	recs := []evaluator.Recommendation{
		{Kind: evaluator.KindLaunch, ShouldLaunch: false, TaskInfo: offer.TaskInfo{Name: "p0-0-server", TaskID: "T1"}},
		{Kind: evaluator.KindReserve},
	}
	toSend, err := r.Record(recs)
	require.NoError(t, err)
	require.Len(t, toSend, 1)
	require.Equal(t, evaluator.KindReserve, toSend[0].Kind)

	_, err = states.FetchTask("p0-0-server")
	require.ErrorIs(t, err, store.ErrNotFound)
}
