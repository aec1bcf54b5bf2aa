package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/plan"
	"github.com/takirala/dcos-commons/pkg/spec"
	"github.com/takirala/dcos-commons/pkg/store"
)

func launchStep(name, podInstance, taskName string) *plan.Step {
	return plan.NewStep(name, podInstance, func(plan.State) bool { return false }, nil,
		func() (*evaluator.PodInstanceRequirement, error) {
			return &evaluator.PodInstanceRequirement{
				PodType:      podInstance,
				ShouldLaunch: true,
				Tasks: []evaluator.TaskRequirement{{
					TaskName:  taskName,
					Resources: []spec.ResourceRequirement{{Type: "cpus", Role: "svc-role", Scalar: 1}},
				}},
			}, nil
		})
}

func cpuOffer(id string, cpus float64) offer.Offer {
	return offer.Offer{
		ID:      id,
		AgentID: "agent-" + id,
		Resources: []offer.Resource{
			{Type: "cpus", Scalar: cpus, Role: "svc-role"},
		},
	}
}

func TestPlanScheduler_Run_AcceptsOfferAndMovesStepToStarting(t *testing.T) {
	step := launchStep("launch-p0-0", "p0-0", "p0-0-server")
	ps := store.NewMemStore()
	states, err := store.NewStateStore(ps, nil)
	require.NoError(t, err)

	eval := evaluator.NewEvaluator("svc-role", "svc-principal", nil)
	recorder := NewLaunchRecorder(states, nil)
	sched := NewPlanScheduler(eval, recorder, nil)

	res, err := sched.Run([]*plan.Step{step}, []offer.Offer{cpuOffer("o1", 2)})
	require.NoError(t, err)
	require.NotEmpty(t, res.Accepted)
	require.True(t, res.ConsumedIDs["o1"])
	require.Equal(t, plan.StateStarting, step.State())

	_, err = states.FetchTask("p0-0-server")
	require.NoError(t, err)
}

func TestPlanScheduler_Run_TwoStepsDoNotConsumeSameOffer(t *testing.T) {
	stepA := launchStep("launch-p0-0", "p0-0", "p0-0-server")
	stepB := launchStep("launch-p0-1", "p0-1", "p0-1-server")
	ps := store.NewMemStore()
	states, err := store.NewStateStore(ps, nil)
	require.NoError(t, err)

	eval := evaluator.NewEvaluator("svc-role", "svc-principal", nil)
	recorder := NewLaunchRecorder(states, nil)
	sched := NewPlanScheduler(eval, recorder, nil)

	res, err := sched.Run([]*plan.Step{stepA, stepB}, []offer.Offer{cpuOffer("o1", 1)})
	require.NoError(t, err)
	require.Equal(t, plan.StateStarting, stepA.State())
	require.Equal(t, plan.StatePrepared, stepB.State(), "second step has no offer left to consume")
	require.Len(t, res.ConsumedIDs, 1)
}

func TestPlanScheduler_Run_NoMatchingOfferLeavesStepPrepared(t *testing.T) {
	step := launchStep("launch-p0-0", "p0-0", "p0-0-server")
	ps := store.NewMemStore()
	states, err := store.NewStateStore(ps, nil)
	require.NoError(t, err)

	eval := evaluator.NewEvaluator("svc-role", "svc-principal", nil)
	recorder := NewLaunchRecorder(states, nil)
	sched := NewPlanScheduler(eval, recorder, nil)

	res, err := sched.Run([]*plan.Step{step}, []offer.Offer{cpuOffer("o1", 0.1)})
	require.NoError(t, err)
	require.Empty(t, res.Accepted)
	require.Equal(t, plan.StatePrepared, step.State())
}
