package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/plan"
)

// fakeManager is a minimal plan.Manager for exercising PlanCoordinator's
// dirty-asset computation without going through spec/evaluator wiring.
type fakeManager struct {
	name string
	p    plan.Plan
}

func (f *fakeManager) Name() string                                  { return f.name }
func (f *fakeManager) Plan() plan.Plan                                { return f.p }
func (f *fakeManager) Interrupt()                                     {}
func (f *fakeManager) Errors() []error                                { return nil }
func (f *fakeManager) CandidateSteps(dirty plan.DirtyAssets) []*plan.Step {
	var out []*plan.Step
	for _, s := range f.p.EligibleSteps() {
		if dirty == nil || !dirty.IsDirty(s.PodInstance) {
			out = append(out, s)
		}
	}
	return out
}

func pendingStep(name, podInstance string) *plan.Step {
	return plan.NewStep(name, podInstance, func(plan.State) bool { return false }, nil,
		func() (*evaluator.PodInstanceRequirement, error) {
			return &evaluator.PodInstanceRequirement{PodType: "p0"}, nil
		})
}

func TestPlanCoordinator_EligibleSteps_ExcludesInFlightPodFromOtherManager(t *testing.T) {
	starting := pendingStep("deploy-p0-0", "p0-0")
	require.NoError(t, starting.Start())
	starting.Accept(nil) // PREPARED -> STARTING

	a := &fakeManager{name: "deploy", p: plan.Plan{Phases: []plan.Phase{{Name: "nodes", Steps: []*plan.Step{starting}}}}}

	recoveryStep := pendingStep("recover-p0-0", "p0-0")
	otherPodStep := pendingStep("recover-p1-0", "p1-0")
	b := &fakeManager{name: "recovery", p: plan.Plan{Phases: []plan.Phase{{Name: "recovery", Steps: []*plan.Step{recoveryStep, otherPodStep}}}}}

	c := NewPlanCoordinator(a, b)
	eligible := c.EligibleSteps()

	var names []string
	for _, s := range eligible {
		names = append(names, s.Name)
	}
	require.NotContains(t, names, "recover-p0-0", "p0-0 is in flight under deploy, recovery must not touch it")
	require.Contains(t, names, "recover-p1-0")
}

func TestPlanCoordinator_AddRemoveManager(t *testing.T) {
	a := &fakeManager{name: "deploy", p: plan.Plan{}}
	c := NewPlanCoordinator(a)
	require.Len(t, c.Managers(), 1)

	b := &fakeManager{name: "recovery", p: plan.Plan{}}
	c.AddManager(b)
	require.Len(t, c.Managers(), 2)

	c.RemoveManager("deploy")
	managers := c.Managers()
	require.Len(t, managers, 1)
	require.Equal(t, "recovery", managers[0].Name())
}
