package plan

import (
	"fmt"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/spec"
)

// TaskInfoLookup resolves a task's currently-persisted TaskInfo, if any.
type TaskInfoLookup func(taskName string) (offer.TaskInfo, bool)

// DeploymentManager drives the service monotonically through the phases of
// a named deployment plan. A spec change is effected not by mutating this
// manager's plan but by constructing a fresh one from the new target
// config and replacing it (see NewDeploymentManager call sites in
// pkg/scheduler) — "restart-on-spec-change is effected by advancing a new
// plan generated from the new target config" (spec.md Sec 4.8).
type DeploymentManager struct {
	baseManager
}

// NewDeploymentManager builds a DeploymentManager for planName out of svc,
// resolving each step's task requirements via lookup.
func NewDeploymentManager(svc spec.ServiceSpec, planName string, lookup TaskInfoLookup) (*DeploymentManager, error) {
	ps, ok := svc.Plan(planName)
	if !ok {
		return nil, fmt.Errorf("plan: service spec has no plan named %q", planName)
	}
	p, err := buildPlan(svc, ps, lookup)
	if err != nil {
		return nil, err
	}
	return &DeploymentManager{baseManager{name: planName, plan: p}}, nil
}

func buildPlan(svc spec.ServiceSpec, ps spec.PlanSpec, lookup TaskInfoLookup) (Plan, error) {
	occupied := map[string]bool{} // agent-ids of sibling instances; shared by every step but never populated, so hostname-unique rules see no siblings here
	var phases []Phase
	for _, phSpec := range ps.Phases {
		var steps []*Step
		for _, stepSpec := range phSpec.Steps {
			pod, ok := svc.Pod(stepSpec.PodType)
			if !ok {
				return Plan{}, fmt.Errorf("plan: step %q references unknown pod type %q", stepSpec.Name, stepSpec.PodType)
			}
			podInstance := spec.PodInstanceName(stepSpec.PodType, stepSpec.Index)
			step := newLaunchStep(stepSpec.Name, podInstance, pod, stepSpec, lookup, occupied)
			steps = append(steps, step)
		}
		phases = append(phases, Phase{Name: phSpec.Name, Steps: steps})
	}
	return Plan{Name: ps.Name, Phases: phases}, nil
}

func newLaunchStep(name, podInstance string, pod spec.PodSpec, stepSpec spec.StepSpec, lookup TaskInfoLookup, occupied map[string]bool) *Step {
	goal := func(state State) bool { return state == StateStarted }
	prepareFn := func() (*evaluator.PodInstanceRequirement, error) {
		req := &evaluator.PodInstanceRequirement{
			PodType:           stepSpec.PodType,
			Index:             stepSpec.Index,
			ShouldLaunch:      true,
			PlacementRules:    pod.PlacementRules,
			SiblingAgentIDs:   occupied,
			ColocatedAgentIDs: map[string]bool{},
		}
		for _, t := range pod.Tasks {
			taskName := fmt.Sprintf("%s-%s", podInstance, t.Name)
			tr := evaluator.TaskRequirement{TaskName: taskName, Resources: t.Resources}
			if existing, ok := lookup(taskName); ok {
				if existing.PermanentlyFailed {
					// Permanent failure: do not reuse resources: the
					// recovery plan already marked this TaskInfo for
					// replacement, so this task requirement claims fresh
					// reservations.
				} else {
					e := existing
					tr.Existing = &e
				}
			}
			req.Tasks = append(req.Tasks, tr)
		}
		return req, nil
	}
	return NewStep(name, podInstance, goal, nil, prepareFn)
}
