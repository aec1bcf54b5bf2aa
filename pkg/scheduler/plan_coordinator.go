package scheduler

import (
	"sync"

	"github.com/takirala/dcos-commons/pkg/plan"
)

// PlanCoordinator owns the set of active plan managers (deployment,
// recovery, decommission, any custom plans) and yields the eligible step
// set for the PlanScheduler each tick, applying the cross-plan dirty-asset
// rule: a pod instance currently being touched by one plan is excluded
// from the candidates of every other plan this tick.
type PlanCoordinator struct {
	mu       sync.Mutex
	managers []plan.Manager
}

// NewPlanCoordinator constructs a PlanCoordinator over the given managers.
func NewPlanCoordinator(managers ...plan.Manager) *PlanCoordinator {
	return &PlanCoordinator{managers: managers}
}

// AddManager registers an additional manager (e.g. a fresh
// DecommissionManager created when a pod instance is scaled down).
func (c *PlanCoordinator) AddManager(m plan.Manager) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.managers = append(c.managers, m)
}

// RemoveManager drops a manager by name (e.g. once its plan completes).
func (c *PlanCoordinator) RemoveManager(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.managers[:0]
	for _, m := range c.managers {
		if m.Name() != name {
			out = append(out, m)
		}
	}
	c.managers = out
}

// Managers returns a snapshot of the currently registered managers.
func (c *PlanCoordinator) Managers() []plan.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]plan.Manager(nil), c.managers...)
}

// EligibleSteps computes the union of every manager's candidate steps,
// first passing each manager a dirty-asset view built from every OTHER
// manager's own plan (a pod instance already touched by plan A this tick is
// excluded from plan B's candidates, and vice versa).
func (c *PlanCoordinator) EligibleSteps() []*plan.Step {
	managers := c.Managers()

	// A pod instance is "dirty" in a manager's view if some step of that
	// pod instance, in ANOTHER manager's plan, is already non-terminal
	// (PREPARED/STARTING/STARTED) — i.e. actively in flight, not merely
	// PENDING and untouched.
	touchedBy := make([]map[string]bool, len(managers))
	for i, m := range managers {
		touched := map[string]bool{}
		for _, s := range m.Plan().AllSteps() {
			switch s.State() {
			case plan.StatePrepared, plan.StateStarting, plan.StateStarted:
				touched[s.PodInstance] = true
			}
		}
		touchedBy[i] = touched
	}

	var eligible []*plan.Step
	for i, m := range managers {
		dirty := map[string]bool{}
		for j, touched := range touchedBy {
			if j == i {
				continue
			}
			for pod := range touched {
				dirty[pod] = true
			}
		}
		eligible = append(eligible, m.CandidateSteps(plan.NewDirtyAssets(keys(dirty)...))...)
	}
	return eligible
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
