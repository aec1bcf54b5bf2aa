package plan

import (
	"fmt"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/offer"
)

// DecommissionManager performs ordered teardown of one pod instance: kill
// its tasks, unreserve its resources, destroy its volumes, remove its
// TaskInfo. Construct one per pod instance being decommissioned; the
// PlanCoordinator holds the active set.
type DecommissionManager struct {
	baseManager
	podInstance string

	killed     bool
	unreserved bool
	removed    bool

	// pendingResources is the set of resource-ids the unreserve step is
	// still waiting to see confirmed released (via ResourceReleased); nil
	// until the step has computed it once.
	pendingResources map[string]bool

	killFn      func() error
	unreserveFn func() ([]evaluator.Recommendation, error)
	removeFn    func() error
}

// DecommissionHooks supplies the side-effecting operations a decommission
// plan needs from its owner (ServiceScheduler): killing the running tasks
// for a pod instance, enumerating the Unreserve/Destroy recommendations
// that describe its held resources (so the unreserve step knows which
// resource-ids to wait on; the driver call itself happens separately, via
// the owner's unexpected-resource sweep), and removing its TaskInfo once
// cleanup completes.
type DecommissionHooks struct {
	Kill      func(podInstance string) error
	Unreserve func(podInstance string) ([]evaluator.Recommendation, error)
	Remove    func(podInstance string) error
}

// NewDecommissionManager builds the three-step teardown plan for
// podInstance: kill, unreserve+destroy, remove.
func NewDecommissionManager(podInstance string, hooks DecommissionHooks) *DecommissionManager {
	m := &DecommissionManager{
		baseManager: baseManager{name: fmt.Sprintf("decommission-%s", podInstance)},
		podInstance: podInstance,
		killFn:      func() error { return hooks.Kill(podInstance) },
		unreserveFn: func() ([]evaluator.Recommendation, error) { return hooks.Unreserve(podInstance) },
		removeFn:    func() error { return hooks.Remove(podInstance) },
	}

	killStep := NewStep(
		fmt.Sprintf("kill-%s", podInstance), podInstance,
		func(State) bool { return m.killed },
		nil,
		func() (*evaluator.PodInstanceRequirement, error) {
			if err := m.killFn(); err != nil {
				return nil, err
			}
			m.killed = true
			// No offer matching needed for a kill; the step completes via
			// its goal predicate rather than PREPARED/STARTING.
			return nil, nil
		},
	)

	unreserveStep := NewStep(
		fmt.Sprintf("unreserve-%s", podInstance), podInstance,
		func(State) bool { return m.unreserved },
		nil,
		func() (*evaluator.PodInstanceRequirement, error) {
			recs, err := m.unreserveFn()
			if err != nil {
				return nil, err
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.pendingResources == nil {
				m.pendingResources = make(map[string]bool, len(recs))
				for _, r := range recs {
					if id := r.Resource.ReservationID(); id != "" {
						m.pendingResources[id] = true
					}
				}
				if len(m.pendingResources) == 0 {
					m.unreserved = true
				}
			}
			// No offer matching needed here either: release of these
			// resource-ids happens through the driver's normal unexpected-
			// resource sweep (UnexpectedResources), which is what actually
			// owns a valid offer-id to accept an Unreserve against. This
			// step only tracks which ids that sweep still owes it.
			return nil, nil
		},
	)

	removeStep := NewStep(
		fmt.Sprintf("remove-%s", podInstance), podInstance,
		func(State) bool { return m.removed },
		nil,
		func() (*evaluator.PodInstanceRequirement, error) {
			if err := m.removeFn(); err != nil {
				return nil, err
			}
			m.removed = true
			return nil, nil
		},
	)

	m.plan = Plan{
		Name: m.name,
		Phases: []Phase{
			{Name: "kill", Steps: []*Step{killStep}},
			{Name: "unreserve", Steps: []*Step{unreserveStep}},
			{Name: "remove", Steps: []*Step{removeStep}},
		},
	}
	return m
}

// ResourceReleased marks resourceID as actually released by the driver.
// Once every resource-id the unreserve step is waiting on has been
// confirmed this way, its goal predicate is satisfied and the teardown
// plan advances to the remove step on the next Tick.
func (m *DecommissionManager) ResourceReleased(resourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingResources == nil {
		return
	}
	delete(m.pendingResources, resourceID)
	if len(m.pendingResources) == 0 {
		m.unreserved = true
	}
}

// TaskStatus is re-exported so callers of DecommissionHooks.Kill do not
// need to import pkg/offer solely for the type name in their own
// signatures; kept as a thin alias, not a new type.
type TaskStatus = offer.TaskStatus
