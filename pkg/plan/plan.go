package plan

// Phase is an ordered sequence of steps.
type Phase struct {
	Name  string
	Steps []*Step
}

// Plan is an ordered sequence of phases.
type Plan struct {
	Name   string
	Phases []Phase
}

// AllSteps flattens every step across every phase, in order.
func (p Plan) AllSteps() []*Step {
	var out []*Step
	for _, ph := range p.Phases {
		out = append(out, ph.Steps...)
	}
	return out
}

// IsComplete reports whether every step in the plan is COMPLETE.
func (p Plan) IsComplete() bool {
	for _, s := range p.AllSteps() {
		if s.State() != StateComplete {
			return false
		}
	}
	return true
}

// EligibleSteps returns steps not yet COMPLETE or ERROR, in phase/step
// order, stopping at (and including) the first phase that is not fully
// COMPLETE — a plan is monotonic through its phases: phase N+1's steps are
// not offered until phase N is done. A plan whose every prior phase is
// COMPLETE exposes its next incomplete phase's steps only; within that
// phase every non-terminal step is eligible (steps within a phase may
// proceed in parallel).
func (p Plan) EligibleSteps() []*Step {
	for _, ph := range p.Phases {
		var pending []*Step
		allComplete := true
		for _, s := range ph.Steps {
			if s.State() != StateComplete {
				allComplete = false
			}
			if !s.IsTerminal() {
				pending = append(pending, s)
			}
		}
		if !allComplete {
			return pending
		}
	}
	return nil
}

// DirtyAssets is a read-only view of which pod instances are currently
// being touched by some plan during the current PlanCoordinator tick. It is
// passed into each PlanManager's CandidateSteps call as an explicit capability
// rather than a back-pointer to the coordinator, so PlanManager and
// PlanCoordinator never form an ownership cycle (spec.md Sec 9 Design
// Notes).
type DirtyAssets interface {
	IsDirty(podInstanceName string) bool
}

// dirtySet is the concrete DirtyAssets used by PlanCoordinator.
type dirtySet map[string]bool

func (d dirtySet) IsDirty(podInstanceName string) bool { return d[podInstanceName] }

// NewDirtyAssets builds a DirtyAssets from the given pod-instance names.
func NewDirtyAssets(names ...string) DirtyAssets {
	d := make(dirtySet, len(names))
	for _, n := range names {
		d[n] = true
	}
	return d
}

// Manager produces this tick's candidate steps for one plan, given a view
// of assets other plans are already touching.
type Manager interface {
	Name() string
	Plan() Plan
	// CandidateSteps returns steps eligible to start this tick, excluding
	// any whose PodInstance is dirty in another plan.
	CandidateSteps(dirty DirtyAssets) []*Step
	// Interrupt requests the manager stop producing new candidates (used
	// during uninstall handoff); existing in-flight steps still run to
	// completion.
	Interrupt()
	// Errors reports steps in the ERROR state, for operator visibility.
	Errors() []error
}
