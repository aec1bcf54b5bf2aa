// Package plan implements the Step/Phase/Plan state machine and the
// PlanManager kinds (deployment, recovery, decommission) that produce
// eligible steps for the PlanScheduler each tick.
package plan

import (
	"sync"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/offer"
)

// State is a Step's position in the deployment state machine.
type State string

const (
	StatePending  State = "PENDING"
	StatePrepared State = "PREPARED"
	StateStarting State = "STARTING"
	StateStarted  State = "STARTED"
	StateComplete State = "COMPLETE"
	StateWaiting  State = "WAITING"
	StateError    State = "ERROR"
)

// GoalPredicate reports whether a step, currently in state, has reached its
// goal and may transition to COMPLETE regardless of which state that is.
// It receives the plain State rather than *Step to avoid re-entering the
// step's own lock from within evaluateGoalLocked.
type GoalPredicate func(state State) bool

// SuccessPredicate reports whether a STARTING step's task has reached the
// state that step considers "started". Defaults to TaskRunning when nil.
type SuccessPredicate func(status offer.TaskStatus) bool

// Step is the leaf unit of deployment progress: it carries a state and,
// once started, an associated pod-instance requirement and the
// recommendations accepted for it.
type Step struct {
	mu sync.Mutex

	Name        string
	PodInstance string
	state       State

	requirement *evaluator.PodInstanceRequirement
	accepted    []evaluator.Recommendation
	taskNames   map[string]bool // task names this step is waiting on RUNNING for

	goal    GoalPredicate
	success SuccessPredicate
	prepare func() (*evaluator.PodInstanceRequirement, error)
	err     error
}

// NewStep constructs a PENDING step. goal and prepare are required; success
// may be nil (defaults to "every task RUNNING").
func NewStep(name, podInstance string, goal GoalPredicate, success SuccessPredicate, prepare func() (*evaluator.PodInstanceRequirement, error)) *Step {
	return &Step{
		Name:        name,
		PodInstance: podInstance,
		state:       StatePending,
		goal:        goal,
		success:     success,
		prepare:     prepare,
		taskNames:   make(map[string]bool),
	}
}

// State returns the step's current state.
func (s *Step) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Requirement returns the requirement produced by Start, if any.
func (s *Step) Requirement() *evaluator.PodInstanceRequirement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requirement
}

// Start is called by the PlanScheduler each tick a PENDING step is
// eligible. It invokes the step's prepare function, which produces the
// pod-instance requirement (or nil if the step isn't ready to prepare yet,
// e.g. waiting on a dirty-asset rule). On success the step moves
// PENDING -> PREPARED.
func (s *Step) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending {
		return nil
	}
	req, err := s.prepare()
	if err != nil {
		s.state = StateError
		s.err = err
		return err
	}
	if req == nil {
		return nil
	}
	s.requirement = req
	for _, t := range req.Tasks {
		s.taskNames[t.TaskName] = true
	}
	s.state = StatePrepared
	return nil
}

// Accept records the evaluator's recommendations for this step and moves
// PREPARED -> STARTING. Called only after LaunchRecorder has durably
// persisted them (persist-before-publish).
func (s *Step) Accept(recs []evaluator.Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePrepared {
		return
	}
	s.accepted = recs
	s.state = StateStarting
}

// AcceptedRecommendations returns the recommendations this step accepted.
func (s *Step) AcceptedRecommendations() []evaluator.Recommendation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]evaluator.Recommendation(nil), s.accepted...)
}

// UpdateStatus advances STARTING -> STARTED once the success predicate
// has fired for every task this step is waiting on, and evaluates the goal
// predicate on every call regardless of current state (any state may
// transition to COMPLETE).
func (s *Step) UpdateStatus(taskName string, status offer.TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStarting && s.taskNames[taskName] {
		ok := status.State == offer.TaskRunning
		if s.success != nil {
			ok = s.success(status)
		}
		if ok {
			delete(s.taskNames, taskName)
			if len(s.taskNames) == 0 {
				s.state = StateStarted
			}
		}
	}
	s.evaluateGoalLocked()
}

// Tick gives long-running steps (e.g. decommission teardown steps that
// wait on a ResourceReleased confirmation) a chance to re-evaluate their
// goal predicate without a task status update having arrived.
func (s *Step) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluateGoalLocked()
}

func (s *Step) evaluateGoalLocked() {
	if s.state == StateComplete || s.state == StateError {
		return
	}
	if s.goal != nil && s.goal(s.state) {
		s.state = StateComplete
	}
}

// MarkError forces the step into ERROR, e.g. on non-recoverable failure
// detected outside the normal status flow.
func (s *Step) MarkError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateError
	s.err = err
}

// MarkWaiting forces the step into WAITING, for externally-blocked steps
// (e.g. a decommission step waiting on an operator unlock).
func (s *Step) MarkWaiting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateComplete && s.state != StateError {
		s.state = StateWaiting
	}
}

// Err returns the error that moved this step to ERROR, if any.
func (s *Step) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// IsTerminal reports whether the step will never leave its current state
// without external intervention.
func (s *Step) IsTerminal() bool {
	st := s.State()
	return st == StateComplete || st == StateError
}
