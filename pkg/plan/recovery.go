package plan

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/spec"
)

// RecoveryManager monitors task statuses and creates transient steps when a
// task enters a failed state. It distinguishes transient failure (relaunch
// the task in place, reusing its reservations) from permanent failure
// (replace it: claim fresh reservations and let old ones become
// unexpected resources for later Unreserve).
type RecoveryManager struct {
	baseManager
	svc    spec.ServiceSpec
	lookup TaskInfoLookup

	mu        sync.Mutex
	active    map[string]bool  // task names with an in-flight recovery step
	stepTasks map[*Step]string // step -> task name, for Reap to clear active on completion
}

// NewRecoveryManager constructs an empty RecoveryManager for svc.
func NewRecoveryManager(svc spec.ServiceSpec, lookup TaskInfoLookup) *RecoveryManager {
	return &RecoveryManager{
		baseManager: baseManager{name: "recovery", plan: Plan{Name: "recovery"}},
		svc:         svc,
		lookup:      lookup,
		active:      make(map[string]bool),
		stepTasks:   make(map[*Step]string),
	}
}

// HandleFailure records a failure for taskName, belonging to podInstance of
// podType, and adds a relaunch step unless one is already in flight for
// this task. permanent selects replace semantics (fresh reservations) over
// transient relaunch-in-place (reuse the task's existing reservations).
// Returns the step created, or nil if one was already active.
func (m *RecoveryManager) HandleFailure(taskName, podInstance, podType, taskKind string, permanent bool) (*Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[taskName] {
		return nil, nil
	}
	pod, ok := m.svc.Pod(podType)
	if !ok {
		return nil, fmt.Errorf("plan: recovery for unknown pod type %q", podType)
	}
	var taskSpec *spec.TaskSpec
	for i := range pod.Tasks {
		if pod.Tasks[i].Name == taskKind {
			taskSpec = &pod.Tasks[i]
			break
		}
	}
	if taskSpec == nil {
		return nil, fmt.Errorf("plan: recovery for unknown task %q in pod %q", taskKind, podType)
	}

	goal := func(state State) bool { return state == StateStarted }
	prepare := func() (*evaluator.PodInstanceRequirement, error) {
		tr := evaluator.TaskRequirement{TaskName: taskName, Resources: taskSpec.Resources}
		if !permanent {
			if existing, ok := m.lookup(taskName); ok {
				e := existing
				tr.Existing = &e
			}
		}
		return &evaluator.PodInstanceRequirement{
			PodType:      podType,
			Index:        podInstanceIndex(podInstance, podType),
			ShouldLaunch: true,
			Tasks:        []evaluator.TaskRequirement{tr},
		}, nil
	}
	stepName := fmt.Sprintf("recover-%s", taskName)
	if permanent {
		stepName = fmt.Sprintf("replace-%s", taskName)
	}
	step := NewStep(stepName, podInstance, goal, nil, prepare)
	m.active[taskName] = true
	m.stepTasks[step] = taskName
	m.appendStep(step)
	return step, nil
}

// podInstanceIndex recovers the numeric index spec.PodInstanceName encoded
// into podInstance ("p0-3" -> 3), so recovery recommendations carry the
// same Index the original deployment step used.
func podInstanceIndex(podInstance, podType string) int {
	idx, err := strconv.Atoi(strings.TrimPrefix(podInstance, podType+"-"))
	if err != nil {
		return 0
	}
	return idx
}

func (m *RecoveryManager) appendStep(step *Step) {
	m.baseManager.mu.Lock()
	defer m.baseManager.mu.Unlock()
	if len(m.baseManager.plan.Phases) == 0 {
		m.baseManager.plan.Phases = []Phase{{Name: "recovery"}}
	}
	m.baseManager.plan.Phases[0].Steps = append(m.baseManager.plan.Phases[0].Steps, step)
}

// Reap drops completed or errored recovery steps from the active set so a
// future failure of the same task can be recovered again.
func (m *RecoveryManager) Reap() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseManager.mu.Lock()
	defer m.baseManager.mu.Unlock()
	if len(m.baseManager.plan.Phases) == 0 {
		return
	}
	phase := &m.baseManager.plan.Phases[0]
	kept := phase.Steps[:0]
	for _, s := range phase.Steps {
		if s.IsTerminal() {
			if taskName, ok := m.stepTasks[s]; ok {
				delete(m.active, taskName)
				delete(m.stepTasks, s)
			}
			continue
		}
		kept = append(kept, s)
	}
	phase.Steps = kept
}
