package offer

import "time"

// EmptyTaskID is the sentinel task-id marking a TaskInfo as reservation-only:
// resources are held but no task is currently running against them.
const EmptyTaskID = ""

// ExecutorInfo describes the executor a TaskInfo runs under.
type ExecutorInfo struct {
	ExecutorID string
	Command    string
	Resources  []Resource
}

// TaskInfo is the canonical description of a launched or launchable task.
type TaskInfo struct {
	Name     string
	TaskID   string
	PodName  string
	Executor ExecutorInfo
	Command  string
	// Resources carries each resource this task holds, with its
	// reservation labels intact so the evaluator can recognize them as
	// "already reserved" on a later tick.
	Resources []Resource
	Labels    map[string]string

	// PermanentlyFailed is set by the recovery plan once a failure is
	// judged non-transient. It is not part of the upstream TaskInfo wire
	// format; it is scheduler-local bookkeeping persisted alongside it.
	PermanentlyFailed bool
	// Decommissioning is set while the owning pod is being torn down by
	// the decommission plan.
	Decommissioning bool
}

// IsReservationOnly reports whether this record holds resources without a
// currently-running task.
func (t TaskInfo) IsReservationOnly() bool {
	return t.TaskID == EmptyTaskID
}

// ResourceIDs returns every reservation resource-id referenced by this task.
func (t TaskInfo) ResourceIDs() []string {
	ids := make([]string, 0, len(t.Resources))
	for _, r := range t.Resources {
		if id := r.ReservationID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// TaskState is the lifecycle state reported for a task by the master.
type TaskState string

const (
	TaskStaging     TaskState = "STAGING"
	TaskStarting    TaskState = "STARTING"
	TaskRunning     TaskState = "RUNNING"
	TaskFinished    TaskState = "FINISHED"
	TaskFailed      TaskState = "FAILED"
	TaskKilled      TaskState = "KILLED"
	TaskLost        TaskState = "LOST"
	TaskDropped     TaskState = "DROPPED"
	TaskUnreachable TaskState = "UNREACHABLE"
	TaskGone        TaskState = "GONE"
)

// terminalStates are states from which a task cannot transition back to a
// non-terminal state for the same task-id (StateStore.storeStatus rule).
var terminalStates = map[TaskState]bool{
	TaskFinished: true,
	TaskFailed:   true,
	TaskKilled:   true,
	TaskGone:     true,
}

// IsTerminal reports whether s is a terminal task state.
func (s TaskState) IsTerminal() bool {
	return terminalStates[s]
}

// NetworkInfo carries a container's reachable addresses.
type NetworkInfo struct {
	IPAddresses []string
}

// ContainerStatus optionally accompanies a TaskStatus.
type ContainerStatus struct {
	Network *NetworkInfo
}

// TaskStatus is a single status report for a task-id.
type TaskStatus struct {
	TaskID    string
	State     TaskState
	Reason    string
	Message   string
	Container *ContainerStatus
	Timestamp time.Time
}

// permanentFailureReasons are failure reasons (on a TASK_FAILED, TASK_GONE
// or TASK_DROPPED status) the recovery plan treats
// as non-transient: the task's reservations should be discarded rather than
// reused for a relaunch.
var permanentFailureReasons = map[string]bool{
	"REASON_GC_ERROR":            true,
	"REASON_RECONCILIATION":      true,
	"REASON_TASK_INVALID":        true,
	"REASON_TASK_UNAUTHORIZED":   true,
	"REASON_EXECUTOR_REGISTRATION_TIMEOUT": true,
}

// IsPermanentFailure reports whether this status represents a failure the
// recovery plan should treat as permanent (replace) rather than transient
// (relaunch in place).
func (s TaskStatus) IsPermanentFailure() bool {
	if s.State != TaskFailed && s.State != TaskGone && s.State != TaskDropped {
		return false
	}
	return permanentFailureReasons[s.Reason]
}
