package offer

import "fmt"

// Override is a per-task directive layered over the spec's default goal.
type Override string

const (
	OverrideNone            Override = "NONE"
	OverridePaused          Override = "PAUSED"
	OverrideStopped         Override = "STOPPED"
	OverrideDecommissioning Override = "DECOMMISSIONING"
)

// Progress tracks how far along an Override has been carried out.
type Progress string

const (
	ProgressPending    Progress = "PENDING"
	ProgressInProgress Progress = "IN_PROGRESS"
	ProgressComplete   Progress = "COMPLETE"
)

// GoalOverride is the (override, progress) pair stored per task.
type GoalOverride struct {
	Override Override
	Progress Progress
}

// PausedCommand is the modified command written into a task's stored
// TaskInfo once its PAUSED override reaches COMPLETE: a no-op that holds the
// task's reservation without running its real workload.
const PausedCommand = "sleep 100000000"

// goalEvent names the triggers that move a GoalOverride through its table.
type goalEvent string

const (
	EventRequestOverride goalEvent = "REQUEST"
	EventBeginWork       goalEvent = "BEGIN"
	EventWorkComplete    goalEvent = "COMPLETE"
	EventClearOverride   goalEvent = "CLEAR"
)

type goalTransition struct {
	from  GoalOverride
	event goalEvent
}

// goalTable enumerates every legal (state, event) -> state transition across
// the 4 overrides x 3 progress values, rather than scattering boolean logic
// across callers (see spec.md Design Notes: goal-state overrides as a
// finite product).
var goalTable = map[goalTransition]GoalOverride{
	{GoalOverride{OverrideNone, ProgressComplete}, EventRequestOverride}: {OverridePaused, ProgressPending},

	{GoalOverride{OverridePaused, ProgressPending}, EventBeginWork}:    {OverridePaused, ProgressInProgress},
	{GoalOverride{OverridePaused, ProgressInProgress}, EventWorkComplete}: {OverridePaused, ProgressComplete},
	{GoalOverride{OverridePaused, ProgressComplete}, EventClearOverride}:  {OverrideNone, ProgressComplete},

	{GoalOverride{OverrideStopped, ProgressPending}, EventBeginWork}:    {OverrideStopped, ProgressInProgress},
	{GoalOverride{OverrideStopped, ProgressInProgress}, EventWorkComplete}: {OverrideStopped, ProgressComplete},
	{GoalOverride{OverrideStopped, ProgressComplete}, EventClearOverride}:  {OverrideNone, ProgressComplete},

	{GoalOverride{OverrideDecommissioning, ProgressPending}, EventBeginWork}:    {OverrideDecommissioning, ProgressInProgress},
	{GoalOverride{OverrideDecommissioning, ProgressInProgress}, EventWorkComplete}: {OverrideDecommissioning, ProgressComplete},
}

// requestTransition builds the PENDING state for a request of PAUSED,
// STOPPED or DECOMMISSIONING; Next calls it only when no override is
// active and incomplete. Expressed separately since the target override is
// part of the request, not fixed by the table.
func requestTransition(target Override) (GoalOverride, error) {
	switch target {
	case OverridePaused, OverrideStopped, OverrideDecommissioning:
		return GoalOverride{target, ProgressPending}, nil
	default:
		return GoalOverride{}, fmt.Errorf("offer: invalid override request %q", target)
	}
}

// Next advances current on event, applying the legal-transition table. A
// request for a specific override is passed via target (ignored for
// non-request events).
func Next(current GoalOverride, event goalEvent, target Override) (GoalOverride, error) {
	if event == EventRequestOverride {
		if current.Override != OverrideNone && current.Progress != ProgressComplete {
			return GoalOverride{}, fmt.Errorf("offer: cannot request override while %s/%s is active", current.Override, current.Progress)
		}
		return requestTransition(target)
	}
	next, ok := goalTable[goalTransition{current, event}]
	if !ok {
		return GoalOverride{}, fmt.Errorf("offer: illegal goal transition %s/%s on %s", current.Override, current.Progress, event)
	}
	return next, nil
}
