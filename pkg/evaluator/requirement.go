package evaluator

import (
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/spec"
)

// TaskRequirement is a single task's resource ask within a pod-instance
// requirement, plus whatever reservation it already holds from a previous
// tick (nil if none).
type TaskRequirement struct {
	TaskName  string
	Resources []spec.ResourceRequirement
	// Existing is the currently-persisted TaskInfo for this task, if any.
	// The evaluator prefers resources already reserved under Existing's
	// resource-ids over allocating new ones.
	Existing *offer.TaskInfo
}

// PodInstanceRequirement is the evaluator's sole input alongside an offer
// batch: which tasks of one pod instance need resources, under what
// placement rules, and whether a real launch is wanted or this is a
// transient/placeholder requirement used only to satisfy the evaluator's
// own reservation bookkeeping.
type PodInstanceRequirement struct {
	PodType         string
	Index           int
	Tasks           []TaskRequirement
	PlacementRules  []spec.PlacementRule
	ShouldLaunch    bool
	// SiblingAgentIDs lists agent-ids already occupied by other instances
	// of the same pod, for hostname-uniqueness rules; ColocatedAgentIDs
	// lists agent-ids of a pod this instance must colocate with.
	SiblingAgentIDs   map[string]bool
	ColocatedAgentIDs map[string]bool
}

// PodInstanceName is a convenience accessor matching spec.PodInstanceName.
func (r PodInstanceRequirement) PodInstanceName() string {
	return spec.PodInstanceName(r.PodType, r.Index)
}
