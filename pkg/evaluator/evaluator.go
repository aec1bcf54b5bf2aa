package evaluator

import (
	"fmt"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/spec"
)

// Evaluator is a pure function from (pending step requirement, offer batch)
// to recommendations: no persistence, no network. Role/Principal configure
// the reservation labels it stamps onto newly-reserved resources.
type Evaluator struct {
	Role      string
	Principal string
	Outcomes  *OutcomeTracker
}

// NewEvaluator constructs an Evaluator. outcomes may be nil, in which case
// the Evaluator records into a private 100-entry OutcomeTracker.
func NewEvaluator(role, principal string, outcomes *OutcomeTracker) *Evaluator {
	if outcomes == nil {
		outcomes = NewOutcomeTracker(100)
	}
	return &Evaluator{Role: role, Principal: principal, Outcomes: outcomes}
}

// Evaluate walks offers in arrival order and returns the first offer's
// recommendation set that satisfies req in full. Remaining offers are left
// untouched for later steps; an empty slice means no offer matched.
func (e *Evaluator) Evaluate(req PodInstanceRequirement, offers []offer.Offer) []Recommendation {
	for _, o := range offers {
		if reason, ok := e.satisfiesPlacement(req, o); !ok {
			e.record(req, o.ID, false, reason)
			continue
		}
		recs, reason, ok := e.match(req, o)
		if !ok {
			e.record(req, o.ID, false, reason)
			continue
		}
		e.record(req, o.ID, true, "matched")
		return recs
	}
	return nil
}

// satisfiesPlacement evaluates req's placement rules against o before any
// resource matching is attempted; an offer failing any rule is skipped
// without consuming resource-matching work.
func (e *Evaluator) satisfiesPlacement(req PodInstanceRequirement, o offer.Offer) (string, bool) {
	for _, rule := range req.PlacementRules {
		switch rule.Kind {
		case "hostname-unique":
			if req.SiblingAgentIDs[o.AgentID] {
				return fmt.Sprintf("agent %s already hosts a sibling instance", o.AgentID), false
			}
		case "colocate":
			if len(req.ColocatedAgentIDs) > 0 && !req.ColocatedAgentIDs[o.AgentID] {
				return fmt.Sprintf("agent %s does not host required colocated pod %s", o.AgentID, rule.ColocateWithPod), false
			}
		case "region", "zone", "attribute":
			// Region/zone/attribute matching requires agent metadata the
			// offer does not carry in this model. These rule kinds are
			// not evaluated anywhere: every offer passes them.
		}
	}
	return "", true
}

// match attempts to satisfy every task's resource requirements from a
// single offer, preferring pre-existing reservations over fresh ones.
func (e *Evaluator) match(req PodInstanceRequirement, o offer.Offer) ([]Recommendation, string, bool) {
	available := append([]offer.Resource(nil), o.Resources...)
	var recs []Recommendation

	for _, task := range req.Tasks {
		taskID, err := uuid.GenerateUUID()
		if err != nil {
			return nil, "failed generating task-id", false
		}
		taskInfo := offer.TaskInfo{Name: task.TaskName, TaskID: taskID, PodName: req.PodInstanceName()}
		for _, rr := range task.Resources {
			res, idx, reused, ok := e.findResource(task, rr, available)
			if !ok {
				return nil, fmt.Sprintf("insufficient %s for task %s", rr.Type, task.TaskName), false
			}
			if !reused {
				available = removeAt(available, idx)
				resID, err := uuid.GenerateUUID()
				if err != nil {
					return nil, "failed generating resource-id", false
				}
				res.Reservation = &offer.Reservation{Role: e.Role, Principal: e.Principal, ResourceID: resID}
				recs = append(recs, Recommendation{
					Kind:     KindReserve,
					OfferID:  o.ID,
					AgentID:  o.AgentID,
					PodType:  req.PodType,
					Index:    req.Index,
					TaskName: task.TaskName,
					Resource: res,
				})
			}
			taskInfo.Resources = append(taskInfo.Resources, res)
		}
		recs = append(recs, Recommendation{
			Kind:         KindLaunch,
			OfferID:      o.ID,
			AgentID:      o.AgentID,
			PodType:      req.PodType,
			Index:        req.Index,
			TaskName:     task.TaskName,
			TaskInfo:     taskInfo,
			ShouldLaunch: req.ShouldLaunch,
		})
	}
	return recs, "", true
}

// findResource looks for rr first among task.Existing's already-reserved
// resources (matched by type, role and a Scalar at least rr.Scalar), then
// among the offer's unreserved
// compatible resources. Returns the matched resource, its index in
// available when freshly claimed, and whether it was reused from Existing.
func (e *Evaluator) findResource(task TaskRequirement, rr spec.ResourceRequirement, available []offer.Resource) (offer.Resource, int, bool, bool) {
	if task.Existing != nil {
		for _, res := range task.Existing.Resources {
			if string(res.Type) == rr.Type && res.Role == rr.Role && res.Scalar >= rr.Scalar {
				return res, -1, true, true
			}
		}
	}
	for i, res := range available {
		if res.Reservation != nil {
			continue
		}
		if string(res.Type) != rr.Type || res.Role != rr.Role {
			continue
		}
		if res.Scalar < rr.Scalar {
			continue
		}
		claimed := res
		claimed.Scalar = rr.Scalar
		return claimed, i, false, true
	}
	return offer.Resource{}, -1, false, false
}

func removeAt(rs []offer.Resource, i int) []offer.Resource {
	out := append([]offer.Resource(nil), rs[:i]...)
	out = append(out, rs[i+1:]...)
	return out
}

func (e *Evaluator) record(req PodInstanceRequirement, offerID string, passed bool, reason string) {
	e.Outcomes.Record(Outcome{
		PodInstance: req.PodInstanceName(),
		OfferID:     offerID,
		Passed:      passed,
		Reason:      reason,
	})
}
