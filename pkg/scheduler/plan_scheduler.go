package scheduler

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/plan"
)

// PlanScheduler drives a batch of eligible steps through the evaluator
// against one offer batch, records acceptance, and marks steps STARTING.
type PlanScheduler struct {
	eval     *evaluator.Evaluator
	recorder *LaunchRecorder
	logger   hclog.Logger
}

// NewPlanScheduler constructs a PlanScheduler.
func NewPlanScheduler(eval *evaluator.Evaluator, recorder *LaunchRecorder, logger hclog.Logger) *PlanScheduler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &PlanScheduler{eval: eval, recorder: recorder, logger: logger.Named("plan-scheduler")}
}

// Result is everything PlanScheduler produced for one tick: the driver
// operations to accept, and which offers were consumed by an accept (the
// remainder of the batch is left for OfferProcessor to decline).
type Result struct {
	Accepted     []evaluator.Recommendation
	ConsumedIDs  map[string]bool
}

// Run walks steps in order. For each PENDING step it calls Start(); for
// every non-terminal step it then re-evaluates the goal predicate (Tick),
// since some steps (decommission teardown) complete via side effect rather
// than through the evaluator. For each PREPARED step it invokes the
// evaluator against offers, records accepted recommendations, and moves
// the step to STARTING.
//
// At-most-one Launch recommendation naming a given step's task-ids is sent
// per call (spec.md Sec 8 property 1): each step is evaluated against the
// batch at most once per Run call.
func (ps *PlanScheduler) Run(steps []*plan.Step, offers []offer.Offer) (Result, error) {
	res := Result{ConsumedIDs: map[string]bool{}}
	remaining := offers

	for _, step := range steps {
		if step.State() == plan.StatePending {
			if err := step.Start(); err != nil {
				ps.logger.Error("step failed to prepare", "step", step.Name, "error", err)
			}
		}
		step.Tick()

		if step.State() != plan.StatePrepared {
			continue
		}
		req := step.Requirement()
		if req == nil {
			continue
		}
		candidates := excludeConsumed(remaining, res.ConsumedIDs)
		recs := ps.eval.Evaluate(*req, candidates)
		if len(recs) == 0 {
			continue
		}
		toSend, err := ps.recorder.Record(recs)
		if err != nil {
			ps.logger.Error("failed to record recommendations, abandoning this tick", "step", step.Name, "error", err)
			continue
		}
		if len(toSend) == 0 {
			continue
		}
		step.Accept(toSend)
		res.Accepted = append(res.Accepted, toSend...)
		for _, r := range toSend {
			res.ConsumedIDs[r.OfferID] = true
		}
	}
	return res, nil
}

func excludeConsumed(offers []offer.Offer, consumed map[string]bool) []offer.Offer {
	if len(consumed) == 0 {
		return offers
	}
	out := make([]offer.Offer, 0, len(offers))
	for _, o := range offers {
		if !consumed[o.ID] {
			out = append(out, o)
		}
	}
	return out
}
