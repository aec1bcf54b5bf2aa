// Package scheduler assembles the plan/evaluator/store machinery into the
// PlanScheduler, PlanCoordinator, LaunchRecorder, and the deploy/uninstall
// ServiceScheduler variants that route master callbacks.
package scheduler

import (
	"fmt"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/plan"
	"github.com/takirala/dcos-commons/pkg/store"
)

// LaunchRecorder mutates the StateStore to match each accepted
// recommendation before it is handed to the driver ("persist-before-
// publish", spec.md Sec 8 property 2). Each TaskInfo is written one at a
// time so a crash mid-batch leaves at most one inconsistent task.
type LaunchRecorder struct {
	states *store.StateStore
	logger hclog.Logger
}

// NewLaunchRecorder constructs a LaunchRecorder over states.
func NewLaunchRecorder(states *store.StateStore, logger hclog.Logger) *LaunchRecorder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LaunchRecorder{states: states, logger: logger.Named("launch-recorder")}
}

// Record persists the effects of recs, grouped by task, and returns the
// recommendations that should still be sent to the driver (Launch
// recommendations with ShouldLaunch=false are dropped per spec.md Sec 4.6
// step 2). On a storage failure partway through, Record returns the error
// and no recommendations; TaskInfos written before the failure stay
// persisted and are not rolled back. The caller must not send anything to
// the driver for this tick (spec.md
// Sec 4.6: "If recording fails, abandon this tick's recommendations
// entirely").
func (r *LaunchRecorder) Record(recs []evaluator.Recommendation) ([]evaluator.Recommendation, error) {
	byTask := map[string]offer.TaskInfo{}
	order := make([]string, 0, len(recs))
	var toSend []evaluator.Recommendation

	for _, rec := range recs {
		switch rec.Kind {
		case evaluator.KindLaunch:
			if !rec.ShouldLaunch {
				continue
			}
			if _, ok := byTask[rec.TaskInfo.Name]; !ok {
				order = append(order, rec.TaskInfo.Name)
			}
			byTask[rec.TaskInfo.Name] = rec.TaskInfo
			toSend = append(toSend, rec)
		case evaluator.KindReserve, evaluator.KindCreateVolume:
			// Resource/volume lifecycle ops ride along with the Launch
			// that references their resource-id; the TaskInfo built for
			// KindLaunch already carries the reserved resource, so these
			// need no separate persistence step beyond being forwarded
			// to the driver.
			toSend = append(toSend, rec)
		case evaluator.KindUnreserve, evaluator.KindDestroyVolume:
			toSend = append(toSend, rec)
		default:
			toSend = append(toSend, rec)
		}
	}

	var merr *multierror.Error
	for _, name := range order {
		if err := r.states.StoreTasks([]offer.TaskInfo{byTask[name]}); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("launch recorder: persisting %q: %w", name, err))
			r.logger.Error("failed to persist TaskInfo before launch", "task", name, "error", err)
			return nil, merr.ErrorOrNil()
		}
	}
	return toSend, merr.ErrorOrNil()
}

// advanceDecommissionSteps is a convenience used by tests and by
// ServiceScheduler: it ticks every step in mgr's plan so goal predicates
// set by side-effecting prepare functions (kill/unreserve/remove) are
// re-evaluated after DeployScheduler.ResourceReleased observes a release.
func advanceDecommissionSteps(mgrs []*plan.DecommissionManager) {
	for _, m := range mgrs {
		for _, s := range m.Plan().AllSteps() {
			s.Tick()
		}
	}
}
