// Package framework implements the FrameworkScheduler master-driver
// adapter and the OfferProcessor queue/worker pump between the master and
// the ServiceScheduler. The master driver RPC library itself is out of
// scope (spec.md Sec 1); Driver below is the contract this package
// consumes from it.
package framework

import (
	"time"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/offer"
)

// Operation types sent to the master, per spec.md Sec 6.
type OperationType string

const (
	OpLaunch       OperationType = "LAUNCH"
	OpLaunchGroup  OperationType = "LAUNCH_GROUP"
	OpReserve      OperationType = "RESERVE"
	OpUnreserve    OperationType = "UNRESERVE"
	OpCreateVolume OperationType = "CREATE"
	OpDestroy      OperationType = "DESTROY"
)

// Operation is the driver-facing encoding of one evaluator.Recommendation.
type Operation struct {
	Type     OperationType
	AgentID  string
	Resource offer.Resource
	TaskInfo offer.TaskInfo
}

// ToOperation maps a recommendation Kind to its driver Operation type, the
// total function over the tagged-variant recommendation set spec.md Sec 9
// calls for.
func ToOperation(r evaluator.Recommendation) Operation {
	op := Operation{AgentID: r.AgentID, Resource: r.Resource, TaskInfo: r.TaskInfo}
	switch r.Kind {
	case evaluator.KindReserve:
		op.Type = OpReserve
	case evaluator.KindUnreserve:
		op.Type = OpUnreserve
	case evaluator.KindCreateVolume:
		op.Type = OpCreateVolume
	case evaluator.KindDestroyVolume:
		op.Type = OpDestroy
	case evaluator.KindLaunch:
		op.Type = OpLaunch
	}
	return op
}

// Refuse durations throttle the master, per spec.md Sec 5.
const (
	RefuseShort = 5 * time.Second
	RefuseLong  = 14 * 24 * time.Hour
)

// Filters accompanies a decline to tell the master when to re-offer.
type Filters struct {
	RefuseSeconds time.Duration
}

// Driver is the outbound surface of the master driver this package
// consumes (spec.md Sec 6). Implemented upstream; not specified here.
type Driver interface {
	AcceptOffers(offerIDs []string, ops []Operation, filters Filters) error
	DeclineOffer(offerID string, filters Filters) error
	KillTask(taskID string) error
	ReconcileTasks(statuses []offer.TaskStatus) error
	Stop(failover bool) error
}
