package evaluator

import (
	"strconv"

	"github.com/takirala/dcos-commons/pkg/offer"
)

// Kind identifies which variant a Recommendation carries, for exhaustive
// switches in LaunchRecorder and the driver-operation builder (see
// spec.md Sec 9: "model OfferRecommendation as a tagged variant ... rather
// than a class hierarchy").
type Kind string

const (
	KindReserve       Kind = "RESERVE"
	KindUnreserve     Kind = "UNRESERVE"
	KindCreateVolume  Kind = "CREATE"
	KindDestroyVolume Kind = "DESTROY"
	KindLaunch        Kind = "LAUNCH"
)

// Recommendation is one unit of the evaluator's output: a single resource
// or launch operation to perform against a specific offer.
type Recommendation struct {
	Kind Kind

	OfferID string
	AgentID string
	PodType string
	Index   int
	TaskName string

	// Reserve / Unreserve
	Resource offer.Resource

	// CreateVolume / DestroyVolume
	Volume *offer.PersistentVolume

	// Launch
	TaskInfo     offer.TaskInfo
	ShouldLaunch bool
}

// PodInstanceName returns the pod instance this recommendation belongs to.
func (r Recommendation) PodInstanceName() string {
	if r.PodType == "" {
		return ""
	}
	return r.PodType + "-" + strconv.Itoa(r.Index)
}
