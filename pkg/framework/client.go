package framework

import (
	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/offer"
)

// ClientStatus reports whether the event client (ServiceScheduler) still
// wants offers.
type ClientStatus int

const (
	StatusRunning ClientStatus = iota
	StatusFinished
	StatusUninstalled
)

// ProcessResult tags an Offers response: whether the client is ready for
// more offers right away (Processed, decline remainder with the long
// interval) or wants to see offers again soon (NotReady, decline remainder
// with the short interval).
type ProcessResult int

const (
	Processed ProcessResult = iota
	NotReady
)

// OfferResponse is what EventClient.Offers returns for one batch.
type OfferResponse struct {
	Result          ProcessResult
	Recommendations []evaluator.Recommendation
}

// EventClient is the ServiceScheduler-facing contract OfferProcessor
// drives: the single-threaded worker calls these methods exclusively, so
// implementations need no internal locking against this package.
type EventClient interface {
	Status() ClientStatus
	Offers(batch []offer.Offer) OfferResponse
	// UnexpectedResources returns, from the unused portion of a batch,
	// any resources reserved by this framework that no live TaskInfo
	// references — eligible for Unreserve/Destroy.
	UnexpectedResources(unused []offer.Offer) []evaluator.Recommendation
	Unregistered()
}

// ResourceReleaseNotifier is an optional EventClient capability: clients
// that track resource-ids through to confirmed release (DeployScheduler,
// advancing decommission teardown steps) implement it. OfferProcessor
// calls it once the driver has actually accepted an Unreserve/Destroy for
// a resource surfaced by UnexpectedResources.
type ResourceReleaseNotifier interface {
	ResourceReleased(resourceID string)
}
