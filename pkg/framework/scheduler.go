package framework

import (
	"sync/atomic"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/takirala/dcos-commons/pkg/offer"
)

// MasterInfo is the master endpoint information carried by
// registered/reregistered callbacks. Fields beyond what this core
// consumes are out of scope (spec.md Sec 1).
type MasterInfo struct {
	ID string
}

// RegistrationHandler is invoked once per registered/reregistered
// callback; the ServiceScheduler implements it (spec.md Sec 4.10).
type RegistrationHandler interface {
	Registered(frameworkID string, master MasterInfo, reregistered bool)
}

// StatusHandler is invoked for every statusUpdate callback.
type StatusHandler interface {
	StatusUpdate(status offer.TaskStatus)
}

// FrameworkScheduler is the adapter invoked by the master driver on its own
// callback thread (spec.md Sec 5): it must return quickly and never block
// on I/O. Its only jobs are role-filtering offers and handing batches to
// the OfferProcessor's queue — all real work happens later, on the
// OfferProcessor's single worker goroutine.
type FrameworkScheduler struct {
	logger    hclog.Logger
	processor *OfferProcessor
	reg       RegistrationHandler
	status    StatusHandler
	roles     map[string]bool

	// apiServerStarted and registerCalled are the only cross-thread
	// atomics in the system (spec.md Sec 5): the driver callback thread
	// reads/writes them without going through the worker goroutine.
	apiServerStarted atomic.Bool
	registerCalled   atomic.Bool
}

// NewFrameworkScheduler constructs a FrameworkScheduler. roles is the role
// whitelist used to filter incoming offers' resources; an empty set
// matches every role.
func NewFrameworkScheduler(processor *OfferProcessor, reg RegistrationHandler, status StatusHandler, roles []string, logger hclog.Logger) *FrameworkScheduler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	return &FrameworkScheduler{
		logger:    logger.Named("framework-scheduler"),
		processor: processor,
		reg:       reg,
		status:    status,
		roles:     roleSet,
	}
}

// SetAPIServerStarted unblocks offer processing: no offer batch is
// forwarded to the OfferProcessor until this is set (spec.md Sec 5).
func (f *FrameworkScheduler) SetAPIServerStarted() {
	f.apiServerStarted.Store(true)
}

// Registered handles the master's registered() callback. A second call
// (following a master election) is treated as a re-registration, not a
// fresh registration (spec.md Sec 4.10; see DESIGN.md for the
// re-registration / cleaner-initialization Open Question).
func (f *FrameworkScheduler) Registered(frameworkID string, master MasterInfo) {
	reregistered := f.registerCalled.Swap(true)
	f.reg.Registered(frameworkID, master, reregistered)
}

// Reregistered handles the master's reregistered() callback.
func (f *FrameworkScheduler) Reregistered(master MasterInfo) {
	f.reg.Registered("", master, true)
}

// ResourceOffers handles the master's resourceOffers() callback: filters
// offers whose resources are entirely outside the role whitelist (spec.md
// Sec 8 property 6: offer filtering is role-scoped), declining those with
// the long interval, and enqueues the rest.
// Offers arriving before SetAPIServerStarted are declined with the short
// interval rather than queued.
func (f *FrameworkScheduler) ResourceOffers(offers []offer.Offer) {
	if !f.apiServerStarted.Load() {
		f.declineEarly(offers)
		return
	}
	matched := make([]offer.Offer, 0, len(offers))
	var unmatched []offer.Offer
	for _, o := range offers {
		if !o.HasRole(f.roles) {
			unmatched = append(unmatched, o)
			continue
		}
		filtered := o
		filtered.Resources = o.ResourcesWithRole(f.roles)
		matched = append(matched, filtered)
	}
	f.processor.declineAll(unmatched, RefuseLong)
	if len(matched) == 0 {
		return
	}
	f.processor.Enqueue(matched)
}

func (f *FrameworkScheduler) declineEarly(offers []offer.Offer) {
	f.logger.Debug("declining offers received before API server start", "count", len(offers))
	f.processor.DeclineShort(offers)
}

// OfferRescinded handles the master's offerRescinded() callback.
func (f *FrameworkScheduler) OfferRescinded(offerID string) {
	f.processor.Rescind(offerID)
}

// StatusUpdate handles the master's statusUpdate() callback.
func (f *FrameworkScheduler) StatusUpdate(status offer.TaskStatus) {
	f.status.StatusUpdate(status)
}
