package framework

import (
	"sync"
	"time"

	metrics "github.com/armon/go-metrics"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/store"
)

// batch is one unit of queued work: a set of offers from a single
// resourceOffers callback.
type batch struct {
	offers []offer.Offer
}

// OfferProcessor is a bounded (0 = unbounded) FIFO queue of offer batches
// drained by a single worker goroutine, mirroring the teacher's
// single-threaded Worker.run loop (nomad/nomad/worker.go): one goroutine
// owns all plan and store state, and a disableThreading mode collapses the
// worker onto the caller for deterministic tests.
type OfferProcessor struct {
	logger hclog.Logger
	driver Driver
	client EventClient
	ps     store.PersistentStore

	capacity  int
	disableGo bool

	mu      sync.Mutex
	cond    *sync.Cond
	pending []batch
	closed  bool

	// rescinded collects offer-ids rescinded before their batch was
	// dequeued; the worker filters them out before forwarding to the
	// client.
	rescinded map[string]bool
}

// Config configures an OfferProcessor.
type Config struct {
	Capacity         int // 0 = unbounded
	DisableThreading bool
	Logger           hclog.Logger
}

// NewOfferProcessor constructs and, unless DisableThreading is set, starts
// an OfferProcessor's worker goroutine.
func NewOfferProcessor(driver Driver, client EventClient, ps store.PersistentStore, cfg Config) *OfferProcessor {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	p := &OfferProcessor{
		logger:    logger.Named("offer-processor"),
		driver:    driver,
		client:    client,
		ps:        ps,
		capacity:  cfg.Capacity,
		disableGo: cfg.DisableThreading,
		rescinded: make(map[string]bool),
	}
	p.cond = sync.NewCond(&p.mu)
	if !p.disableGo {
		go p.run()
	}
	return p
}

// Enqueue adds a batch of offers for processing. When the queue is full,
// the batch is declined immediately with the short refuse interval rather
// than blocking the caller (the master-driver callback thread must never
// block, spec.md Sec 5).
func (p *OfferProcessor) Enqueue(offers []offer.Offer) {
	metrics.IncrCounter([]string{"offer_processor", "enqueue"}, float32(len(offers)))
	p.mu.Lock()
	if p.capacity > 0 && len(p.pending) >= p.capacity {
		p.mu.Unlock()
		p.logger.Warn("queue full, declining batch immediately", "count", len(offers))
		p.declineAll(offers, RefuseShort)
		return
	}
	p.pending = append(p.pending, batch{offers: offers})
	p.mu.Unlock()
	p.cond.Signal()

	if p.disableGo {
		p.drainOnce()
	}
}

// Rescind removes offerID from any still-pending batch, and records it so
// the worker filters it out even if it is mid-dequeue.
func (p *OfferProcessor) Rescind(offerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rescinded[offerID] = true
	for i := range p.pending {
		p.pending[i].offers = filterOut(p.pending[i].offers, offerID)
	}
}

func filterOut(offers []offer.Offer, id string) []offer.Offer {
	out := offers[:0]
	for _, o := range offers {
		if o.ID != id {
			out = append(out, o)
		}
	}
	return out
}

// Close stops the worker goroutine once every batch already queued has
// been processed.
func (p *OfferProcessor) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *OfferProcessor) run() {
	for {
		b, ok := p.dequeue()
		if !ok {
			return
		}
		p.process(b)
	}
}

// drainOnce processes exactly one pending batch synchronously, used when
// threading is disabled.
func (p *OfferProcessor) drainOnce() {
	b, ok := p.dequeue()
	if !ok {
		return
	}
	p.process(b)
}

func (p *OfferProcessor) dequeue() (batch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.pending) == 0 && !p.closed {
		if p.disableGo {
			return batch{}, false
		}
		p.cond.Wait()
	}
	if len(p.pending) == 0 {
		return batch{}, false
	}
	b := p.pending[0]
	p.pending = p.pending[1:]
	b.offers = p.filterRescindedLocked(b.offers)
	return b, true
}

func (p *OfferProcessor) filterRescindedLocked(offers []offer.Offer) []offer.Offer {
	if len(p.rescinded) == 0 {
		return offers
	}
	out := offers[:0]
	for _, o := range offers {
		if !p.rescinded[o.ID] {
			out = append(out, o)
		}
	}
	return out
}

func (p *OfferProcessor) process(b batch) {
	defer metrics.MeasureSince([]string{"offer_processor", "process_batch"}, time.Now())
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("recovered from panic while processing offer batch", "panic", r)
		}
	}()

	switch p.client.Status() {
	case StatusFinished:
		p.declineAll(b.offers, RefuseShort)
		return
	case StatusUninstalled:
		p.declineAll(b.offers, RefuseShort)
		_ = p.driver.Stop(false)
		p.client.Unregistered()
		if err := p.ps.RecursiveDelete("/"); err != nil {
			p.logger.Error("failed to delete persistent state on uninstall", "error", err)
		}
		return
	}

	resp := p.client.Offers(b.offers)
	acceptedOffers := map[string]bool{}
	if len(resp.Recommendations) > 0 {
		byOffer := map[string][]Operation{}
		for _, rec := range resp.Recommendations {
			byOffer[rec.OfferID] = append(byOffer[rec.OfferID], ToOperation(rec))
			acceptedOffers[rec.OfferID] = true
		}
		for offerID, ops := range byOffer {
			if err := p.driver.AcceptOffers([]string{offerID}, ops, Filters{}); err != nil {
				p.logger.Error("accept offers failed", "offer", offerID, "error", err)
			}
		}
	}

	declineInterval := RefuseLong
	if resp.Result == NotReady {
		declineInterval = RefuseShort
	}
	var unused []offer.Offer
	for _, o := range b.offers {
		if !acceptedOffers[o.ID] {
			unused = append(unused, o)
		}
	}
	p.declineAll(unused, declineInterval)

	notifier, _ := p.client.(ResourceReleaseNotifier)
	for _, rec := range p.client.UnexpectedResources(unused) {
		op := ToOperation(rec)
		id := rec.Resource.ReservationID()
		if err := p.driver.AcceptOffers([]string{rec.OfferID}, []Operation{op}, Filters{}); err != nil {
			p.logger.Error("failed to release unexpected resource", "resource", id, "error", err)
			continue
		}
		if notifier != nil && id != "" {
			notifier.ResourceReleased(id)
		}
	}
}

// DeclineShort declines every offer in offers with the short refuse
// interval, bypassing the queue entirely. FrameworkScheduler calls this
// for offers arriving before the API server has started (spec.md Sec 5:
// "until then, all offers are short-declined"), mirroring the original
// scheduler's OfferProcessor.declineShort.
func (p *OfferProcessor) DeclineShort(offers []offer.Offer) {
	p.declineAll(offers, RefuseShort)
}

func (p *OfferProcessor) declineAll(offers []offer.Offer, interval time.Duration) {
	for _, o := range offers {
		if err := p.driver.DeclineOffer(o.ID, Filters{RefuseSeconds: interval}); err != nil {
			p.logger.Error("decline offer failed", "offer", o.ID, "error", err)
		}
	}
}
