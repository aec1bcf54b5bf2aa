package scheduler

import (
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/takirala/dcos-commons/pkg/evaluator"
	"github.com/takirala/dcos-commons/pkg/framework"
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/store"
)

// SecretsDeleter deletes any TLS secrets provisioned for the service.
// Implemented upstream against whatever secrets store is in play; nil is a
// legal value (no secrets were provisioned, or deletion isn't wired for
// this deployment).
type SecretsDeleter interface {
	DeleteSecrets(serviceName string) error
}

// UninstallDeps bundles UninstallScheduler's construction dependencies.
type UninstallDeps struct {
	Driver      framework.Driver
	PS          store.PersistentStore
	Frameworks  *store.FrameworkStore
	States      *store.StateStore
	Secrets     SecretsDeleter
	ServiceName string
	Logger      hclog.Logger
}

// UninstallScheduler drives the single uninstall plan (spec.md Sec 4.11):
// flag the uninstall bit, kill every task, unreserve every resource and
// destroy every volume as it is offered back, delete TLS secrets, and
// signal OfferProcessor to delete all persistent state and deregister the
// framework. It shares the same stores as the DeployScheduler it replaces.
type UninstallScheduler struct {
	logger      hclog.Logger
	driver      framework.Driver
	frameworks  *store.FrameworkStore
	states      *store.StateStore
	uninstalls  *store.UninstallStore
	secrets     SecretsDeleter
	serviceName string

	mu               sync.Mutex
	killed           bool
	pendingResources map[string]bool
	secretsDeleted   bool
}

// NewUninstallScheduler constructs an UninstallScheduler, persists the
// uninstall bit, and kills every currently-running task immediately (the
// kill is unconditional and does not wait for an offer).
func NewUninstallScheduler(deps UninstallDeps) (*UninstallScheduler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("uninstall-scheduler")

	u := &UninstallScheduler{
		logger:           logger,
		driver:           deps.Driver,
		frameworks:       deps.Frameworks,
		states:           deps.States,
		uninstalls:       store.NewUninstallStore(deps.PS),
		secrets:          deps.Secrets,
		serviceName:      deps.ServiceName,
		pendingResources: map[string]bool{},
	}
	if err := u.uninstalls.SetUninstalling(); err != nil {
		return nil, err
	}
	if err := u.killAllAndSnapshot(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *UninstallScheduler) killAllAndSnapshot() error {
	tasks, err := u.states.FetchTasks()
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, t := range tasks {
		for _, id := range t.ResourceIDs() {
			u.pendingResources[id] = true
		}
		if t.TaskID == offer.EmptyTaskID {
			continue
		}
		if err := u.driver.KillTask(t.TaskID); err != nil {
			u.logger.Error("failed to kill task during uninstall", "task", t.Name, "error", err)
		}
	}
	u.killed = true
	if len(u.pendingResources) == 0 {
		u.maybeDeleteSecretsLocked()
	}
	return nil
}

// Status implements framework.EventClient.
func (u *UninstallScheduler) Status() framework.ClientStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.killed && len(u.pendingResources) == 0 && u.secretsDeleted {
		return framework.StatusUninstalled
	}
	return framework.StatusRunning
}

// Offers implements framework.EventClient: matches offers only against
// resources this framework still has reserved, emitting Unreserve/Destroy
// recommendations for them; every other offer is left unmatched and
// declined long by OfferProcessor.
func (u *UninstallScheduler) Offers(batch []offer.Offer) framework.OfferResponse {
	u.mu.Lock()
	defer u.mu.Unlock()

	var recs []evaluator.Recommendation
	for _, o := range batch {
		for _, r := range o.Resources {
			id := r.ReservationID()
			if id == "" || !u.pendingResources[id] {
				continue
			}
			recs = append(recs, evaluator.Recommendation{Kind: evaluator.KindUnreserve, OfferID: o.ID, AgentID: o.AgentID, Resource: r})
			if r.Volume != nil {
				recs = append(recs, evaluator.Recommendation{Kind: evaluator.KindDestroyVolume, OfferID: o.ID, AgentID: o.AgentID, Resource: r, Volume: r.Volume})
			}
			delete(u.pendingResources, id)
		}
	}
	if len(u.pendingResources) == 0 {
		u.maybeDeleteSecretsLocked()
	}
	return framework.OfferResponse{Result: framework.Processed, Recommendations: recs}
}

// UnexpectedResources implements framework.EventClient. Everything this
// scheduler cares about is already matched directly in Offers.
func (u *UninstallScheduler) UnexpectedResources(unused []offer.Offer) []evaluator.Recommendation {
	return nil
}

// Unregistered implements framework.EventClient: called by OfferProcessor
// immediately before it wipes persistent state and stops the driver.
func (u *UninstallScheduler) Unregistered() {
	u.logger.Info("uninstall complete, framework deregistering")
}

// Registered implements framework.RegistrationHandler. First registration
// and re-registration are handled identically (logged only), since the
// kill/unreserve snapshot was already taken at construction.
func (u *UninstallScheduler) Registered(frameworkID string, master framework.MasterInfo, reregistered bool) {
	u.logger.Info("registered with master during uninstall", "framework_id", frameworkID, "reregistered", reregistered)
}

// StatusUpdate implements framework.StatusHandler so kill confirmations are
// still recorded for diagnostics during teardown.
func (u *UninstallScheduler) StatusUpdate(status offer.TaskStatus) {
	if err := u.states.StoreStatus(status); err != nil {
		u.logger.Debug("dropping status update during uninstall", "task_id", status.TaskID, "error", err)
	}
}

func (u *UninstallScheduler) maybeDeleteSecretsLocked() {
	if u.secretsDeleted {
		return
	}
	if u.secrets != nil {
		if err := u.secrets.DeleteSecrets(u.serviceName); err != nil {
			u.logger.Error("failed to delete secrets during uninstall", "error", err)
			return
		}
	}
	u.secretsDeleted = true
}
