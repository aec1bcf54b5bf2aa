package evaluator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/spec"
)

func simpleRequirement() PodInstanceRequirement {
	return PodInstanceRequirement{
		PodType:      "p0",
		Index:        0,
		ShouldLaunch: true,
		Tasks: []TaskRequirement{
			{
				TaskName: "p0-0",
				Resources: []spec.ResourceRequirement{
					{Type: "cpus", Role: "svc-role", Scalar: 1},
				},
			},
		},
	}
}

// S1 — Fresh deploy, one pod, one task, offer fits.
func TestEvaluate_OfferFits(t *testing.T) {
	e := NewEvaluator("svc-role", "svc-principal", nil)
	o := offer.Offer{
		ID:      "O1",
		AgentID: "A1",
		Resources: []offer.Resource{
			{Type: offer.ResourceCPUs, Scalar: 3, Role: "svc-role"},
		},
	}
	recs := e.Evaluate(simpleRequirement(), []offer.Offer{o})
	require.Len(t, recs, 2)
	require.Equal(t, KindReserve, recs[0].Kind)
	require.Equal(t, "O1", recs[0].OfferID)
	require.Equal(t, KindLaunch, recs[1].Kind)
	require.True(t, recs[1].ShouldLaunch)
	require.NotEmpty(t, recs[1].TaskInfo.Resources[0].ReservationID())
}

// S2 — Offer doesn't fit.
func TestEvaluate_OfferTooSmall(t *testing.T) {
	tracker := NewOutcomeTracker(10)
	e := NewEvaluator("svc-role", "svc-principal", tracker)
	o := offer.Offer{
		ID:      "O2",
		AgentID: "A1",
		Resources: []offer.Resource{
			{Type: offer.ResourceCPUs, Scalar: 0.5, Role: "svc-role"},
		},
	}
	recs := e.Evaluate(simpleRequirement(), []offer.Offer{o})
	require.Nil(t, recs)
	outcomes := tracker.Recent()
	require.Len(t, outcomes, 1)
	require.False(t, outcomes[0].Passed)
	require.Contains(t, outcomes[0].Reason, "insufficient cpus")
}

func TestEvaluate_PrefersExistingReservation(t *testing.T) {
	e := NewEvaluator("svc-role", "svc-principal", nil)
	existing := &offer.TaskInfo{
		Name:   "p0-0",
		TaskID: "T1",
		Resources: []offer.Resource{
			{Type: offer.ResourceCPUs, Scalar: 1, Role: "svc-role", Reservation: &offer.Reservation{Role: "svc-role", Principal: "svc-principal", ResourceID: "R1"}},
		},
	}
	req := simpleRequirement()
	req.Tasks[0].Existing = existing
	o := offer.Offer{
		ID:      "O3",
		AgentID: "A1",
		Resources: []offer.Resource{
			{Type: offer.ResourceCPUs, Scalar: 3, Role: "svc-role"},
		},
	}
	recs := e.Evaluate(req, []offer.Offer{o})
	require.Len(t, recs, 1)
	require.Equal(t, KindLaunch, recs[0].Kind)
	require.Equal(t, "R1", recs[0].TaskInfo.Resources[0].ReservationID())
}

func TestEvaluate_HostnameUniquenessSkipsOffer(t *testing.T) {
	e := NewEvaluator("svc-role", "svc-principal", nil)
	req := simpleRequirement()
	req.PlacementRules = []spec.PlacementRule{{Kind: "hostname-unique"}}
	req.SiblingAgentIDs = map[string]bool{"A1": true}
	o := offer.Offer{
		ID:      "O4",
		AgentID: "A1",
		Resources: []offer.Resource{
			{Type: offer.ResourceCPUs, Scalar: 3, Role: "svc-role"},
		},
	}
	recs := e.Evaluate(req, []offer.Offer{o})
	require.Nil(t, recs)
}
