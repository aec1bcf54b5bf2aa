package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/takirala/dcos-commons/internal/mock"
	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/spec"
)

func twoNodeSpec() spec.ServiceSpec {
	return mock.ServiceSpec("svc", "p0", "*", 2)
}

func TestNewDeploymentManager_BuildsStepsForEveryInstance(t *testing.T) {
	mgr, err := NewDeploymentManager(twoNodeSpec(), "deploy", func(string) (offer.TaskInfo, bool) { return offer.TaskInfo{}, false })
	require.NoError(t, err)
	steps := mgr.Plan().AllSteps()
	require.Len(t, steps, 2)
	require.Equal(t, "p0-0", steps[0].PodInstance)
	require.Equal(t, "p0-1", steps[1].PodInstance)
}

func TestNewDeploymentManager_UnknownPlanName(t *testing.T) {
	_, err := NewDeploymentManager(twoNodeSpec(), "missing", func(string) (offer.TaskInfo, bool) { return offer.TaskInfo{}, false })
	require.Error(t, err)
}

func TestNewDeploymentManager_StepPrepareReusesExistingReservation(t *testing.T) {
	existing := offer.TaskInfo{Name: "p0-0-server", TaskID: "T1"}
	lookup := func(name string) (offer.TaskInfo, bool) {
		if name == "p0-0-server" {
			return existing, true
		}
		return offer.TaskInfo{}, false
	}
	mgr, err := NewDeploymentManager(twoNodeSpec(), "deploy", lookup)
	require.NoError(t, err)
	steps := mgr.Plan().AllSteps()
	require.NoError(t, steps[0].Start())
	req := steps[0].Requirement()
	require.NotNil(t, req.Tasks[0].Existing)
	require.Equal(t, "T1", req.Tasks[0].Existing.TaskID)
}
