// Package mock provides fixture constructors for offers, tasks, and
// service specs used across pkg/evaluator, pkg/plan, pkg/scheduler, and
// pkg/framework tests.
package mock

import (
	"fmt"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/takirala/dcos-commons/pkg/offer"
	"github.com/takirala/dcos-commons/pkg/spec"
)

func id() string {
	u, _ := uuid.GenerateUUID()
	return u
}

// Offer returns an unreserved offer with cpu/mem/disk/port resources, on a
// fresh agent id.
func Offer() offer.Offer {
	return offer.Offer{
		ID:       id(),
		AgentID:  id(),
		Hostname: "agent.mesos",
		Resources: []offer.Resource{
			{Type: offer.ResourceCPUs, Scalar: 4, Role: "*"},
			{Type: offer.ResourceMem, Scalar: 4096, Role: "*"},
			{Type: offer.ResourceDisk, Scalar: 10240, Role: "*"},
			{Type: offer.ResourcePorts, Role: "*", Ranges: []offer.PortRange{{Begin: 31000, End: 32000}}},
		},
	}
}

// ReservedOffer returns an offer whose resources are already reserved under
// role/principal with resourceID, as if returned from a previous tick.
func ReservedOffer(role, principal, resourceID string) offer.Offer {
	o := Offer()
	res := &offer.Reservation{Role: role, Principal: principal, ResourceID: resourceID}
	for i := range o.Resources {
		o.Resources[i].Reservation = res
		o.Resources[i].Role = role
	}
	return o
}

// TaskSpec returns a single task asking for a small cpu/mem footprint under
// role.
func TaskSpec(name, role string) spec.TaskSpec {
	return spec.TaskSpec{
		Name:    name,
		Command: fmt.Sprintf("/bin/%s", name),
		Resources: []spec.ResourceRequirement{
			{Type: string(offer.ResourceCPUs), Role: role, Scalar: 0.5},
			{Type: string(offer.ResourceMem), Role: role, Scalar: 256},
		},
	}
}

// PodSpec returns a pod of type podType replicated count times, with one
// task named "server" under role.
func PodSpec(podType, role string, count int) spec.PodSpec {
	return spec.PodSpec{
		Type:  podType,
		Count: count,
		Tasks: []spec.TaskSpec{TaskSpec("server", role)},
	}
}

// ServiceSpec returns a minimal service with one pod type and a "deploy"
// plan launching every instance in a single phase.
func ServiceSpec(name, podType, role string, count int) spec.ServiceSpec {
	var steps []spec.StepSpec
	for i := 0; i < count; i++ {
		steps = append(steps, spec.StepSpec{
			Name:    fmt.Sprintf("%s-%d", podType, i),
			PodType: podType,
			Index:   i,
		})
	}
	return spec.ServiceSpec{
		Name: name,
		Pods: []spec.PodSpec{PodSpec(podType, role, count)},
		Plans: []spec.PlanSpec{
			{
				Name: "deploy",
				Phases: []spec.PhaseSpec{
					{Name: "nodes", Steps: steps},
				},
			},
		},
	}
}

// TaskInfo returns a launched TaskInfo for podInstance's "server" task,
// holding one reserved cpu and one reserved mem resource.
func TaskInfo(podInstance, role, principal string) offer.TaskInfo {
	name := fmt.Sprintf("%s-server", podInstance)
	return offer.TaskInfo{
		Name:    name,
		TaskID:  id(),
		PodName: podInstance,
		Command: "/bin/server",
		Resources: []offer.Resource{
			{Type: offer.ResourceCPUs, Scalar: 0.5, Role: role, Reservation: &offer.Reservation{Role: role, Principal: principal, ResourceID: id()}},
			{Type: offer.ResourceMem, Scalar: 256, Role: role, Reservation: &offer.Reservation{Role: role, Principal: principal, ResourceID: id()}},
		},
	}
}

// TaskStatus returns a TaskStatus report of state for taskID.
func TaskStatus(taskID string, state offer.TaskState) offer.TaskStatus {
	return offer.TaskStatus{TaskID: taskID, State: state}
}
