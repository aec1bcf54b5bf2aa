// Package spec defines the declarative ServiceSpec: pods, tasks, resource
// requirements, placement rules, and the named plans that describe how to
// deploy them.
package spec

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"
)

// ResourceRequirement names a resource a task needs; Scalar is a cpu/mem/
// disk quantity. There is no field for a port count.
type ResourceRequirement struct {
	Type   string
	Role   string
	Scalar float64
}

// PlacementRule constrains which agents a pod instance may land on.
type PlacementRule struct {
	// Kind is one of: "region", "zone", "attribute", "hostname-unique",
	// "colocate".
	Kind  string
	Key   string
	Value string
	// ColocateWithPod names another pod type this rule requires
	// colocation with; only meaningful when Kind == "colocate".
	ColocateWithPod string
}

// TaskSpec is one task within a pod.
type TaskSpec struct {
	Name      string
	Command   string
	Resources []ResourceRequirement
}

// PodSpec is a colocated group of tasks sharing an executor, replicated
// Count times.
type PodSpec struct {
	Type           string
	Count          int
	Tasks          []TaskSpec
	PlacementRules []PlacementRule
}

// StepSpec names a unit of deployment work: which pod instance to launch
// (PodType/Index) or, for non-launch steps (e.g. decommission
// teardown), which pod instance to operate on.
type StepSpec struct {
	Name    string
	PodType string
	Index   int
}

// PhaseSpec is an ordered sequence of steps.
type PhaseSpec struct {
	Name  string
	Steps []StepSpec
}

// PlanSpec is a named, ordered sequence of phases.
type PlanSpec struct {
	Name   string
	Phases []PhaseSpec
}

// ServiceSpec is the full declarative description of the service: pods,
// their tasks and resources, placement rules, and deployment plans.
type ServiceSpec struct {
	Name string
	// MinSchedulerVersion, if set, is the lowest scheduler semantic
	// version able to run this spec; ConfigStore.SetTargetConfig refuses
	// to activate a spec requiring a newer scheduler than is running.
	MinSchedulerVersion string
	Pods                []PodSpec
	Plans               []PlanSpec
}

// IdentityHash computes a stable hash over the spec's content: the
// identity changes if and only if something a deployment plan would need
// to re-converge on has changed. Field order in the Go struct never affects
// the result, and pods, tasks, resources, placement rules and plans are
// sorted before hashing; phases and steps are hashed in their declared
// order, so reordering them changes the hash.
func (s ServiceSpec) IdentityHash() uint64 {
	h := fnv.New64a()
	writeString(h, "name", s.Name)
	pods := append([]PodSpec(nil), s.Pods...)
	sort.Slice(pods, func(i, j int) bool { return pods[i].Type < pods[j].Type })
	for _, p := range pods {
		hashPod(h, p)
	}
	plans := append([]PlanSpec(nil), s.Plans...)
	sort.Slice(plans, func(i, j int) bool { return plans[i].Name < plans[j].Name })
	for _, p := range plans {
		hashPlan(h, p)
	}
	return h.Sum64()
}

func writeString(h interface{ Write([]byte) (int, error) }, label, v string) {
	_, _ = h.Write([]byte(label))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(v))
	_, _ = h.Write([]byte{0})
}

func writeFloat(h interface{ Write([]byte) (int, error) }, v float64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v*1e9))
	_, _ = h.Write(buf[:])
}

func writeInt(h interface{ Write([]byte) (int, error) }, v int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, _ = h.Write(buf[:])
}

func hashPod(h interface{ Write([]byte) (int, error) }, p PodSpec) {
	writeString(h, "pod", p.Type)
	writeInt(h, p.Count)
	tasks := append([]TaskSpec(nil), p.Tasks...)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	for _, t := range tasks {
		writeString(h, "task", t.Name)
		writeString(h, "cmd", t.Command)
		res := append([]ResourceRequirement(nil), t.Resources...)
		sort.Slice(res, func(i, j int) bool {
			if res[i].Type != res[j].Type {
				return res[i].Type < res[j].Type
			}
			return res[i].Role < res[j].Role
		})
		for _, r := range res {
			writeString(h, "res", r.Type)
			writeString(h, "role", r.Role)
			writeFloat(h, r.Scalar)
		}
	}
	rules := append([]PlacementRule(nil), p.PlacementRules...)
	sort.Slice(rules, func(i, j int) bool {
		return fmt.Sprintf("%v", rules[i]) < fmt.Sprintf("%v", rules[j])
	})
	for _, r := range rules {
		writeString(h, "rule", r.Kind+"|"+r.Key+"|"+r.Value+"|"+r.ColocateWithPod)
	}
}

func hashPlan(h interface{ Write([]byte) (int, error) }, p PlanSpec) {
	writeString(h, "plan", p.Name)
	for _, ph := range p.Phases {
		writeString(h, "phase", ph.Name)
		for _, st := range ph.Steps {
			writeString(h, "step", st.Name)
			writeString(h, "podtype", st.PodType)
			writeInt(h, st.Index)
		}
	}
}

// PodInstanceName returns the stable name of the i'th instance of pod type
// podType, e.g. "p0-0".
func PodInstanceName(podType string, index int) string {
	return fmt.Sprintf("%s-%d", podType, index)
}

// Pod looks up a pod spec by type.
func (s ServiceSpec) Pod(podType string) (PodSpec, bool) {
	for _, p := range s.Pods {
		if p.Type == podType {
			return p, true
		}
	}
	return PodSpec{}, false
}

// Plan looks up a named plan.
func (s ServiceSpec) Plan(name string) (PlanSpec, bool) {
	for _, p := range s.Plans {
		if p.Name == name {
			return p, true
		}
	}
	return PlanSpec{}, false
}
