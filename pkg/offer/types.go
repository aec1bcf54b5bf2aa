// Package offer defines the data model exchanged with the master: offers,
// resources, reservations, and the task bookkeeping records the scheduler
// keeps durable in the StateStore.
package offer

// ResourceType identifies the kind of resource a master offer carries.
type ResourceType string

const (
	ResourceCPUs  ResourceType = "cpus"
	ResourceMem   ResourceType = "mem"
	ResourceDisk  ResourceType = "disk"
	ResourcePorts ResourceType = "ports"
)

// Reservation ties a resource to a task across reboots. The ResourceID is
// the durable handle: it is generated once, at reservation time, and never
// changes for the lifetime of the reservation.
type Reservation struct {
	Role       string
	Principal  string
	ResourceID string
}

// PersistentVolume describes the persistent-disk record optionally carried
// by a DISK resource.
type PersistentVolume struct {
	VolumeID      string
	ContainerPath string
}

// Resource is a single typed resource slice as offered by, or reserved on,
// an agent.
type Resource struct {
	Type ResourceType
	// Scalar holds the quantity for CPUS/MEM/DISK. Ignored for PORTS.
	Scalar float64
	// Ranges holds inclusive [Begin,End] port ranges for PORTS. Ignored
	// otherwise.
	Ranges      []PortRange
	Role        string
	Reservation *Reservation
	Volume      *PersistentVolume
}

// PortRange is an inclusive range of port numbers.
type PortRange struct {
	Begin uint64
	End   uint64
}

// ReservationID returns the resource-id of the resource's reservation, or
// the empty string if the resource is unreserved.
func (r Resource) ReservationID() string {
	if r.Reservation == nil {
		return ""
	}
	return r.Reservation.ResourceID
}

// Offer is an opaque, short-lived bundle of resources on one agent.
type Offer struct {
	ID        string
	AgentID   string
	Hostname  string
	Resources []Resource
}

// ResourcesWithRole returns the subset of the offer's resources whose role
// is in the supplied whitelist. An empty whitelist matches every role.
func (o Offer) ResourcesWithRole(roles map[string]bool) []Resource {
	if len(roles) == 0 {
		return o.Resources
	}
	out := make([]Resource, 0, len(o.Resources))
	for _, r := range o.Resources {
		if roles[r.Role] {
			out = append(out, r)
		}
	}
	return out
}

// HasRole reports whether any resource in the offer carries a role present
// in roles. Used to decide whether an offer is worth declining quickly vs.
// forwarding to the evaluator at all.
func (o Offer) HasRole(roles map[string]bool) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range o.Resources {
		if roles[r.Role] {
			return true
		}
	}
	return false
}
