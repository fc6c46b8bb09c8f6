// Package identity maps instance ids to their network identity. The mapping
// is a pure function: no registry, no filesystem, no daemon state. Callers
// are responsible for not running two fleets with the same id.
package identity

import "fmt"

// Topology is the role a deployed instance plays.
type Topology string

const (
	// Primary hosts the accelerator-backed inference engine and its API.
	Primary Topology = "primary"
	// Client hosts a front end and a reverse proxy to the primary backend.
	Client Topology = "client"
)

// Valid reports whether t is a known topology.
func (t Topology) Valid() bool {
	return t == Primary || t == Client
}

// PrimaryInstanceID is the reserved id for the primary topology. Client
// instances conventionally start at 2, but any positive id works; the
// allocator does not care which role an id belongs to.
const PrimaryInstanceID = 1

const (
	// FrontendBase is the frontend port of instance 1.
	FrontendBase = 8501
	// BackendBase is the backend port of instance 1.
	BackendBase = 8001
)

// Descriptor identifies one deployed instance for the lifetime of a
// deployment operation.
type Descriptor struct {
	InstanceID int
	Topology   Topology
}

// PortBinding is the port pair an instance owns exclusively.
type PortBinding struct {
	Frontend int
	Backend  int
}

// Allocate resolves the port pair for an instance id. The mapping is strictly
// increasing in the id, so distinct ids never collide on either port. Ids
// below 1 are a caller bug; they are validated at the CLI boundary.
func Allocate(instanceID int) PortBinding {
	return PortBinding{
		Frontend: FrontendBase + (instanceID - 1),
		Backend:  BackendBase + (instanceID - 1),
	}
}

// FrontendURL returns the local URL of the instance's frontend port.
func (b PortBinding) FrontendURL() string {
	return fmt.Sprintf("http://localhost:%d", b.Frontend)
}

// BackendURL returns the local URL of the instance's backend port.
func (b PortBinding) BackendURL() string {
	return fmt.Sprintf("http://localhost:%d", b.Backend)
}
