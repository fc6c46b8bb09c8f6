package identity_test

import (
	"testing"

	"github.com/matryer/is"
	"github.com/shoalproj/shoal/internal/identity"
)

func TestAllocate_PrimaryGetsBasePorts(t *testing.T) {
	is := is.New(t)

	b := identity.Allocate(identity.PrimaryInstanceID)
	is.Equal(b.Frontend, identity.FrontendBase)
	is.Equal(b.Backend, identity.BackendBase)
}

func TestAllocate_StrictlyIncreasing(t *testing.T) {
	is := is.New(t)

	prev := identity.Allocate(1)
	for id := 2; id <= 200; id++ {
		b := identity.Allocate(id)
		is.True(b.Frontend > prev.Frontend)
		is.True(b.Backend > prev.Backend)
		prev = b
	}
}

func TestAllocate_Injective(t *testing.T) {
	frontends := make(map[int]int)
	backends := make(map[int]int)

	for id := 1; id <= 500; id++ {
		b := identity.Allocate(id)
		if other, ok := frontends[b.Frontend]; ok {
			t.Fatalf("frontend port %d allocated to both instance %d and %d", b.Frontend, other, id)
		}
		if other, ok := backends[b.Backend]; ok {
			t.Fatalf("backend port %d allocated to both instance %d and %d", b.Backend, other, id)
		}
		frontends[b.Frontend] = id
		backends[b.Backend] = id
	}
}

func TestAllocate_Deterministic(t *testing.T) {
	is := is.New(t)

	for id := 1; id <= 50; id++ {
		is.Equal(identity.Allocate(id), identity.Allocate(id))
	}
}

func TestPortBinding_URLs(t *testing.T) {
	is := is.New(t)

	b := identity.Allocate(3)
	is.Equal(b.FrontendURL(), "http://localhost:8503")
	is.Equal(b.BackendURL(), "http://localhost:8003")
}

func TestTopology_Valid(t *testing.T) {
	is := is.New(t)

	is.True(identity.Primary.Valid())
	is.True(identity.Client.Valid())
	is.True(!identity.Topology("edge").Valid())
	is.True(!identity.Topology("").Valid())
}
