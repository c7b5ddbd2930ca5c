package proxy

import (
	"github.com/meshcore/sidecar/collaborators"
)

// Endpoint is the resolved target of a concrete destination: a socket
// address plus whatever identity and protocol hint discovery attached to
// it. Two endpoints are equal iff address, identity, and
// protocol agree; opaque metadata is ignored for identity.
type Endpoint struct {
	Addr        string
	Identity    collaborators.Identity
	HasIdentity bool
	Protocol    collaborators.Protocol
	Meta        collaborators.EndpointMeta
}

// Equal compares two endpoints for identity, ignoring Meta.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.Addr == o.Addr &&
		e.HasIdentity == o.HasIdentity &&
		e.Identity == o.Identity &&
		e.Protocol == o.Protocol
}

// EndpointMetaStore is a minimal lookup for discovery metadata by address,
// answered by the lookup function it wraps; it backs EndpointSupportsH2
// for the original-protocol upgrade decision. It holds no data of its own
// and nothing in the outbound assembly builds one.
type EndpointMetaStore struct {
	get func(addr string) (collaborators.EndpointMeta, bool)
}

// NewEndpointMetaStore wraps a lookup function, typically backed by the
// same map the balancer's endpoint set maintains.
func NewEndpointMetaStore(get func(addr string) (collaborators.EndpointMeta, bool)) *EndpointMetaStore {
	return &EndpointMetaStore{get: get}
}

// SupportsH2 implements EndpointSupportsH2 by checking whether the
// "protocol" metadata key discovery attached to addr is "h2".
func (s *EndpointMetaStore) SupportsH2(addr string) bool {
	if s == nil || s.get == nil {
		return false
	}
	meta, ok := s.get(addr)
	if !ok {
		return false
	}
	return meta["protocol"] == "h2"
}
