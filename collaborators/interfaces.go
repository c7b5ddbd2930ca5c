package collaborators

import (
	"context"
	"net"
	"time"
)

// ProfileClient is the control-plane profile collaborator :
// GetRoutes never closes its channel until ctx is cancelled, and may send
// zero or more updates. Implementations must not block a send on the
// reader: the profiles engine drains non-blocking (see ), so
// a bounded or best-effort channel is expected.
type ProfileClient interface {
	GetRoutes(ctx context.Context, destination string) (<-chan Routes, error)
}

// DiscoveryEventKind distinguishes Add and Remove discovery updates
type DiscoveryEventKind int

const (
	DiscoveryAdd DiscoveryEventKind = iota
	DiscoveryRemove
)

// EndpointMeta is the opaque discovery metadata attached to an Add event;
// it is ignored for endpoint identity comparisons.
type EndpointMeta map[string]string

// DiscoveryEvent is one Add/Remove update for a concrete destination
type DiscoveryEvent struct {
	Kind DiscoveryEventKind
	Addr string
	Meta EndpointMeta
}

// DiscoveryClient is the control-plane discovery collaborator.
type DiscoveryClient interface {
	Resolve(ctx context.Context, concrete string) (<-chan DiscoveryEvent, error)
}

// DnsResolver is the DNS collaborator : Refine must honor
// the returned TTL (ValidUntil).
type DnsResolver interface {
	Refine(ctx context.Context, name string) (canonical string, validUntil time.Time, err error)
}

// Identity is an opaque mesh identity string (e.g. a SPIFFE URI).
type Identity string

// IdentityProvider supplies the local identity used for mTLS client auth
// A proxy instance with no configured identity returns ok=false.
type IdentityProvider interface {
	LocalIdentity() (id Identity, ok bool)
}

// TerminatedConn is what TlsTerminator hands back after a successful
// handshake: the negotiated inner transport plus whatever the handshake
// revealed about the peer.
type TerminatedConn struct {
	Conn           net.Conn
	PeerIdentity   Identity
	HasPeerIdentity bool
	NegotiatedALPN string
}

// TlsTerminator takes a raw connection and returns the negotiated
// inner connection plus peer identity. It is out of scope to
// specify handshake mechanics, certificate issuance, or rotation.
type TlsTerminator interface {
	Terminate(ctx context.Context, raw net.Conn) (TerminatedConn, error)
}

// Protocol is the three-way sniff result ProtocolDetector reports.
type Protocol int

const (
	ProtocolHTTP1 Protocol = iota
	ProtocolHTTP2
	ProtocolNotHTTP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP1:
		return "HTTP/1"
	case ProtocolHTTP2:
		return "HTTP/2"
	default:
		return "NotHTTP"
	}
}

// ProtocolDetector sniffs up to an implementation-defined number of bytes,
// with a deadline, to decide how to route the connection.
// The returned net.Conn must replay any bytes it peeked so the caller sees
// an unconsumed stream.
type ProtocolDetector interface {
	Detect(ctx context.Context, conn net.Conn) (Protocol, net.Conn, error)
}

// CounterHandle is a single registered counter, optionally partitioned by
// label values supplied at increment time.
type CounterHandle interface {
	Inc()
	Add(delta float64)
}

// HistogramHandle is a single registered histogram/summary.
type HistogramHandle interface {
	Observe(value float64)
}

// GaugeHandle is a single registered gauge.
type GaugeHandle interface {
	Set(value float64)
	Add(delta float64)
}

// MetricsSink is the metrics collaborator : the core only
// registers and records; formatting/exposition is the sink's business.
type MetricsSink interface {
	Counter(name string, labels map[string]string) CounterHandle
	Histogram(name string, labels map[string]string) HistogramHandle
	Gauge(name string, labels map[string]string) GaugeHandle
}
