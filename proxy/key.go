// Package proxy assembles components C1-C8 into the ingress/egress stacks
// (component C9): concrete routing keys, endpoint
// construction, and the outbound/inbound request pipelines built from
// them. Only the key extractors, endpoint constructors, and default TLS
// policy differ between the two sides; everything beneath is shared.
package proxy

import (
	"errors"
	"net/http"
	"strings"

	"github.com/meshcore/sidecar/collaborators"
)

var errNoDestination = errors.New("proxy: request carries no logical destination")

// SettingsKind is the three-way tag 's HTTP settings union.
type SettingsKind int

const (
	SettingsHTTP1 SettingsKind = iota
	SettingsHTTP2
	SettingsNotHTTP
)

// HTTPSettings is derived once per request from method, version, scheme,
// and headers.
type HTTPSettings struct {
	Kind            SettingsKind
	KeepAlive       bool
	WantsH1Upgrade  bool
	WasAbsoluteForm bool
}

// DeriveSettings builds HTTPSettings for req given the sniffed protocol.
func DeriveSettings(req *http.Request, proto collaborators.Protocol) HTTPSettings {
	switch proto {
	case collaborators.ProtocolHTTP2:
		return HTTPSettings{Kind: SettingsHTTP2}
	case collaborators.ProtocolNotHTTP:
		return HTTPSettings{Kind: SettingsNotHTTP}
	default:
		return HTTPSettings{
			Kind:            SettingsHTTP1,
			KeepAlive:       !strings.EqualFold(req.Header.Get("Connection"), "close") && req.ProtoAtLeast(1, 1),
			WantsH1Upgrade:  req.Header.Get("Upgrade") != "",
			WasAbsoluteForm: req.URL.IsAbs(),
		}
	}
}

// Key is the opaque, comparable routing key : outbound and
// inbound keys are distinct structs satisfying this marker so svc.Router
// and svc/cache can be instantiated once over either.
type Key interface {
	isProxyKey()
}

// OutboundKey encodes a client-side request's logical destination plus its
// HTTP settings.
type OutboundKey struct {
	Destination string
	Settings    HTTPSettings
}

func (OutboundKey) isProxyKey() {}

// InboundKey encodes a server-side request's target socket, logical name
// if any, HTTP settings, and peer identity.
type InboundKey struct {
	TargetAddr   string
	LogicalName  string
	Settings     HTTPSettings
	PeerIdentity collaborators.Identity
}

func (InboundKey) isProxyKey() {}

// OutboundDestination derives the logical destination name from a
// request's authority, matching the original's "the client-facing Host
// decides where we route" outbound key derivation.
func OutboundDestination(req *http.Request) string {
	if h := req.Host; h != "" {
		return h
	}
	return req.URL.Host
}

// ExtractOutboundKey supplies the outbound router's key (an OutboundKey). The
// request's protocol comes from RequestState, attached by the listener's
// accept-time sniff.
func ExtractOutboundKey(req *http.Request) (Key, error) {
	dest := OutboundDestination(req)
	if dest == "" {
		return nil, errNoDestination
	}
	return OutboundKey{Destination: dest, Settings: DeriveSettings(req, StateFrom(req.Context()).Protocol)}, nil
}

// InboundLogicalName recovers the logical destination name a client
// believes it is reaching, preferring the mesh-internal canonical header
// over Host, "header-canonical, authority, host, or
// original socket".
func InboundLogicalName(req *http.Request) string {
	if v := req.Header.Get(HeaderDstCanonical); v != "" {
		return v
	}
	if req.Host != "" {
		return req.Host
	}
	return req.URL.Host
}

// ExtractInboundKey supplies the inbound router's key (an InboundKey): target
// socket and peer identity come from the RequestState the listener
// attached at accept time.
func ExtractInboundKey(req *http.Request) (Key, error) {
	state := StateFrom(req.Context())
	return InboundKey{
		TargetAddr:   state.TargetAddr,
		LogicalName:  InboundLogicalName(req),
		Settings:     DeriveSettings(req, state.Protocol),
		PeerIdentity: state.PeerIdentity,
	}, nil
}

// HTTPExtractor adapts *http.Request to profiles.Extractor for route
// matching against method, path, and headers.
func HTTPExtractor(req *http.Request) (method, path string, headers map[string][]string) {
	return req.Method, req.URL.Path, req.Header
}
