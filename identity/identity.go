// Package identity implements the mesh TLS boundary: a TlsTerminator over
// crypto/tls and a static IdentityProvider sourced from a configured
// identity file.
package identity

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"

	"github.com/meshcore/sidecar/collaborators"
)

// StaticProvider is an IdentityProvider backed by a single identity
// resolved at startup (e.g. read from the node's mesh credential), rather
// than a rotating source. Rotation is out of scope.
type StaticProvider struct {
	identity collaborators.Identity
	ok       bool
}

// NewStaticProvider reads the identity from path, or returns a provider
// with ok=false if path is empty.
func NewStaticProvider(path string) (*StaticProvider, error) {
	if path == "" {
		return &StaticProvider{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: reading %s: %w", path, err)
	}
	return &StaticProvider{identity: collaborators.Identity(data), ok: true}, nil
}

func (p *StaticProvider) LocalIdentity() (collaborators.Identity, bool) {
	return p.identity, p.ok
}

// TLSTerminator terminates inbound mTLS connections using a *tls.Config
// built from the node's credentials, extracting the peer's SPIFFE-style
// identity from the verified certificate chain.
type TLSTerminator struct {
	Config *tls.Config
}

// NewTLSTerminator wraps cfg, forcing client certificate verification so
// every terminated connection carries a peer identity.
func NewTLSTerminator(cfg *tls.Config) *TLSTerminator {
	cp := cfg.Clone()
	if cp.ClientAuth == tls.NoClientCert {
		cp.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return &TLSTerminator{Config: cp}
}

func (t *TLSTerminator) Terminate(ctx context.Context, raw net.Conn) (collaborators.TerminatedConn, error) {
	tconn := tls.Server(raw, t.Config)
	if err := tconn.HandshakeContext(ctx); err != nil {
		return collaborators.TerminatedConn{}, collaborators.New(collaborators.KindConnectFailed, err)
	}
	state := tconn.ConnectionState()
	out := collaborators.TerminatedConn{Conn: tconn, NegotiatedALPN: state.NegotiatedProtocol}
	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		if len(leaf.URIs) > 0 {
			out.PeerIdentity = collaborators.Identity(leaf.URIs[0].String())
		} else {
			out.PeerIdentity = identityFromCert(leaf.Subject.CommonName)
		}
		out.HasPeerIdentity = true
	}
	return out, nil
}

func identityFromCert(commonName string) collaborators.Identity {
	return collaborators.Identity(commonName)
}
