package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/meshcore/sidecar/collaborators"
)

// RequestState is the single typed context extension the core attaches to
// every request for collaborators to read: target socket, peer identity,
// matched route labels, elapsed-time tracker, canonical destination name,
// and classification verdict. It replaces ad hoc header abuse with one
// struct carried through context.Context, the Go analogue of tower's
// typed request extensions.
type RequestState struct {
	TargetAddr           string
	PeerIdentity         collaborators.Identity
	HasPeerIdentity      bool
	Protocol             collaborators.Protocol
	CanonicalDestination string
	RouteLabels          map[string]string
	Started              time.Time
}

type requestStateKey struct{}

// WithRequestState attaches state to ctx.
func WithRequestState(ctx context.Context, state *RequestState) context.Context {
	return context.WithValue(ctx, requestStateKey{}, state)
}

// StateFrom recovers the RequestState attached to ctx, or a zero-value
// state if none was attached (e.g. in unit tests that bypass the
// listener's accept path).
func StateFrom(ctx context.Context) *RequestState {
	if s, ok := ctx.Value(requestStateKey{}).(*RequestState); ok {
		return s
	}
	return &RequestState{}
}

// AttachState is a convenience for handlers that build a fresh context for
// a request before dispatching it.
func AttachState(req *http.Request, state *RequestState) *http.Request {
	return req.WithContext(WithRequestState(req.Context(), state))
}
