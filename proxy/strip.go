package proxy

import (
	"context"
	"net/http"

	"github.com/meshcore/sidecar/svc"
)

// Mesh-internal headers the inbound side strips before forwarding to the
// loopback application, and that the outbound side may set on a request's
// way out, matching linkerd's l5d-* header conventions.
const (
	HeaderOrigProto    = "l5d-orig-proto"
	HeaderDstCanonical = "l5d-dst-canonical"
	HeaderRemoteIP     = "l5d-remote-ip"
	HeaderServerID     = "l5d-server-id"
	HeaderClientID     = "l5d-client-id"
)

// meshInternalHeaders lists every header StripMeshHeaders removes.
var meshInternalHeaders = []string{
	HeaderOrigProto,
	HeaderDstCanonical,
	HeaderRemoteIP,
	HeaderServerID,
	HeaderClientID,
}

// StripMeshHeaders removes mesh-internal headers from req in place, so a
// client on the loopback side never observes proxy-internal signaling.
func StripMeshHeaders(req *http.Request) {
	for _, h := range meshInternalHeaders {
		req.Header.Del(h)
	}
}

// Strip is a svc.Layer that strips mesh-internal headers from every
// request before it reaches inner, for use on the inbound path only.
type Strip struct {
	inner svc.Service[*http.Request, *http.Response]
}

// StripLayer returns a svc.Layer applying StripMeshHeaders to every request.
func StripLayer() svc.Layer[*http.Request, *http.Response] {
	return func(inner svc.Service[*http.Request, *http.Response]) svc.Service[*http.Request, *http.Response] {
		return &Strip{inner: inner}
	}
}

func (s *Strip) Ready(ctx context.Context) error { return s.inner.Ready(ctx) }

func (s *Strip) Call(ctx context.Context, req *http.Request) (*http.Response, error) {
	StripMeshHeaders(req)
	return s.inner.Call(ctx, req)
}
