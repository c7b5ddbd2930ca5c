// Original-protocol upgrade and downgrade: outbound marks an HTTP/1
// request with a distinguishing header when the target endpoint
// advertises HTTP/2 support, so the connection between proxies always
// multiplexes over HTTP/2; inbound strips that marker back off before
// forwarding to the (HTTP/1-only) loopback application, matching
// linkerd's orig-proto upgrade/downgrade layers.
package proxy

import (
	"context"
	"net/http"

	"github.com/meshcore/sidecar/svc"
)

// EndpointSupportsH2 reports whether the given endpoint's discovery
// metadata advertises HTTP/2 support, the upgrade layer's sole input.
type EndpointSupportsH2 func(addr string) bool

// Upgrade marks outbound HTTP/1 requests destined for an H2-capable
// endpoint with HeaderOrigProto carrying the request's original protocol.
// This marker and svc/retry are mutually exclusive (see CloneRequest
// below), so Upgrade never retries internally.
type Upgrade struct {
	inner   svc.Service[*http.Request, *http.Response]
	addr    string
	support EndpointSupportsH2
}

// NewUpgrade wraps inner, consulting support for the concrete endpoint addr.
func NewUpgrade(inner svc.Service[*http.Request, *http.Response], addr string, support EndpointSupportsH2) *Upgrade {
	return &Upgrade{inner: inner, addr: addr, support: support}
}

func (u *Upgrade) Ready(ctx context.Context) error { return u.inner.Ready(ctx) }

func (u *Upgrade) Call(ctx context.Context, req *http.Request) (*http.Response, error) {
	if u.support != nil && u.support(u.addr) && req.ProtoMajor == 1 {
		req.Header.Set(HeaderOrigProto, req.Proto)
	}
	return u.inner.Call(ctx, req)
}

// Downgrade strips HeaderOrigProto on the inbound side before the request
// reaches the loopback application, restoring it to its pre-upgrade form.
type Downgrade struct {
	inner svc.Service[*http.Request, *http.Response]
}

// DowngradeLayer returns a svc.Layer applying the inbound downgrade step.
func DowngradeLayer() svc.Layer[*http.Request, *http.Response] {
	return func(inner svc.Service[*http.Request, *http.Response]) svc.Service[*http.Request, *http.Response] {
		return &Downgrade{inner: inner}
	}
}

func (d *Downgrade) Ready(ctx context.Context) error { return d.inner.Ready(ctx) }

func (d *Downgrade) Call(ctx context.Context, req *http.Request) (*http.Response, error) {
	if orig := req.Header.Get(HeaderOrigProto); orig != "" {
		req.Proto = orig
		req.Header.Del(HeaderOrigProto)
	}
	return d.inner.Call(ctx, req)
}

// IsUpgraded reports whether req carries the original-protocol marker.
func IsUpgraded(req *http.Request) bool {
	return req.Header.Get(HeaderOrigProto) != ""
}

// CloneRequest implements retry.CloneRequest[*http.Request]: it refuses to
// clone any request carrying the original-protocol upgrade marker,
// forbidding the upgrade+retry combination open question,
// and otherwise clones method, URL, header, and a re-readable body via
// GetBody, 's whitelist-and-drop cloning discipline.
func CloneRequest(req *http.Request) (*http.Request, bool) {
	if IsUpgraded(req) {
		return nil, false
	}
	if req.Body != nil && req.GetBody == nil {
		return nil, false
	}
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, false
		}
		clone.Body = body
	}
	return clone, true
}
