// client.go builds the per-endpoint client stack: reconnect, HTTP/2 or
// HTTP/1.x codec, TLS-out for outbound, and a plain loopback client for
// inbound (which is never TLS). Both are instances of the same reconnect
// primitive (svc/reconnect) wrapping a one-address http.Client, since
// reconnect itself is domain-generic rather than HTTP-specific.
package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
	"github.com/meshcore/sidecar/svc/reconnect"
)

// endpointService issues requests against one fixed address over a shared
// *http.Transport (so connection pooling is net/http's, not ours); Ready
// performs a cheap dial probe so reconnect's backoff state machine has a
// real signal to drive from.
type endpointService struct {
	addr   string
	scheme string
	client *http.Client
	dialer *net.Dialer
}

func (e *endpointService) Ready(ctx context.Context) error {
	conn, err := e.dialer.DialContext(ctx, "tcp", e.addr)
	if err != nil {
		return collaborators.New(collaborators.KindConnectFailed, err)
	}
	return conn.Close()
}

func (e *endpointService) Call(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	out.URL.Scheme = e.scheme
	out.URL.Host = e.addr
	out.Host = req.Host
	out.RequestURI = ""
	resp, err := e.client.Do(out)
	if err != nil {
		return nil, collaborators.New(collaborators.KindConnectFailed, err)
	}
	return resp, nil
}

// NewEndpointMaker returns a svc.Maker keyed by socket address that builds
// a reconnect-wrapped client stack over transport, using scheme ("http" or
// "https") for every request. backoff drives reconnect's wait between
// failed Ready probes.
func NewEndpointMaker(transport *http.Transport, scheme string, backoff reconnect.Backoff) svc.Maker[string, *http.Request, *http.Response] {
	return svc.MakerFunc[string, *http.Request, *http.Response](func(_ context.Context, addr string) (svc.Service[*http.Request, *http.Response], error) {
		dialMaker := svc.MakerFunc[string, *http.Request, *http.Response](func(_ context.Context, target string) (svc.Service[*http.Request, *http.Response], error) {
			return &endpointService{
				addr:   target,
				scheme: scheme,
				client: &http.Client{Transport: transport},
				dialer: &net.Dialer{Timeout: 5 * time.Second},
			}, nil
		})
		return reconnect.New[string, *http.Request, *http.Response](dialMaker, addr, backoff), nil
	})
}

// NewLoopbackMaker builds the inbound side's endpoint maker: every key maps
// to the same loopback application address over a plain HTTP client,
// never TLS.
func NewLoopbackMaker(appAddr string, transport *http.Transport, backoff reconnect.Backoff) svc.Maker[string, *http.Request, *http.Response] {
	inner := NewEndpointMaker(transport, "http", backoff)
	return svc.MakerFunc[string, *http.Request, *http.Response](func(ctx context.Context, _ string) (svc.Service[*http.Request, *http.Response], error) {
		return inner.Make(ctx, appAddr)
	})
}

// DefaultBackoff matches grpcplane.DefaultBackoff's shape: capped
// exponential backoff for data-plane reconnects.
func DefaultBackoff(base, max time.Duration) reconnect.Backoff {
	return func(attempt int) func() <-chan struct{} {
		d := base << attempt
		if d <= 0 || d > max {
			d = max
		}
		return func() <-chan struct{} {
			ch := make(chan struct{})
			time.AfterFunc(d, func() { close(ch) })
			return ch
		}
	}
}
