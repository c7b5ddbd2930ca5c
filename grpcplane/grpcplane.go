// Package grpcplane implements collaborators.ProfileClient and
// collaborators.DiscoveryClient over long-lived gRPC streams, matching the
// destination-resolution relationship of a linkerd2-proxy-api style
// control-plane client. The actual .proto wire schema is out of scope:
// callers inject a stream-opening function built on whatever
// pre-generated protobuf stubs they have, so this package never defines
// or depends on a wire schema of its own.
//
// Reconnection of the underlying gRPC connection is a svc/reconnect
// instance wrapping a dialing maker, so the control plane client is built
// from the same primitive as the data-plane transport.
package grpcplane

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
	"github.com/meshcore/sidecar/svc/reconnect"
)

// RouteStream is the narrow interface a generated profile-stream client
// must satisfy for grpcplane to drive it. Implementations translate
// individual proto messages into collaborators.Routes.
type RouteStream interface {
	Recv() (collaborators.Routes, error)
	Close() error
}

// DiscoveryStream is the discovery-stream analogue of RouteStream.
type DiscoveryStream interface {
	Recv() (collaborators.DiscoveryEvent, error)
	Close() error
}

// ProfileStreamOpener opens a new profile stream for destination over an
// established connection. Supplied by the caller, built atop whatever
// generated stub exists for the control-plane API in use.
type ProfileStreamOpener func(ctx context.Context, cc *grpc.ClientConn, destination string) (RouteStream, error)

// DiscoveryStreamOpener is the discovery analogue of ProfileStreamOpener.
type DiscoveryStreamOpener func(ctx context.Context, cc *grpc.ClientConn, concrete string) (DiscoveryStream, error)

// Dial opens (or reuses) a gRPC client connection to addr. Supplied by the
// caller so dial options (TLS creds, keepalive, interceptors) stay out of
// this package.
type Dial func(ctx context.Context, addr string) (*grpc.ClientConn, error)

// connService is the svc.Service the reconnect maker below produces: Ready
// reports the underlying connection's transport state, Call opens one
// stream per invocation rather than issuing a request/response RPC,
// matching the "one Call per Ready observation" discipline with Resp being
// the freshly opened stream rather than a decoded message.
type connService[Resp any] struct {
	cc   *grpc.ClientConn
	open func(ctx context.Context, cc *grpc.ClientConn, key string) (Resp, error)
}

func (c *connService[Resp]) Ready(ctx context.Context) error {
	state := c.cc.GetState()
	if state == connectivity.Ready || state == connectivity.Idle {
		return nil
	}
	if !c.cc.WaitForStateChange(ctx, state) {
		return ctx.Err()
	}
	return nil
}

func (c *connService[Resp]) Call(ctx context.Context, key string) (Resp, error) {
	return c.open(ctx, c.cc, key)
}

func dialMaker[Resp any](dial Dial, addr string, open func(ctx context.Context, cc *grpc.ClientConn, key string) (Resp, error)) svc.Maker[string, string, Resp] {
	return svc.MakerFunc[string, string, Resp](func(ctx context.Context, target string) (svc.Service[string, Resp], error) {
		cc, err := dial(ctx, target)
		if err != nil {
			return nil, err
		}
		return &connService[Resp]{cc: cc, open: open}, nil
	})
}

// DefaultBackoff is a capped exponential backoff for control-plane
// reconnects: the wait doubles from base on each attempt up to max, with
// no jitter.
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
