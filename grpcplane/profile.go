package grpcplane

import (
	"context"

	"google.golang.org/grpc"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
	"github.com/meshcore/sidecar/svc/lock"
	"github.com/meshcore/sidecar/svc/reconnect"
)

// ProfileClient implements collaborators.ProfileClient over a reconnecting
// gRPC stream, one instance per control-plane address. Every destination
// GetRoutes resolves runs its own pump goroutine, so the shared reconnect
// instance is wrapped in a Lock: Reconnect's readiness state is only safe
// for one Ready/Call pair in flight at a time, and a control-plane address
// is shared across every destination that resolves through it.
type ProfileClient struct {
	rc svc.Service[string, RouteStream]
}

// NewProfileClient builds a ProfileClient bound to addr. open is supplied
// by the caller's generated stub wiring (see package doc).
func NewProfileClient(addr string, dial Dial, open ProfileStreamOpener, backoff reconnect.Backoff) *ProfileClient {
	maker := dialMaker[RouteStream](dial, addr, func(ctx context.Context, cc *grpc.ClientConn, key string) (RouteStream, error) {
		return open(ctx, cc, key)
	})
	rc := reconnect.New[string, string, RouteStream](maker, addr, backoff)
	return &ProfileClient{rc: lock.New[string, RouteStream](rc, streamReadyIsFatal)}
}

// streamReadyIsFatal never poisons the lock: the only error Reconnect.Ready
// ever returns is the calling pump's own ctx.Err(), which must not fail
// every other destination sharing the same control-plane stream.
func streamReadyIsFatal(error) bool { return false }

// GetRoutes satisfies collaborators.ProfileClient: the returned channel is
// never closed until ctx is cancelled, even across transport loss -- the
// pump goroutine transparently reopens the stream (via reconnect) on any
// Recv error and keeps publishing updates on the same channel.
func (p *ProfileClient) GetRoutes(ctx context.Context, destination string) (<-chan collaborators.Routes, error) {
	out := make(chan collaborators.Routes, 1)
	go p.pump(ctx, destination, out)
	return out, nil
}

func (p *ProfileClient) pump(ctx context.Context, destination string, out chan<- collaborators.Routes) {
	defer close(out)
	for ctx.Err() == nil {
		if err := p.rc.Ready(ctx); err != nil {
			return
		}
		stream, err := p.rc.Call(ctx, destination)
		if err != nil {
			continue
		}
		drainRoutes(ctx, stream, out)
	}
}

func drainRoutes(ctx context.Context, stream RouteStream, out chan<- collaborators.Routes) {
	defer stream.Close()
	for {
		routes, err := stream.Recv()
		if err != nil {
			return
		}
		select {
		case out <- routes:
		case <-ctx.Done():
			return
		default:
			// A full channel means the profiles engine hasn't drained yet;
			// the interface contract allows dropping rather than blocking
			// the stream reader (collaborators.ProfileClient doc).
		}
	}
}
