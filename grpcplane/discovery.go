package grpcplane

import (
	"context"

	"google.golang.org/grpc"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
	"github.com/meshcore/sidecar/svc/lock"
	"github.com/meshcore/sidecar/svc/reconnect"
)

// DiscoveryClient implements collaborators.DiscoveryClient the same way
// ProfileClient implements its counterpart: one reconnecting stream per
// control-plane address, transparently reopened on transport loss, with
// a Lock serializing the Ready/Call pairs of every concrete destination's
// pump goroutine (see ProfileClient's doc for why).
type DiscoveryClient struct {
	rc svc.Service[string, DiscoveryStream]
}

// NewDiscoveryClient builds a DiscoveryClient bound to addr.
func NewDiscoveryClient(addr string, dial Dial, open DiscoveryStreamOpener, backoff reconnect.Backoff) *DiscoveryClient {
	maker := dialMaker[DiscoveryStream](dial, addr, func(ctx context.Context, cc *grpc.ClientConn, key string) (DiscoveryStream, error) {
		return open(ctx, cc, key)
	})
	rc := reconnect.New[string, string, DiscoveryStream](maker, addr, backoff)
	return &DiscoveryClient{rc: lock.New[string, DiscoveryStream](rc, streamReadyIsFatal)}
}

func (d *DiscoveryClient) Resolve(ctx context.Context, concrete string) (<-chan collaborators.DiscoveryEvent, error) {
	out := make(chan collaborators.DiscoveryEvent, 16)
	go d.pump(ctx, concrete, out)
	return out, nil
}

func (d *DiscoveryClient) pump(ctx context.Context, concrete string, out chan<- collaborators.DiscoveryEvent) {
	defer close(out)
	for ctx.Err() == nil {
		if err := d.rc.Ready(ctx); err != nil {
			return
		}
		stream, err := d.rc.Call(ctx, concrete)
		if err != nil {
			continue
		}
		drainEvents(ctx, stream, out)
	}
}

func drainEvents(ctx context.Context, stream DiscoveryStream, out chan<- collaborators.DiscoveryEvent) {
	defer stream.Close()
	for {
		ev, err := stream.Recv()
		if err != nil {
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
