package balancer

import (
	"context"
	"testing"
	"time"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

func echoMaker() svc.Maker[string, string, string] {
	return svc.MakerFunc[string, string, string](func(ctx context.Context, key string) (svc.Service[string, string], error) {
		addr := key
		return svc.ServiceFunc[string, string](func(ctx context.Context, req string) (string, error) {
			return addr, nil
		}), nil
	})
}

func TestBalancer_NoEndpointsIsDiscoveryRejected(t *testing.T) {
	b := New[string, string](echoMaker(), nil, 1)
	err := b.Ready(context.Background())
	if collaborators.KindOf(err) != collaborators.KindDiscoveryRejected {
		t.Fatalf("expected DiscoveryRejected with no endpoints, got %v", err)
	}
}

func TestBalancer_AddsAndDispatches(t *testing.T) {
	b := New[string, string](echoMaker(), nil, 1)
	d := NewDiscover(4)
	source := make(chan collaborators.DiscoveryEvent, 2)
	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryAdd, Addr: "only"}
	close(source)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx, source)
	b.Run(ctx, d)

	if err := b.Ready(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp, err := b.Call(context.Background(), "req")
	if err != nil || resp != "only" {
		t.Fatalf("expected only, got %q err=%v", resp, err)
	}
}

func TestBalancer_RemovePreventsFurtherDispatch(t *testing.T) {
	b := New[string, string](echoMaker(), nil, 1)
	d := NewDiscover(4)
	source := make(chan collaborators.DiscoveryEvent, 2)
	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryAdd, Addr: "only"}
	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryRemove, Addr: "only"}
	close(source)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx, source)
	b.Run(ctx, d)

	err := b.Ready(context.Background())
	if collaborators.KindOf(err) != collaborators.KindDiscoveryRejected {
		t.Fatalf("expected DiscoveryRejected after the only endpoint is removed, got %v", err)
	}
}

func TestBalancer_PrefersLessLoadedEndpoint(t *testing.T) {
	busy := make(chan struct{})
	maker := svc.MakerFunc[string, string, string](func(ctx context.Context, key string) (svc.Service[string, string], error) {
		addr := key
		return svc.ServiceFunc[string, string](func(ctx context.Context, req string) (string, error) {
			if addr == "busy" {
				<-busy
			}
			return addr, nil
		}), nil
	})
	b := New[string, string](maker, nil, 1)
	d := NewDiscover(4)
	source := make(chan collaborators.DiscoveryEvent, 2)
	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryAdd, Addr: "busy"}
	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryAdd, Addr: "free"}
	close(source)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go d.Run(ctx, source)
	b.Run(ctx, d)
	time.Sleep(10 * time.Millisecond)

	// Occupy "busy" with an in-flight call so its pending count is nonzero,
	// then verify P2C consistently prefers "free" across many picks.
	go func() {
		_ = b.Ready(context.Background())
		_, _ = b.Call(context.Background(), "hold")
	}()
	time.Sleep(10 * time.Millisecond)

	freeCount := 0
	for i := 0; i < 20; i++ {
		if err := b.Ready(context.Background()); err != nil {
			t.Fatal(err)
		}
		resp, err := b.Call(context.Background(), "req")
		if err != nil {
			t.Fatal(err)
		}
		if resp == "free" {
			freeCount++
		}
	}
	close(busy)
	if freeCount < 15 {
		t.Fatalf("expected P2C to strongly prefer the less-loaded endpoint, got free picked %d/20 times", freeCount)
	}
}
