package balancer

import (
	"context"
	"testing"
	"time"

	"github.com/meshcore/sidecar/collaborators"
)

func TestDiscover_DeliversInOrder(t *testing.T) {
	d := NewDiscover(4)
	source := make(chan collaborators.DiscoveryEvent, 4)
	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryAdd, Addr: "a"}
	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryAdd, Addr: "b"}
	close(source)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx, source)

	ev1, ok := d.Next(ctx)
	if !ok || ev1.Addr != "a" {
		t.Fatalf("expected a, got %+v ok=%v", ev1, ok)
	}
	ev2, ok := d.Next(ctx)
	if !ok || ev2.Addr != "b" {
		t.Fatalf("expected b, got %+v ok=%v", ev2, ok)
	}
	if _, ok := d.Next(ctx); ok {
		t.Fatal("expected no further events after source closes")
	}
}

func TestDiscover_RemoveCancelsPendingAdd(t *testing.T) {
	d := NewDiscover(4)
	source := make(chan collaborators.DiscoveryEvent, 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx, source)

	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryAdd, Addr: "x"}
	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryRemove, Addr: "x"}
	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryAdd, Addr: "y"}
	close(source)

	ev, ok := d.Next(ctx)
	if !ok || ev.Addr != "y" {
		t.Fatalf("expected the cancelled pending add for x to be skipped, got %+v ok=%v", ev, ok)
	}
	if _, ok := d.Next(ctx); ok {
		t.Fatal("expected no further events")
	}
}

func TestDiscover_CoalescesDuplicateAddsToLatest(t *testing.T) {
	d := NewDiscover(4)
	source := make(chan collaborators.DiscoveryEvent, 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx, source)

	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryAdd, Addr: "x", Meta: collaborators.EndpointMeta{"v": "1"}}
	source <- collaborators.DiscoveryEvent{Kind: collaborators.DiscoveryAdd, Addr: "x", Meta: collaborators.EndpointMeta{"v": "2"}}
	close(source)

	ev, ok := d.Next(ctx)
	if !ok || ev.Meta["v"] != "2" {
		t.Fatalf("expected the second add to win, got %+v ok=%v", ev, ok)
	}
	if _, ok := d.Next(ctx); ok {
		t.Fatal("expected only one coalesced event for x")
	}
}
