// Package balancer implements the C8 component : a
// Discover adapter that coalesces a discovery event stream, a
// power-of-two-choices balancer over pending-request load, and a Fallback
// maker that forwards directly when discovery rejects a destination.
package balancer

import (
	"context"
	"sync"

	"github.com/meshcore/sidecar/collaborators"
)

// Discover buffers discovery events for a balancer that may fall behind
// the source stream. Per , excess updates coalesce by address:
// a second Add for the same address replaces the first, and a Remove
// cancels a pending, not-yet-delivered Add for the same address rather
// than queuing both.
type Discover struct {
	mu      sync.Mutex
	order   []string
	pending map[string]collaborators.DiscoveryEvent
	closed  bool
	signal  chan struct{}
}

// NewDiscover constructs an empty Discover. capacity is retained for
// documentation of the intended buffering depth; coalescing by address
// keeps actual memory use bounded by the number of distinct destinations
// in flight rather than the event count, so it is not enforced as a hard
// cap here.
func NewDiscover(capacity int) *Discover {
	return &Discover{pending: make(map[string]collaborators.DiscoveryEvent), signal: make(chan struct{}, 1)}
}

// Run drains source into the coalescing buffer until source closes or ctx
// is cancelled.
func (d *Discover) Run(ctx context.Context, source <-chan collaborators.DiscoveryEvent) {
	for {
		select {
		case ev, ok := <-source:
			if !ok {
				d.mu.Lock()
				d.closed = true
				d.mu.Unlock()
				d.wake()
				return
			}
			d.push(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Discover) push(ev collaborators.DiscoveryEvent) {
	d.mu.Lock()
	if ev.Kind == collaborators.DiscoveryRemove {
		if existing, ok := d.pending[ev.Addr]; ok && existing.Kind == collaborators.DiscoveryAdd {
			delete(d.pending, ev.Addr)
			d.removeFromOrder(ev.Addr)
			d.mu.Unlock()
			d.wake()
			return
		}
	}
	if _, exists := d.pending[ev.Addr]; !exists {
		d.order = append(d.order, ev.Addr)
	}
	d.pending[ev.Addr] = ev
	d.mu.Unlock()
	d.wake()
}

func (d *Discover) removeFromOrder(addr string) {
	for i, a := range d.order {
		if a == addr {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

func (d *Discover) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Next blocks until a coalesced event is available, ctx is cancelled, or
// the source stream has closed with nothing left buffered.
func (d *Discover) Next(ctx context.Context) (collaborators.DiscoveryEvent, bool) {
	for {
		d.mu.Lock()
		if len(d.order) > 0 {
			addr := d.order[0]
			d.order = d.order[1:]
			ev := d.pending[addr]
			delete(d.pending, addr)
			d.mu.Unlock()
			return ev, true
		}
		closed := d.closed
		d.mu.Unlock()
		if closed {
			return collaborators.DiscoveryEvent{}, false
		}
		select {
		case <-d.signal:
		case <-ctx.Done():
			return collaborators.DiscoveryEvent{}, false
		}
	}
}
