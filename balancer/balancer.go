package balancer

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

// EWMADefaultRTT seeds a newly-added endpoint's load estimate before any
// real latency sample has been observed.
const EWMADefaultRTT = 30 * time.Millisecond

// EWMADecay is the time constant the running RTT average decays over
const EWMADecay = 10 * time.Second

type endpoint[Req, Resp any] struct {
	addr    string
	svc     svc.Service[Req, Resp]
	pending int32

	mu      sync.Mutex
	ewmaRTT time.Duration
	updated time.Time
}

func newEndpoint[Req, Resp any](addr string, s svc.Service[Req, Resp]) *endpoint[Req, Resp] {
	return &endpoint[Req, Resp]{addr: addr, svc: s, ewmaRTT: EWMADefaultRTT, updated: time.Now()}
}

func (e *endpoint[Req, Resp]) observe(rtt time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(e.updated)
	alpha := 1 - math.Exp(-float64(elapsed)/float64(EWMADecay))
	e.ewmaRTT = e.ewmaRTT + time.Duration(alpha*float64(rtt-e.ewmaRTT))
	e.updated = now
}

// load scores the endpoint the way linkerd's Peak EWMA balancer does:
// decayed RTT weighted by one more than outstanding requests, so a fast
// endpoint with a growing queue is penalized before its RTT actually rises.
func (e *endpoint[Req, Resp]) load() float64 {
	e.mu.Lock()
	rtt := e.ewmaRTT
	e.mu.Unlock()
	pending := atomic.LoadInt32(&e.pending)
	return float64(rtt) * float64(pending+1)
}

// Balancer is the C8 power-of-two-choices load balancer: each Ready
// samples two endpoints uniformly and prefers the one with the lower load
// (EWMA RTT weighted by outstanding requests), accepting it only once its
// own Ready succeeds
type Balancer[Req, Resp any] struct {
	maker    svc.Maker[string, Req, Resp]
	onRemove func(addr string)
	rng      *rand.Rand

	mu        sync.Mutex
	endpoints map[string]*endpoint[Req, Resp]
	order     []string
	picked    string
}

// New constructs an empty Balancer. maker builds the per-endpoint client
// stack for an address added by Run. seed drives the P2C sampler; callers
// that need reproducible picks (tests, simulation) pass a fixed value,
// production callers pass time.Now().UnixNano().
func New[Req, Resp any](maker svc.Maker[string, Req, Resp], onRemove func(addr string), seed int64) *Balancer[Req, Resp] {
	return &Balancer[Req, Resp]{
		maker:     maker,
		onRemove:  onRemove,
		rng:       rand.New(rand.NewSource(seed)),
		endpoints: make(map[string]*endpoint[Req, Resp]),
	}
}

// Run applies discover's coalesced events to the endpoint set until ctx is
// cancelled or discover's source closes.
func (b *Balancer[Req, Resp]) Run(ctx context.Context, discover *Discover) {
	for {
		ev, ok := discover.Next(ctx)
		if !ok {
			return
		}
		switch ev.Kind {
		case collaborators.DiscoveryAdd:
			s, err := b.maker.Make(ctx, ev.Addr)
			if err != nil {
				continue
			}
			b.mu.Lock()
			if _, exists := b.endpoints[ev.Addr]; !exists {
				b.order = append(b.order, ev.Addr)
			}
			b.endpoints[ev.Addr] = newEndpoint[Req, Resp](ev.Addr, s)
			b.mu.Unlock()
		case collaborators.DiscoveryRemove:
			b.mu.Lock()
			if _, exists := b.endpoints[ev.Addr]; exists {
				delete(b.endpoints, ev.Addr)
				for i, a := range b.order {
					if a == ev.Addr {
						b.order = append(b.order[:i], b.order[i+1:]...)
						break
					}
				}
			}
			b.mu.Unlock()
			if b.onRemove != nil {
				b.onRemove(ev.Addr)
			}
		}
	}
}

// Ready samples two endpoints under the power-of-two-choices discipline,
// accepting the first ready candidate out of up to len(endpoints) attempts.
func (b *Balancer[Req, Resp]) Ready(ctx context.Context) error {
	b.mu.Lock()
	order := append([]string(nil), b.order...)
	endpoints := b.endpoints
	b.mu.Unlock()

	n := len(order)
	if n == 0 {
		return collaborators.New(collaborators.KindDiscoveryRejected, nil)
	}

	for attempt := 0; attempt < n; attempt++ {
		var candidate string
		if n == 1 {
			candidate = order[0]
		} else {
			i, j := b.rng.Intn(n), b.rng.Intn(n)
			for j == i {
				j = b.rng.Intn(n)
			}
			if j < i {
				i, j = j, i
			}
			a, bb := endpoints[order[i]], endpoints[order[j]]
			if a.load() <= bb.load() {
				candidate = a.addr
			} else {
				candidate = bb.addr
			}
		}
		ep := endpoints[candidate]
		if ep == nil {
			continue
		}
		if err := ep.svc.Ready(ctx); err == nil {
			b.mu.Lock()
			b.picked = candidate
			b.mu.Unlock()
			return nil
		}
	}
	return svc.ErrNotReady
}

// Call dispatches to the endpoint most recently picked by Ready.
func (b *Balancer[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	b.mu.Lock()
	addr := b.picked
	ep := b.endpoints[addr]
	b.mu.Unlock()
	var zero Resp
	if ep == nil {
		return zero, svc.ErrNotReady
	}
	atomic.AddInt32(&ep.pending, 1)
	defer atomic.AddInt32(&ep.pending, -1)
	start := time.Now()
	resp, err := ep.svc.Call(ctx, req)
	ep.observe(time.Since(start))
	return resp, err
}
