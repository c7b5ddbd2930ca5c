package profiles

import (
	"context"
	"math/rand"
	"sync"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

// Concrete is the concrete-destination dispatcher : it
// either forwards every request to a single destination, or samples a
// weighted destination on each readiness attempt (cumulative-weight PRNG
// sampling, up to one attempt per split member, matching the upstream
// concrete dst router's polling discipline).
type Concrete[Req, Resp any] struct {
	maker  svc.Maker[string, Req, Resp]
	target string

	mu         sync.Mutex
	forward    svc.Service[Req, Resp]
	forwardTo  string
	splitAddrs []collaborators.DestinationOverride
	splitSvcs  map[string]svc.Service[Req, Resp]
	pending    string // addr selected by the most recent successful Ready, consumed by Call
	split      bool
	rng        *rand.Rand
}

// NewConcrete builds a Concrete that forwards to target until an override
// list arrives. seed drives the weighted sampler; callers that need
// reproducible splits (tests, simulation) pass a fixed value, production
// callers pass time.Now().UnixNano().
func NewConcrete[Req, Resp any](ctx context.Context, maker svc.Maker[string, Req, Resp], target string, seed int64) (*Concrete[Req, Resp], error) {
	c := &Concrete[Req, Resp]{
		maker:  maker,
		target: target,
		rng:    rand.New(rand.NewSource(seed)),
	}
	s, err := maker.Make(ctx, target)
	if err != nil {
		return nil, err
	}
	c.forward = s
	c.forwardTo = target
	return c, nil
}

// ApplyOverrides reconciles the dispatcher with a new weighted override
// list: empty clears back to forwarding at target, one entry forwards
// there directly, more than one enters split mode. Already-built services
// for addresses present in the new list are reused rather than rebuilt.
func (c *Concrete[Req, Resp]) ApplyOverrides(ctx context.Context, overrides []collaborators.DestinationOverride) error {
	switch len(overrides) {
	case 0:
		return c.setForward(ctx, c.target)
	case 1:
		return c.setForward(ctx, overrides[0].Name)
	default:
		return c.setSplit(ctx, overrides)
	}
}

func (c *Concrete[Req, Resp]) setForward(ctx context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.split && c.forwardTo == addr {
		return nil
	}
	if c.split {
		if s, ok := c.splitSvcs[addr]; ok {
			c.forward = s
			c.forwardTo = addr
			c.split = false
			c.splitAddrs = nil
			c.splitSvcs = nil
			return nil
		}
	}
	s, err := c.maker.Make(ctx, addr)
	if err != nil {
		return err
	}
	c.forward = s
	c.forwardTo = addr
	c.split = false
	c.splitAddrs = nil
	c.splitSvcs = nil
	return nil
}

func (c *Concrete[Req, Resp]) setSplit(ctx context.Context, overrides []collaborators.DestinationOverride) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prior := c.splitSvcs
	services := make(map[string]svc.Service[Req, Resp], len(overrides))
	for _, o := range overrides {
		if !c.split && c.forwardTo == o.Name {
			services[o.Name] = c.forward
			continue
		}
		if prior != nil {
			if s, ok := prior[o.Name]; ok {
				services[o.Name] = s
				continue
			}
		}
		s, err := c.maker.Make(ctx, o.Name)
		if err != nil {
			return err
		}
		services[o.Name] = s
	}
	c.splitAddrs = append([]collaborators.DestinationOverride(nil), overrides...)
	c.splitSvcs = services
	c.split = true
	c.pending = ""
	return nil
}

// Ready implements svc.Service. In split mode it samples a weighted
// destination and accepts the first one that reports ready, trying at
// most len(splitAddrs) times per attempt — it may not poll every member,
// but it always polls at least one.
func (c *Concrete[Req, Resp]) Ready(ctx context.Context) error {
	c.mu.Lock()
	split := c.split
	if !split {
		forward := c.forward
		c.mu.Unlock()
		return forward.Ready(ctx)
	}
	addrs := c.splitAddrs
	svcs := c.splitSvcs
	rng := c.rng
	c.mu.Unlock()

	total := uint64(0)
	for _, o := range addrs {
		total += uint64(o.Weight)
	}
	if total == 0 {
		return svc.ErrNotReady
	}
	for attempt := 0; attempt < len(addrs); attempt++ {
		addr := sampleWeighted(rng, addrs, total)
		s := svcs[addr]
		if s == nil {
			continue
		}
		if err := s.Ready(ctx); err == nil {
			c.mu.Lock()
			c.pending = addr
			c.mu.Unlock()
			return nil
		}
	}
	return svc.ErrNotReady
}

// Call dispatches to whichever destination Ready most recently selected.
func (c *Concrete[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	c.mu.Lock()
	split := c.split
	if !split {
		forward := c.forward
		c.mu.Unlock()
		return forward.Call(ctx, req)
	}
	addr := c.pending
	c.pending = ""
	s := c.splitSvcs[addr]
	c.mu.Unlock()
	var zero Resp
	if s == nil {
		return zero, svc.ErrNotReady
	}
	return s.Call(ctx, req)
}

// sampleWeighted picks one destination by cumulative weight.
func sampleWeighted(rng *rand.Rand, addrs []collaborators.DestinationOverride, total uint64) string {
	pick := uint64(rng.Int63n(int64(total)))
	var cum uint64
	for _, o := range addrs {
		cum += uint64(o.Weight)
		if pick < cum {
			return o.Name
		}
	}
	return addrs[len(addrs)-1].Name
}
