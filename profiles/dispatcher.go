package profiles

import (
	"context"
	"sync"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

// RouteBuilder wraps concrete with whatever per-route middleware a route
// needs (classify, retry, timeout); it is called at most once per distinct
// route name between profile updates and the result is cached. Applying
// an update clears the cache, so each route is built again after it.
type RouteBuilder[Req, Resp any] func(route collaborators.Route, concrete svc.Service[Req, Resp]) svc.Service[Req, Resp]

// Dispatcher is the full C7 pipeline in front of one outbound or inbound
// destination: route selection by request, concrete-destination dispatch,
// and a live profile stream that both tables are rebuilt from.
type Dispatcher[Req, Resp any] struct {
	table    *Table
	concrete *Concrete[Req, Resp]
	extract  Extractor[Req]
	build    RouteBuilder[Req, Resp]
	updates  <-chan collaborators.Routes

	mu    sync.Mutex
	built map[string]svc.Service[Req, Resp]
}

// New constructs a Dispatcher for destination, fetching the initial route
// table synchronously (best-effort: a GetRoutes implementation that has
// nothing buffered yet simply leaves the table at its zero value, which
// routes everything to the default route with no overrides). seed is
// forwarded to the concrete destination's weighted sampler.
func New[Req, Resp any](ctx context.Context, client collaborators.ProfileClient, destination string, maker svc.Maker[string, Req, Resp], extract Extractor[Req], build RouteBuilder[Req, Resp], seed int64) (*Dispatcher[Req, Resp], error) {
	updates, err := client.GetRoutes(ctx, destination)
	if err != nil {
		return nil, err
	}
	concrete, err := NewConcrete[Req, Resp](ctx, maker, destination, seed)
	if err != nil {
		return nil, err
	}
	d := &Dispatcher[Req, Resp]{
		table:    NewTable(collaborators.Routes{}),
		concrete: concrete,
		extract:  extract,
		build:    build,
		updates:  updates,
		built:    make(map[string]svc.Service[Req, Resp]),
	}
	d.drain(ctx)
	return d, nil
}

// drain applies every update currently buffered on the profile stream
// without blocking, mirroring tower's discipline of draining the update
// stream before poll_ready.
func (d *Dispatcher[Req, Resp]) drain(ctx context.Context) {
	for {
		select {
		case routes, ok := <-d.updates:
			if !ok {
				return
			}
			d.apply(ctx, routes)
		default:
			return
		}
	}
}

func (d *Dispatcher[Req, Resp]) apply(ctx context.Context, routes collaborators.Routes) {
	d.table.Store(routes)
	_ = d.concrete.ApplyOverrides(ctx, routes.DestinationOverrides)
	d.mu.Lock()
	d.built = make(map[string]svc.Service[Req, Resp])
	d.mu.Unlock()
}

// Ready drains pending profile updates, then reports the concrete
// destination's readiness.
func (d *Dispatcher[Req, Resp]) Ready(ctx context.Context) error {
	d.drain(ctx)
	return d.concrete.Ready(ctx)
}

// Call selects a route for req, builds (or reuses) its middleware stack
// over the shared concrete destination service, and dispatches.
func (d *Dispatcher[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	route := Select[Req](d.table, req, d.extract)
	s := d.routeService(route)
	return s.Call(ctx, req)
}

func (d *Dispatcher[Req, Resp]) routeService(route collaborators.Route) svc.Service[Req, Resp] {
	key := route.Name
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.built[key]; ok {
		return s
	}
	var built svc.Service[Req, Resp]
	if d.build != nil {
		built = d.build(route, d.concrete)
	} else {
		built = d.concrete
	}
	d.built[key] = built
	return built
}
