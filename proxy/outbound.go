// outbound.go assembles the client-side stack: accept from the local
// application, sniff, route by logical destination, admit, dispatch
// through the profile/concrete/balancer chain, and out to the chosen
// endpoint's client stack.
package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/profiles"
	"github.com/meshcore/sidecar/svc"
	"github.com/meshcore/sidecar/svc/admission"
	"github.com/meshcore/sidecar/svc/cache"
	"github.com/meshcore/sidecar/svc/lock"
	"github.com/meshcore/sidecar/svc/reconnect"
	"github.com/meshcore/sidecar/svc/retry"
	"github.com/meshcore/sidecar/svc/router"
)

// OutboundConfig bundles everything NewOutbound needs to assemble the
// client-side stack.
type OutboundConfig struct {
	Admission        admission.Config
	CacheCapacity    int
	CacheIdleAge     time.Duration
	DiscoverCapacity int
	Transport        *http.Transport
	Backoff          func(base, max time.Duration) reconnect.Backoff

	ProfileClient   collaborators.ProfileClient
	DiscoveryClient collaborators.DiscoveryClient
	DnsResolver     collaborators.DnsResolver
	Identity        collaborators.IdentityProvider
	Detector        collaborators.ProtocolDetector
	Metrics         collaborators.MetricsSink
	OnRetrySkipped  func(retry.SkipReason)
}

// Outbound is the assembled client-side proxy: an admitted, dispatched
// HTTP handler plus the listener accept loop that feeds it.
type Outbound struct {
	cfg      OutboundConfig
	admitted *admission.Stack[*http.Request, *http.Response]
	cache    *cache.Cache[OutboundKey, *http.Request, *http.Response]
}

// NewOutbound wires the full outbound pipeline: per-endpoint client stack
// -> balancer-or-fallback -> DNS canonicalization -> concrete dispatcher ->
// per-route retry/timeout -> profile-keyed dispatcher cache -> router ->
// admission.
func NewOutbound(cfg OutboundConfig) *Outbound {
	scheme := "http"
	if cfg.Identity != nil {
		if _, ok := cfg.Identity.LocalIdentity(); ok {
			scheme = "https"
		}
	}
	backoffFactory := cfg.Backoff
	if backoffFactory == nil {
		backoffFactory = DefaultBackoff
	}
	endpointMaker := NewEndpointMaker(cfg.Transport, scheme, backoffFactory(50*time.Millisecond, 10*time.Second))
	canon := NewCanonicalizer(cfg.DnsResolver)
	concreteMaker := NewConcreteMaker(cfg.DiscoveryClient, endpointMaker, canon, cfg.DiscoverCapacity)
	routeBuilder := RouteMetricsLayer(cfg.Metrics, BuildRouteService(cfg.OnRetrySkipped))

	dispatcherMaker := svc.MakerFunc[OutboundKey, *http.Request, *http.Response](func(ctx context.Context, key OutboundKey) (svc.Service[*http.Request, *http.Response], error) {
		d, err := profiles.New[*http.Request, *http.Response](ctx, cfg.ProfileClient, key.Destination, concreteMaker, HTTPExtractor, routeBuilder, time.Now().UnixNano())
		if err != nil {
			return nil, err
		}
		// The cache hands the same Dispatcher to every concurrent request for
		// this destination, and its Concrete/Balancer chain carries Ready->Call
		// state (pending, picked) across the pair. Lock serializes that pairing
		// so the invariant holds regardless of what, if anything, serializes
		// callers upstream. None of a Dispatcher's Ready errors are permanent:
		// they're all retried on the next poll, so nothing here poisons.
		return lock.New[*http.Request, *http.Response](d, dispatcherReadyIsFatal), nil
	})
	cached := cache.New[OutboundKey, *http.Request, *http.Response](dispatcherMaker, cfg.CacheCapacity, cfg.CacheIdleAge)
	rtr := router.New[OutboundKey, *http.Request, *http.Response](func(req *http.Request) (OutboundKey, error) {
		k, err := ExtractOutboundKey(req)
		if err != nil {
			return OutboundKey{}, err
		}
		return k.(OutboundKey), nil
	}, cached)
	adm := admission.New[*http.Request, *http.Response](cfg.Admission, rtr)

	return &Outbound{cfg: cfg, admitted: adm, cache: cached}
}

// Run drives the admission buffer's daemon and the cache's purge loop
// until ctx is cancelled; call it in its own goroutine before Serve.
func (o *Outbound) Run(ctx context.Context, purgeInterval time.Duration) {
	go o.admitted.Run(ctx)
	o.cache.Run(ctx, purgeInterval)
}

// ServeHTTP dispatches one request through the assembled pipeline; the
// connection-level RequestState reaches it through the request context,
// which the server's ConnContext sets per connection.
func (o *Outbound) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	resp := Dispatch(req.Context(), o.admitted.Service, req)
	_ = WriteResponse(w, resp)
}

// Serve runs the accept loop for ln: every connection is sniffed (no TLS
// terminates here -- the local application is the accept-time peer, so
// outbound TLS is never applied on this side), and HTTP connections are
// served through ServeHTTP while non-HTTP connections are forwarded
// directly to their original socket destination.
func (o *Outbound) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: o}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go o.handle(ctx, conn, srv)
	}
}

func (o *Outbound) handle(ctx context.Context, conn net.Conn, srv *http.Server) {
	proto, replay, err := o.cfg.Detector.Detect(ctx, conn)
	if err != nil {
		conn.Close()
		return
	}
	state := &RequestState{TargetAddr: conn.LocalAddr().String(), Protocol: proto, Started: time.Now()}
	if proto == collaborators.ProtocolNotHTTP {
		o.forwardRaw(ctx, replay, state.TargetAddr)
		return
	}
	connCtx := WithRequestState(ctx, state)
	srv.ConnContext = func(c context.Context, _ net.Conn) context.Context { return connCtx }
	ServeOneConn(srv, replay)
}

// dispatcherReadyIsFatal classifies every Dispatcher Ready error as
// transient: profile fetch misses, discovery rejections, and concrete
// readiness failures are all retried on the next poll rather than
// permanently poisoning the lock in front of the dispatcher.
func dispatcherReadyIsFatal(error) bool { return false }

// forwardRaw implements outbound step 3: a non-HTTP
// connection is forwarded verbatim to its original socket destination.
func (o *Outbound) forwardRaw(ctx context.Context, conn net.Conn, targetAddr string) {
	defer conn.Close()
	upstream, err := (&net.Dialer{}).DialContext(ctx, "tcp", targetAddr)
	if err != nil {
		return
	}
	defer upstream.Close()
	done := make(chan struct{}, 2)
	go func() { copyAndSignal(upstream, conn, done) }()
	go func() { copyAndSignal(conn, upstream, done) }()
	<-done
}
