// inbound.go assembles the server-side stack: terminate TLS at accept
// time, sniff, route by target socket/logical name, admit, strip
// mesh-internal signaling, downgrade any original-protocol marker, and
// deliver to the loopback application.
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

// InboundConfig bundles everything NewInbound needs to assemble the
// server-side stack.
type InboundConfig struct {
	Admission      admission.Config
	CacheCapacity  int
	CacheIdleAge   time.Duration
	AppAddr        string
	Transport      *http.Transport
	Backoff        func(base, max time.Duration) reconnect.Backoff

	ProfileClient  collaborators.ProfileClient
	TLSTerminator  collaborators.TlsTerminator
	Detector       collaborators.ProtocolDetector
	Metrics        collaborators.MetricsSink
	OnRetrySkipped func(retry.SkipReason)
}

// Inbound is the assembled server-side proxy.
type Inbound struct {
	cfg      InboundConfig
	admitted *admission.Stack[*http.Request, *http.Response]
	cache    *cache.Cache[InboundKey, *http.Request, *http.Response]
}

// NewInbound wires the full inbound pipeline: loopback client stack ->
// per-route retry/timeout -> profile-keyed dispatcher cache ->
// mesh-header strip + orig-proto downgrade -> router -> admission.
func NewInbound(cfg InboundConfig) *Inbound {
	backoffFactory := cfg.Backoff
	if backoffFactory == nil {
		backoffFactory = DefaultBackoff
	}
	loopbackMaker := NewLoopbackMaker(cfg.AppAddr, cfg.Transport, backoffFactory(25*time.Millisecond, 2*time.Second))
	routeBuilder := RouteMetricsLayer(cfg.Metrics, BuildRouteService(cfg.OnRetrySkipped))

	dispatcherMaker := svc.MakerFunc[InboundKey, *http.Request, *http.Response](func(ctx context.Context, key InboundKey) (svc.Service[*http.Request, *http.Response], error) {
		destination := key.LogicalName
		if destination == "" {
			destination = key.TargetAddr
		}
		d, err := profiles.New[*http.Request, *http.Response](ctx, cfg.ProfileClient, destination, loopbackMaker, HTTPExtractor, routeBuilder, time.Now().UnixNano())
		if err != nil {
			return nil, err
		}
		// Lock wraps the Dispatcher directly, so its Ready->Call pairing is
		// serialized regardless of anything upstream; Strip and Downgrade are
		// stateless per-request layers and sit outside it.
		locked := lock.New[*http.Request, *http.Response](d, dispatcherReadyIsFatal)
		return DowngradeLayer()(StripLayer()(locked)), nil
	})
	cached := cache.New[InboundKey, *http.Request, *http.Response](dispatcherMaker, cfg.CacheCapacity, cfg.CacheIdleAge)
	rtr := router.New[InboundKey, *http.Request, *http.Response](func(req *http.Request) (InboundKey, error) {
		k, err := ExtractInboundKey(req)
		if err != nil {
			return InboundKey{}, err
		}
		return k.(InboundKey), nil
	}, cached)
	adm := admission.New[*http.Request, *http.Response](cfg.Admission, rtr)

	return &Inbound{cfg: cfg, admitted: adm, cache: cached}
}

// Run drives the admission buffer's daemon and the cache's purge loop
// until ctx is cancelled; call it in its own goroutine before Serve.
func (in *Inbound) Run(ctx context.Context, purgeInterval time.Duration) {
	go in.admitted.Run(ctx)
	in.cache.Run(ctx, purgeInterval)
}

// ServeHTTP dispatches one request through the assembled pipeline.
func (in *Inbound) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	resp := Dispatch(req.Context(), in.admitted.Service, req)
	_ = WriteResponse(w, resp)
}

// Serve runs the accept loop for ln. When a TLSTerminator is configured,
// every connection is TLS-terminated before sniffing, so the peer identity
// attached to RequestState reflects a verified mTLS handshake; with no
// TLSTerminator, connections are sniffed as accepted and carry no peer
// identity.
func (in *Inbound) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: in}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go in.handle(ctx, conn, srv)
	}
}

func (in *Inbound) handle(ctx context.Context, conn net.Conn, srv *http.Server) {
	targetAddr := conn.LocalAddr().String()
	var (
		term        net.Conn = conn
		peerID      collaborators.Identity
		hasPeer     bool
	)
	if in.cfg.TLSTerminator != nil {
		tconn, err := in.cfg.TLSTerminator.Terminate(ctx, conn)
		if err != nil {
			conn.Close()
			return
		}
		term = tconn.Conn
		peerID = tconn.PeerIdentity
		hasPeer = tconn.HasPeerIdentity
	}
	proto, replay, err := in.cfg.Detector.Detect(ctx, term)
	if err != nil {
		term.Close()
		return
	}
	state := &RequestState{
		TargetAddr:      targetAddr,
		PeerIdentity:    peerID,
		HasPeerIdentity: hasPeer,
		Protocol:        proto,
		Started:         time.Now(),
	}
	if proto == collaborators.ProtocolNotHTTP {
		in.forwardRaw(ctx, replay)
		return
	}
	connCtx := WithRequestState(ctx, state)
	srv.ConnContext = func(c context.Context, _ net.Conn) context.Context { return connCtx }
	ServeOneConn(srv, replay)
}

// forwardRaw implements inbound step 3: a non-HTTP connection
// is forwarded verbatim to the loopback application.
func (in *Inbound) forwardRaw(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	upstream, err := (&net.Dialer{}).DialContext(ctx, "tcp", in.cfg.AppAddr)
	if err != nil {
		return
	}
	defer upstream.Close()
	done := make(chan struct{}, 2)
	go func() { copyAndSignal(upstream, conn, done) }()
	go func() { copyAndSignal(conn, upstream, done) }()
	<-done
}
