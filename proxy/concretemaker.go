package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/meshcore/sidecar/balancer"
	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

// NewConcreteMaker builds the maker profiles.Dispatcher uses to turn a
// concrete destination name into a dispatchable service: the name is
// DNS-canonicalized, resolved to an endpoint set via discoveryClient, and
// balanced P2C over the per-endpoint client stack; if discovery rejects
// the destination, Fallback forwards directly to the (canonicalized) name
// interpreted as a socket address directly.
func NewConcreteMaker(
	discoveryClient collaborators.DiscoveryClient,
	endpointMaker svc.Maker[string, *http.Request, *http.Response],
	canon *Canonicalizer,
	discoverCapacity int,
) svc.Maker[string, *http.Request, *http.Response] {
	primary := svc.MakerFunc[string, *http.Request, *http.Response](func(ctx context.Context, concrete string) (svc.Service[*http.Request, *http.Response], error) {
		canonical, err := canon.Refine(ctx, concrete)
		if err != nil {
			canonical = concrete
		}
		updates, err := discoveryClient.Resolve(ctx, canonical)
		if err != nil {
			return nil, err
		}
		discover := balancer.NewDiscover(discoverCapacity)
		go discover.Run(ctx, updates)
		b := balancer.New[*http.Request, *http.Response](endpointMaker, nil, time.Now().UnixNano())
		go b.Run(ctx, discover)
		return b, nil
	})
	fallback := svc.MakerFunc[string, *http.Request, *http.Response](func(ctx context.Context, concrete string) (svc.Service[*http.Request, *http.Response], error) {
		canonical, err := canon.Refine(ctx, concrete)
		if err != nil {
			canonical = concrete
		}
		return endpointMaker.Make(ctx, canonical)
	})
	return balancer.NewFallback[string, *http.Request, *http.Response](primary, fallback, nil)
}
