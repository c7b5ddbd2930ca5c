package balancer

import (
	"context"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

// Fallback wraps a primary maker (balancer-over-discovery) with a
// secondary maker (direct forward) : when primary.Make
// fails with a predicate-matching error — DiscoveryRejected by default —
// fallback.Make is invoked for the same key instead; any other error is
// surfaced unchanged.
type Fallback[K, Req, Resp any] struct {
	primary   svc.Maker[K, Req, Resp]
	fallback  svc.Maker[K, Req, Resp]
	predicate func(error) bool
}

// DefaultPredicate matches only collaborators.KindDiscoveryRejected.
func DefaultPredicate(err error) bool {
	return collaborators.KindOf(err) == collaborators.KindDiscoveryRejected
}

// NewFallback constructs a Fallback maker. A nil predicate defaults to
// DefaultPredicate.
func NewFallback[K, Req, Resp any](primary, fallback svc.Maker[K, Req, Resp], predicate func(error) bool) *Fallback[K, Req, Resp] {
	if predicate == nil {
		predicate = DefaultPredicate
	}
	return &Fallback[K, Req, Resp]{primary: primary, fallback: fallback, predicate: predicate}
}

func (f *Fallback[K, Req, Resp]) Make(ctx context.Context, key K) (svc.Service[Req, Resp], error) {
	s, err := f.primary.Make(ctx, key)
	if err == nil {
		return s, nil
	}
	if f.predicate(err) {
		return f.fallback.Make(ctx, key)
	}
	return nil, err
}
