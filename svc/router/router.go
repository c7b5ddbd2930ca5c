// Package router implements a thin layer that extracts a routing key
// from each request, obtains (or builds) a per-key service from an inner
// maker -- usually a cache -- and issues a single oneshot call against
// it. The router never buffers.
package router

import (
	"context"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

// KeyFunc extracts a routing key from a request, or reports an error if the
// request is unrecognizable.
type KeyFunc[K any, Req any] func(req Req) (K, error)

// releaser is implemented by makers (notably cache.Cache) that want the
// router to signal when it is done with a service obtained via Make, so
// idle-eviction refcounting stays accurate. Makers that don't need this
// (e.g. a plain constructor) simply don't implement it.
type releaser[K any] interface {
	Release(key K)
}

// Router is the C4 component: Req -> K -> (cached) Service -> Resp.
type Router[K any, Req, Resp any] struct {
	key   KeyFunc[K, Req]
	inner svc.Maker[K, Req, Resp]
}

// New builds a Router over inner using key to extract the routing key from
// each request.
func New[K any, Req, Resp any](key KeyFunc[K, Req], inner svc.Maker[K, Req, Resp]) *Router[K, Req, Resp] {
	return &Router[K, Req, Resp]{key: key, inner: inner}
}

// Ready always reports ready: readiness is a property of the per-key
// service, discovered only once the key is known, which happens in Call.
// The router holds no state of its own to be not-ready about.
func (r *Router[K, Req, Resp]) Ready(ctx context.Context) error { return nil }

// Call extracts the routing key, obtains the per-key service (building it
// via inner if necessary), and issues exactly one oneshot call.
func (r *Router[K, Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	key, err := r.key(req)
	if err != nil {
		return zero, collaborators.New(collaborators.KindNotRecognized, err)
	}

	s, err := r.inner.Make(ctx, key)
	if err != nil {
		return zero, err
	}
	if rel, ok := r.inner.(releaser[K]); ok {
		defer rel.Release(key)
	}

	return svc.Oneshot(ctx, s, req)
}
