// Package loadshed converts a downstream ErrNotReady into an immediate
// Overloaded failure, rather than letting the caller wait or retry.
// Placed outside ConcurrencyLimit so true backpressure sheds at the
// edge rather than queueing indefinitely.
package loadshed

import (
	"context"
	"errors"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

// LoadShed wraps inner, shedding on not-ready instead of blocking.
type LoadShed[Req, Resp any] struct {
	inner svc.Service[Req, Resp]
}

// New wraps inner with load shedding.
func New[Req, Resp any](inner svc.Service[Req, Resp]) *LoadShed[Req, Resp] {
	return &LoadShed[Req, Resp]{inner: inner}
}

// Layer returns a svc.Layer applying load shedding.
func Layer[Req, Resp any]() svc.Layer[Req, Resp] {
	return func(inner svc.Service[Req, Resp]) svc.Service[Req, Resp] {
		return New(inner)
	}
}

// Ready converts an inner ErrNotReady into an immediate, terminal
// Overloaded error rather than backpressure; any other inner Ready error
// is returned unchanged.
func (l *LoadShed[Req, Resp]) Ready(ctx context.Context) error {
	if err := l.inner.Ready(ctx); err != nil {
		if errors.Is(err, svc.ErrNotReady) {
			return collaborators.New(collaborators.KindOverloaded, nil)
		}
		return err
	}
	return nil
}

// Call is only reached when Ready reported success, so it always proxies
// straight to inner.
func (l *LoadShed[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return l.inner.Call(ctx, req)
}
