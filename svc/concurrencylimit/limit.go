// Package concurrencylimit implements the ConcurrencyLimit(max) layer
// (component C5, second stage): caps simultaneous in-flight
// calls at max; excess attempts report not-ready.
package concurrencylimit

import (
	"context"
	"sync"

	"github.com/meshcore/sidecar/svc"
)

// Limit wraps inner, admitting at most max concurrent calls. Ready
// reserves one of max tokens and stashes it keyed by the ctx value the
// caller passed in; the paired Call looks up that same ctx to release its
// own token. Binding the reservation to ctx rather than a single shared
// flag is what lets two callers hold separate permits at once: a shared
// bool can only ever represent one reservation no matter how large max is.
type Limit[Req, Resp any] struct {
	inner  svc.Service[Req, Resp]
	tokens chan struct{}

	mu      sync.Mutex
	pending map[context.Context]struct{}
}

// New wraps inner with a concurrency cap of max.
func New[Req, Resp any](inner svc.Service[Req, Resp], max int) *Limit[Req, Resp] {
	tokens := make(chan struct{}, max)
	for i := 0; i < max; i++ {
		tokens <- struct{}{}
	}
	return &Limit[Req, Resp]{inner: inner, tokens: tokens, pending: make(map[context.Context]struct{})}
}

// Layer returns a svc.Layer applying a concurrency limit of max.
func Layer[Req, Resp any](max int) svc.Layer[Req, Resp] {
	return func(inner svc.Service[Req, Resp]) svc.Service[Req, Resp] {
		return New(inner, max)
	}
}

// Ready acquires a token for ctx if one is free, then probes inner. The
// token is released immediately if inner rejects the reservation, so a
// failed Ready never leaks a permit.
func (l *Limit[Req, Resp]) Ready(ctx context.Context) error {
	select {
	case <-l.tokens:
	default:
		return svc.ErrNotReady
	}
	l.mu.Lock()
	l.pending[ctx] = struct{}{}
	l.mu.Unlock()

	if err := l.inner.Ready(ctx); err != nil {
		l.release(ctx)
		return err
	}
	return nil
}

// Call issues req against inner and releases ctx's reserved token
// regardless of outcome.
func (l *Limit[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	defer l.release(ctx)
	return l.inner.Call(ctx, req)
}

func (l *Limit[Req, Resp]) release(ctx context.Context) {
	l.mu.Lock()
	_, held := l.pending[ctx]
	delete(l.pending, ctx)
	l.mu.Unlock()
	if held {
		l.tokens <- struct{}{}
	}
}
