// Package timeout implements the timeout(d) and ready-timeout(d) layers:
// they bound how long a Call, respectively a Ready,
// may take before failing with collaborators.KindTimeout.
package timeout

import (
	"context"
	"time"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

// Timeout wraps inner, bounding Call by d.
type Timeout[Req, Resp any] struct {
	inner svc.Service[Req, Resp]
	d     time.Duration
}

// New wraps inner with a per-call timeout of d.
func New[Req, Resp any](inner svc.Service[Req, Resp], d time.Duration) *Timeout[Req, Resp] {
	return &Timeout[Req, Resp]{inner: inner, d: d}
}

// Layer returns a svc.Layer applying timeout(d).
func Layer[Req, Resp any](d time.Duration) svc.Layer[Req, Resp] {
	return func(inner svc.Service[Req, Resp]) svc.Service[Req, Resp] {
		return New(inner, d)
	}
}

func (t *Timeout[Req, Resp]) Ready(ctx context.Context) error { return t.inner.Ready(ctx) }

func (t *Timeout[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	resp, err := t.inner.Call(ctx, req)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return resp, collaborators.New(collaborators.KindTimeout, err)
	}
	return resp, err
}

// ReadyTimeout wraps inner, bounding Ready by d.
type ReadyTimeout[Req, Resp any] struct {
	inner svc.Service[Req, Resp]
	d     time.Duration
}

// NewReady wraps inner with a per-Ready timeout of d.
func NewReady[Req, Resp any](inner svc.Service[Req, Resp], d time.Duration) *ReadyTimeout[Req, Resp] {
	return &ReadyTimeout[Req, Resp]{inner: inner, d: d}
}

// ReadyLayer returns a svc.Layer applying ready-timeout(d).
func ReadyLayer[Req, Resp any](d time.Duration) svc.Layer[Req, Resp] {
	return func(inner svc.Service[Req, Resp]) svc.Service[Req, Resp] {
		return NewReady(inner, d)
	}
}

func (t *ReadyTimeout[Req, Resp]) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	err := t.inner.Ready(ctx)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return collaborators.New(collaborators.KindTimeout, err)
	}
	return err
}

func (t *ReadyTimeout[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return t.inner.Call(ctx, req)
}
