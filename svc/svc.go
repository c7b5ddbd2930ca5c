// Package svc implements the stack algebra that the rest of the sidecar is
// built from: a small set of composable types for turning a "maker" (a
// function from a routing key to a per-key service) and the resulting
// per-request "service" into a typed pipeline.
//
// Every Service in this tree follows one discipline: a caller must observe
// Ready before calling Call, and at most one Call is permitted per Ready
// observation before readiness must be polled again. Layers that do not
// themselves buffer work simply forward this discipline to their inner
// service; layers that do buffer (Buffer, Lock) compute
// readiness from their own capacity instead and surface downstream errors
// on the next Call. See buffer, lock, and router for the layers that care.
package svc

import (
	"context"
	"errors"
)

// ErrNotReady is returned by Ready to signal ordinary, transient
// unreadiness (a full buffer, an exhausted concurrency limit) as opposed
// to a hard failure. LoadShed is the layer that turns this into a
// user-visible Overloaded response; other layers should treat it as
// "try again later", never as a reason to tear anything down.
var ErrNotReady = errors.New("svc: not ready")

// Service is a ready/call pair for a single request/response type.
type Service[Req, Resp any] interface {
	// Ready blocks until the service can accept a Call, or returns an
	// error if the service can never become ready again (e.g. the inner
	// connection is permanently broken). Ready must be safe to call
	// repeatedly.
	Ready(ctx context.Context) error
	// Call issues a single request. A caller must have most recently
	// observed a nil error from Ready.
	Call(ctx context.Context, req Req) (Resp, error)
}

// ServiceFunc adapts two plain functions to the Service interface for
// services with no readiness state of their own (always ready).
type ServiceFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f ServiceFunc[Req, Resp]) Ready(context.Context) error { return nil }

func (f ServiceFunc[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// Maker produces a Service for a routing key. Makers may fail and may be
// asynchronous, but a Maker that sits behind the cache must be cheap and
// non-blocking: long initialization belongs in the produced
// service's first Ready.
type Maker[K any, Req, Resp any] interface {
	Make(ctx context.Context, key K) (Service[Req, Resp], error)
}

// MakerFunc adapts a plain function to the Maker interface.
type MakerFunc[K any, Req, Resp any] func(ctx context.Context, key K) (Service[Req, Resp], error)

func (f MakerFunc[K, Req, Resp]) Make(ctx context.Context, key K) (Service[Req, Resp], error) {
	return f(ctx, key)
}

// Layer transforms a service into another service of the same request and
// response type, e.g. adding timeouts, concurrency limits, or metrics.
type Layer[Req, Resp any] func(Service[Req, Resp]) Service[Req, Resp]

// MakerLayer transforms a maker, e.g. wrapping every produced service with
// a Layer (see PerMake) or adding a cache in front of the maker.
type MakerLayer[K any, Req, Resp any] func(Maker[K, Req, Resp]) Maker[K, Req, Resp]

// Stack holds a single service and exposes Push to compose layers
// outer-over-inner: stack.Push(a).Push(b) wraps a's result with b, so b
// observes requests before a does. This mirrors the push-per-layer algebra
// of the original stack.rs Stack type.
type Stack[Req, Resp any] struct {
	svc Service[Req, Resp]
}

// New wraps a base service as the innermost layer of a Stack.
func New[Req, Resp any](s Service[Req, Resp]) Stack[Req, Resp] {
	return Stack[Req, Resp]{svc: s}
}

// Push composes layer outer-over-inner and returns the new stack.
func (s Stack[Req, Resp]) Push(layer Layer[Req, Resp]) Stack[Req, Resp] {
	return Stack[Req, Resp]{svc: layer(s.svc)}
}

// Service returns the composed service.
func (s Stack[Req, Resp]) Service() Service[Req, Resp] {
	return s.svc
}

// MakerStack is the Maker-side analogue of Stack: it composes MakerLayers
// outer-over-inner the same way Stack composes Layers.
type MakerStack[K any, Req, Resp any] struct {
	maker Maker[K, Req, Resp]
}

// NewMaker wraps a base maker as the innermost layer of a MakerStack.
func NewMaker[K any, Req, Resp any](m Maker[K, Req, Resp]) MakerStack[K, Req, Resp] {
	return MakerStack[K, Req, Resp]{maker: m}
}

// Push composes a MakerLayer outer-over-inner.
func (s MakerStack[K, Req, Resp]) Push(layer MakerLayer[K, Req, Resp]) MakerStack[K, Req, Resp] {
	return MakerStack[K, Req, Resp]{maker: layer(s.maker)}
}

// Maker returns the composed maker.
func (s MakerStack[K, Req, Resp]) Maker() Maker[K, Req, Resp] {
	return s.maker
}

// PerMake returns a MakerLayer that applies layer to every service produced
// by the inner maker.
func PerMake[K any, Req, Resp any](layer Layer[Req, Resp]) MakerLayer[K, Req, Resp] {
	return func(inner Maker[K, Req, Resp]) Maker[K, Req, Resp] {
		return MakerFunc[K, Req, Resp](func(ctx context.Context, key K) (Service[Req, Resp], error) {
			svc, err := inner.Make(ctx, key)
			if err != nil {
				return nil, err
			}
			return layer(svc), nil
		})
	}
}

// Oneshot acquires readiness and issues exactly one call, the "oneshot(req)"
// semantics used by the router. It is the one place in this
// tree that glues Ready and Call together for callers that don't want to
// manage the discipline themselves.
func Oneshot[Req, Resp any](ctx context.Context, s Service[Req, Resp], req Req) (Resp, error) {
	var zero Resp
	if err := s.Ready(ctx); err != nil {
		return zero, err
	}
	return s.Call(ctx, req)
}
