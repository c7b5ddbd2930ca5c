package svc

import "context"

// boxed erases the concrete type of an inner service behind the Service
// interface. It exists so module boundaries (e.g. proxy assembly handing a
// stack to an http.Handler adapter) don't leak the full generic
// instantiation of every layer in between, matching the `boxed` layer
// named in the stack algebra.
type boxed[Req, Resp any] struct {
	inner Service[Req, Resp]
}

func (b boxed[Req, Resp]) Ready(ctx context.Context) error { return b.inner.Ready(ctx) }

func (b boxed[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return b.inner.Call(ctx, req)
}

// Boxed returns a Layer that erases the inner service's concrete type.
func Boxed[Req, Resp any]() Layer[Req, Resp] {
	return func(inner Service[Req, Resp]) Service[Req, Resp] {
		return boxed[Req, Resp]{inner: inner}
	}
}
