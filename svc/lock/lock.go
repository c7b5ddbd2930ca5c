// Package lock implements the C3 Lock layer : serializing
// Ready/Call pairs across concurrent clones of a service that is not
// itself concurrency-safe (notably connection pools and the profiles
// router), with a poisoning rule for permanent inner failures.
package lock

import (
	"context"
	"sync"

	"github.com/meshcore/sidecar/svc"
)

// Lock wraps inner with a fair mutex acquired before Ready and held through
// the paired Call. If inner's Ready ever returns a permanent failure, that
// failure is cached and returned to every subsequent caller until the Lock
// is discarded.
type Lock[Req, Resp any] struct {
	mu       sync.Mutex
	inner    svc.Service[Req, Resp]
	isFatal  func(error) bool
	poisoned error
}

// New wraps inner in a Lock. isFatal classifies which Ready errors poison
// the lock permanently versus which are merely transient (and so should be
// retried on the next Ready call without poisoning). A nil isFatal treats
// every Ready error as poisoning, matching the original lock's behavior
// for inner services that never recover from their own failures.
func New[Req, Resp any](inner svc.Service[Req, Resp], isFatal func(error) bool) *Lock[Req, Resp] {
	if isFatal == nil {
		isFatal = func(error) bool { return true }
	}
	return &Lock[Req, Resp]{inner: inner, isFatal: isFatal}
}

// Layer returns a svc.Layer that wraps its inner service in a Lock, for use
// with svc.Stack.Push.
func Layer[Req, Resp any](isFatal func(error) bool) svc.Layer[Req, Resp] {
	return func(inner svc.Service[Req, Resp]) svc.Service[Req, Resp] {
		return New(inner, isFatal)
	}
}

func (l *Lock[Req, Resp]) Ready(ctx context.Context) error {
	l.mu.Lock()
	if l.poisoned != nil {
		l.mu.Unlock()
		return l.poisoned
	}
	if err := l.inner.Ready(ctx); err != nil {
		if l.isFatal(err) {
			l.poisoned = err
		}
		l.mu.Unlock()
		return err
	}
	// Intentionally keep the lock held across Call: the contract is that
	// exactly one Call follows a successful Ready before the lock may be
	// acquired by another goroutine.
	return nil
}

func (l *Lock[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	defer l.mu.Unlock()
	return l.inner.Call(ctx, req)
}
