// Package buffer implements a bounded FIFO with a single daemon task that
// owns the inner service and drains the queue strictly in order.
// Requests that outlive the daemon fail with LostDaemon.
package buffer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

type job[Req, Resp any] struct {
	ctx    context.Context
	req    Req
	respCh chan result[Resp]
}

type result[Resp any] struct {
	resp Resp
	err  error
}

// Buffer is the admission-side FIFO queue. It implements svc.Service; Run
// must be started in its own goroutine to drain the queue against a real
// inner service.
type Buffer[Req, Resp any] struct {
	ch       chan job[Req, Resp]
	capacity int
	inFlight int32 // queued and being-processed jobs, for Ready's admission check

	mu   sync.Mutex
	lost bool
}

// New constructs a Buffer with the given bound.
func New[Req, Resp any](bound int) *Buffer[Req, Resp] {
	return &Buffer[Req, Resp]{ch: make(chan job[Req, Resp], bound), capacity: bound}
}

// Ready reports ErrNotReady when the queue is at capacity, so LoadShed can
// shed rather than let the request queue indefinitely.
func (b *Buffer[Req, Resp]) Ready(ctx context.Context) error {
	b.mu.Lock()
	lost := b.lost
	b.mu.Unlock()
	if lost {
		return collaborators.New(collaborators.KindLostDaemon, nil)
	}
	if atomic.LoadInt32(&b.inFlight) >= int32(b.capacity) {
		return svc.ErrNotReady
	}
	return nil
}

// Call enqueues the request and waits for the daemon to process it and
// deliver a response, preserving submission order.
func (b *Buffer[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	j := job[Req, Resp]{ctx: ctx, req: req, respCh: make(chan result[Resp], 1)}
	select {
	case b.ch <- j:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	atomic.AddInt32(&b.inFlight, 1)
	defer atomic.AddInt32(&b.inFlight, -1)
	select {
	case r := <-j.respCh:
		return r.resp, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Run is the daemon: it drains the queue strictly in order against inner
// until ctx is cancelled, at which point outstanding and future Call
// invocations observe LostDaemon.
func (b *Buffer[Req, Resp]) Run(ctx context.Context, inner svc.Service[Req, Resp]) {
	defer func() {
		b.mu.Lock()
		b.lost = true
		b.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-b.ch:
			if err := inner.Ready(j.ctx); err != nil {
				j.respCh <- result[Resp]{err: err}
				continue
			}
			resp, err := inner.Call(j.ctx, j.req)
			j.respCh <- result[Resp]{resp: resp, err: err}
		}
	}
}
