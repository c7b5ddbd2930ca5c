// Package admission assembles LoadShed, Buffer, and ConcurrencyLimit into
// the canonical ordering: LoadShed wraps the buffer's enqueue surface,
// which wraps ConcurrencyLimit around the real upstream service. Shedding
// sits outermost so an overloaded downstream sheds immediately rather than
// queueing inside the buffer.
package admission

import (
	"context"

	"github.com/meshcore/sidecar/svc"
	"github.com/meshcore/sidecar/svc/buffer"
	"github.com/meshcore/sidecar/svc/concurrencylimit"
	"github.com/meshcore/sidecar/svc/loadshed"
)

// Config bounds the admission stack.
type Config struct {
	BufferBound        int
	ConcurrencyLimit   int
}

// Stack is the assembled admission pipeline plus the handle needed to run
// its daemon.
type Stack[Req, Resp any] struct {
	Service svc.Service[Req, Resp]
	buf     *buffer.Buffer[Req, Resp]
	limited svc.Service[Req, Resp]
}

// New builds the admission stack in front of upstream.
func New[Req, Resp any](cfg Config, upstream svc.Service[Req, Resp]) *Stack[Req, Resp] {
	limited := concurrencylimit.New(upstream, cfg.ConcurrencyLimit)
	buf := buffer.New[Req, Resp](cfg.BufferBound)
	shed := loadshed.New[Req, Resp](buf)
	return &Stack[Req, Resp]{Service: shed, buf: buf, limited: limited}
}

// Run drives the buffer's daemon until ctx is cancelled. Call it in its own
// goroutine before sending traffic through Service.
func (s *Stack[Req, Resp]) Run(ctx context.Context) {
	s.buf.Run(ctx, s.limited)
}
