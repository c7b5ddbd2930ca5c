// Package reconnect implements the Reconnect layer: wraps a maker that
// produces a transport service, and on the inner service's failure
// transitions to a backoff state driven by a user-supplied backoff
// stream, re-invoking the maker when backoff elapses.
package reconnect

import (
	"context"
	"sync"

	"github.com/meshcore/sidecar/svc"
)

// Backoff produces successive backoff durations for a connection attempt
// number (0-indexed), matching the "backoff stream" It is
// intentionally a plain function rather than a stream type: Go's idiom for
// "the next value in a sequence" is a closure, not a channel, when no
// external event needs to interrupt it.
type Backoff func(attempt int) (next func() <-chan struct{})

// state is the reconnect state machine: either serving a ready/not-yet-
// ready inner service, or waiting out a backoff period before rebuilding.
type phase int

const (
	phaseConnecting phase = iota
	phaseBackoff
	phaseReady
)

// Reconnect wraps a target-bound maker of transport services. Requests
// never fail due to a transient transport loss: Ready simply reports
// not-ready (by blocking, since this is Go rather than a poll API) until a
// replacement service is built and ready.
type Reconnect[T any, Req, Resp any] struct {
	mu      sync.Mutex
	maker   svc.Maker[T, Req, Resp]
	target  T
	backoff Backoff
	phase   phase
	attempt int
	cur     svc.Service[Req, Resp]
	gen     uint64 // bumped each time cur is replaced
}

// New builds a Reconnect bound to a single target, matching the original's
// per-endpoint reconnect instance (one per cached connection-pool entry).
func New[T any, Req, Resp any](maker svc.Maker[T, Req, Resp], target T, backoff Backoff) *Reconnect[T, Req, Resp] {
	return &Reconnect[T, Req, Resp]{maker: maker, target: target, backoff: backoff, phase: phaseConnecting}
}

// Ready drives the state machine: build (or rebuild) the inner service if
// needed, wait for it to report ready, and on failure enter backoff before
// returning control to the caller. Ready blocks for as long as backoff
// dictates, rather than returning a transient error, // "no requests are dropped -- they await the next ready notification."
func (r *Reconnect[T, Req, Resp]) Ready(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		switch r.phase {
		case phaseConnecting:
			s, err := r.maker.Make(ctx, r.target)
			if err != nil {
				r.enterBackoff()
				continue
			}
			r.cur = s
			r.gen++
			if err := r.cur.Ready(ctx); err != nil {
				r.enterBackoff()
				continue
			}
			r.phase = phaseReady
			r.attempt = 0
			return nil

		case phaseBackoff:
			wait := r.backoff(r.attempt)
			r.mu.Unlock()
			select {
			case <-wait():
			case <-ctx.Done():
				r.mu.Lock()
				return ctx.Err()
			}
			r.mu.Lock()
			r.phase = phaseConnecting
			continue

		case phaseReady:
			if err := r.cur.Ready(ctx); err != nil {
				r.enterBackoff()
				continue
			}
			return nil
		}
	}
}

func (r *Reconnect[T, Req, Resp]) enterBackoff() {
	r.phase = phaseBackoff
	r.attempt++
}

// Call issues the request against the currently-ready inner service. A
// failure here (as opposed to a Ready failure) is surfaced to the caller
// directly, not retried by Reconnect itself -- only reconnects
// on the readiness path; per-call retry is svc/retry's job.
func (r *Reconnect[T, Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	r.mu.Lock()
	cur, gen := r.cur, r.gen
	r.mu.Unlock()
	resp, err := cur.Call(ctx, req)
	if err != nil {
		r.mu.Lock()
		if r.gen == gen {
			r.enterBackoff()
		}
		r.mu.Unlock()
	}
	return resp, err
}

// ExponentialBackoff adapts base, which maps an attempt number to a wait
// channel, into a Backoff. It adds no growth, jitter or cap of its own;
// the wait schedule is whatever base produces.
func ExponentialBackoff(base func(attempt int) <-chan struct{}) Backoff {
	return func(attempt int) func() <-chan struct{} {
		return func() <-chan struct{} { return base(attempt) }
	}
}
