package concurrencylimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meshcore/sidecar/svc"
)

// TestLimit_AdmitsUpToMaxConcurrently is the property test for invariant
// 5's concurrency half: with max=3, three callers can hold a reservation
// at once and all observe Ready succeed before any of them calls in.
func TestLimit_AdmitsUpToMaxConcurrently(t *testing.T) {
	var inFlight, peak int32
	block := make(chan struct{})
	upstream := svc.ServiceFunc[int, int](func(ctx context.Context, req int) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-block
		atomic.AddInt32(&inFlight, -1)
		return req, nil
	})

	l := New[int, int](upstream, 3)

	type callerKey int

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Each simulated caller gets its own ctx value, matching how
			// distinct in-flight requests are never the same context.Context
			// instance in real usage (each request derives its own).
			ctx := context.WithValue(context.Background(), callerKey(0), i)
			if err := l.Ready(ctx); err != nil {
				results[i] = err
				return
			}
			_, results[i] = l.Call(ctx, i)
		}(i)
	}

	// Give the three admitted callers time to reach upstream and park on
	// block; the fourth must never acquire a token to get there.
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&peak); got != 3 {
		t.Fatalf("expected exactly 3 concurrent calls admitted, peak was %d", got)
	}
	close(block)
	wg.Wait()

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
		} else if err != svc.ErrNotReady {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 3 {
		t.Fatalf("expected the 3 admitted callers to complete and the fourth to be rejected with ErrNotReady, got %d ok", ok)
	}
}

// TestLimit_RejectsBeyondMax confirms a caller whose Ready arrives while
// max reservations are already held is turned away rather than piggybacking
// on another caller's in-flight reservation.
func TestLimit_RejectsBeyondMax(t *testing.T) {
	block := make(chan struct{})
	upstream := svc.ServiceFunc[int, int](func(ctx context.Context, req int) (int, error) {
		<-block
		return req, nil
	})
	l := New[int, int](upstream, 1)

	type callerKey int
	holderCtx := context.WithValue(context.Background(), callerKey(0), "holder")
	if err := l.Ready(holderCtx); err != nil {
		t.Fatalf("expected first Ready to acquire the only token, got %v", err)
	}
	go func() { _, _ = l.Call(holderCtx, 1) }()
	time.Sleep(10 * time.Millisecond)

	secondCtx := context.WithValue(context.Background(), callerKey(0), "second")
	if err := l.Ready(secondCtx); err != svc.ErrNotReady {
		t.Fatalf("expected second caller to be rejected while the only token is held, got %v", err)
	}
	close(block)
}

// TestLimit_ReleaseFreesTokenForNextCaller checks that completing a Call
// returns its token so a subsequent Ready can acquire it.
func TestLimit_ReleaseFreesTokenForNextCaller(t *testing.T) {
	upstream := svc.ServiceFunc[int, int](func(ctx context.Context, req int) (int, error) {
		return req * 2, nil
	})
	l := New[int, int](upstream, 1)

	type callerKey int
	ctx1 := context.WithValue(context.Background(), callerKey(0), "first")
	if err := l.Ready(ctx1); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	got, err := l.Call(ctx1, 5)
	if err != nil || got != 10 {
		t.Fatalf("Call: got %d, %v", got, err)
	}

	ctx2 := context.WithValue(context.Background(), callerKey(0), "second")
	if err := l.Ready(ctx2); err != nil {
		t.Fatalf("expected token to be free after the first Call completed, got %v", err)
	}
	if _, err := l.Call(ctx2, 7); err != nil {
		t.Fatalf("Call: %v", err)
	}
}
