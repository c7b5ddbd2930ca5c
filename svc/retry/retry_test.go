package retry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

func statusExtractor(resp int, err error) (int, *int) { return resp, nil }

func alwaysClonable(req string) (string, bool) { return req, true }

// TestRetry_S1 reproduces scenario S1: a route with the default
// retry budget and retryable class 5xx. The first request's upstream
// returns 503 then 200 (one retry); the second request's upstream returns
// 200 directly (no retry).
func TestRetry_S1(t *testing.T) {
	var calls int32
	statuses := []int{503, 200, 200}
	upstream := svc.ServiceFunc[string, int](func(ctx context.Context, req string) (int, error) {
		i := atomic.AddInt32(&calls, 1) - 1
		return statuses[i], nil
	})

	cfg := Config[string, int]{
		Retry:    collaborators.RetryPolicy{Budget: collaborators.DefaultBudgetSpec(), Retryable: collaborators.RetryableOnFailure},
		Classify: collaborators.DefaultClassifyPolicy(),
		Extract:  statusExtractor,
		Clone:    alwaysClonable,
	}
	r := New(cfg, upstream)

	status1, err1 := r.Call(context.Background(), "req1")
	if err1 != nil || status1 != 200 {
		t.Fatalf("expected request 1 to end 200, got %d err=%v", status1, err1)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 upstream attempts for request 1, got %d", calls)
	}
	deposited, withdrawn := r.Budget().Stats()
	if deposited != 1 || withdrawn != 1 {
		t.Fatalf("expected deposited=1 withdrawn=1 after request 1, got deposited=%d withdrawn=%d", deposited, withdrawn)
	}

	status2, err2 := r.Call(context.Background(), "req2")
	if err2 != nil || status2 != 200 {
		t.Fatalf("expected request 2 to end 200, got %d err=%v", status2, err2)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected exactly 1 more upstream attempt for request 2, got total %d", calls)
	}
	deposited, withdrawn = r.Budget().Stats()
	if deposited != 2 || withdrawn != 1 {
		t.Fatalf("expected deposited=2 withdrawn=1 after request 2, got deposited=%d withdrawn=%d", deposited, withdrawn)
	}
}

// TestRetry_S6 reproduces scenario S6: a non-cloneable request
// body on a route that would otherwise retry on 5xx. Upstream returns 500
// once; no retry is attempted and the skip is attributed to the body.
func TestRetry_S6(t *testing.T) {
	var calls int32
	upstream := svc.ServiceFunc[string, int](func(ctx context.Context, req string) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 500, nil
	})
	var skipped SkipReason
	cfg := Config[string, int]{
		Retry:     collaborators.RetryPolicy{Budget: collaborators.DefaultBudgetSpec(), Retryable: collaborators.RetryableOnFailure},
		Classify:  collaborators.DefaultClassifyPolicy(),
		Extract:   statusExtractor,
		Clone:     func(req string) (string, bool) { return "", false },
		OnSkipped: func(r SkipReason) { skipped = r },
	}
	r := New(cfg, upstream)

	status, err := r.Call(context.Background(), "req")
	if err != nil || status != 500 {
		t.Fatalf("expected final status 500, got %d err=%v", status, err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 upstream attempt, got %d", calls)
	}
	if skipped != SkipReasonBody {
		t.Fatalf("expected skip reason body, got %q", skipped)
	}
}

// TestRetry_BudgetExhaustedSurfacesOriginal ensures that once the budget is
// drained, failures are surfaced without a second attempt.
func TestRetry_BudgetExhaustedSurfacesOriginal(t *testing.T) {
	var calls int32
	upstream := svc.ServiceFunc[string, int](func(ctx context.Context, req string) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 500, nil
	})
	cfg := Config[string, int]{
		Retry:    collaborators.RetryPolicy{Budget: collaborators.BudgetSpec{TTL: time.Second, MinRetriesPerSecond: 0, RetryRatio: 0}, Retryable: collaborators.RetryableOnFailure},
		Classify: collaborators.DefaultClassifyPolicy(),
		Extract:  statusExtractor,
		Clone:    alwaysClonable,
	}
	r := New(cfg, upstream)

	status, err := r.Call(context.Background(), "req")
	if err != nil || status != 500 {
		t.Fatalf("expected final status 500 with no available credit, got %d err=%v", status, err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 upstream attempt when the budget is exhausted, got %d", calls)
	}
	_, withdrawn := r.Budget().Stats()
	if withdrawn != 0 {
		t.Fatalf("expected no successful withdrawal, got %d", withdrawn)
	}
}
