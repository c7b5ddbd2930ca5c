// Package retry implements the Retry layer (component C6):
// on a classified failure it withdraws from the route's retry budget,
// clones the request, and re-issues exactly once against the inner
// service. Retries are never themselves retried.
package retry

import (
	"context"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
	"github.com/meshcore/sidecar/svc/classify"
)

// SkipReason names why a would-be retry was not attempted, for metrics
type SkipReason string

const SkipReasonBody SkipReason = "body"

// CloneRequest produces an independent copy of req suitable for re-issue,
// or reports false when the request cannot be cloned (e.g. its body has
// already been consumed and is not buffered). A caller's CloneRequest
// should copy the whitelisted extensions (peer identity, elapsed-time
// tracker) and drop everything else.
type CloneRequest[Req any] func(req Req) (Req, bool)

// Retry wraps inner with the retry discipline described above.
type Retry[Req, Resp any] struct {
	inner     svc.Service[Req, Resp]
	budget    *Budget
	policy    collaborators.RetryPolicy
	classify  collaborators.ClassifyPolicy
	extract   classify.Extractor[Resp]
	clone     CloneRequest[Req]
	onSkipped func(SkipReason)
}

// Config bundles the policy and hooks a Retry needs.
type Config[Req, Resp any] struct {
	Retry     collaborators.RetryPolicy
	Classify  collaborators.ClassifyPolicy
	Extract   classify.Extractor[Resp]
	Clone     CloneRequest[Req]
	OnSkipped func(SkipReason)
}

// New wraps inner with retry behavior driven by cfg. A fresh Budget is
// created from cfg.Retry.Budget; share one Budget across routes that should
// share retry credit by constructing it separately and exposing it via a
// variant of this constructor if ever needed.
func New[Req, Resp any](cfg Config[Req, Resp], inner svc.Service[Req, Resp]) *Retry[Req, Resp] {
	return &Retry[Req, Resp]{
		inner:     inner,
		budget:    NewBudget(cfg.Retry.Budget),
		policy:    cfg.Retry,
		classify:  cfg.Classify,
		extract:   cfg.Extract,
		clone:     cfg.Clone,
		onSkipped: cfg.OnSkipped,
	}
}

func (r *Retry[Req, Resp]) Ready(ctx context.Context) error { return r.inner.Ready(ctx) }

// Call issues req against inner, classifies the response, and retries once
// if the policy and budget allow it.
func (r *Retry[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	resp, err := r.inner.Call(ctx, req)
	if r.verdict(resp, err) == classify.Success {
		r.budget.Deposit()
		return resp, err
	}
	if r.policy.Retryable == nil || !r.policy.Retryable(true, r.classify.Labels) {
		return resp, err
	}
	if !r.budget.Withdraw() {
		return resp, err
	}
	cloned, ok := r.tryClone(req)
	if !ok {
		return resp, err
	}
	if rerr := r.inner.Ready(ctx); rerr != nil {
		return resp, err
	}
	retryResp, retryErr := r.inner.Call(ctx, cloned)
	if r.verdict(retryResp, retryErr) == classify.Success {
		r.budget.Deposit()
	}
	return retryResp, retryErr
}

func (r *Retry[Req, Resp]) verdict(resp Resp, err error) classify.Verdict {
	status, grpcCode := 0, (*int)(nil)
	if r.extract != nil {
		status, grpcCode = r.extract(resp, err)
	}
	return classify.Classify(r.classify, status, grpcCode, err).Verdict
}

func (r *Retry[Req, Resp]) tryClone(req Req) (Req, bool) {
	if r.clone == nil {
		var zero Req
		return zero, false
	}
	cloned, ok := r.clone(req)
	if !ok && r.onSkipped != nil {
		r.onSkipped(SkipReasonBody)
	}
	return cloned, ok
}

// Budget exposes the underlying budget for metrics and tests.
func (r *Retry[Req, Resp]) Budget() *Budget { return r.budget }
