// Package classify implements the Classify stage (component
// C6): on every response, a route's policy inspects the status code,
// optional gRPC status, and connection-error kind and emits a Success or
// Failure verdict plus metric labels. Classify never decides whether to
// retry; svc/retry consults the same policy independently.
package classify

import "github.com/meshcore/sidecar/collaborators"

// Verdict is the outcome of classifying one response.
type Verdict int

const (
	Success Verdict = iota
	Failure
)

func (v Verdict) String() string {
	if v == Failure {
		return "failure"
	}
	return "success"
}

// Result is the classification of one response, end of stream.
type Result struct {
	Verdict Verdict
	Labels  map[string]string
}

// Classify applies policy to a response outcome. status and grpcCode may be
// zero-value / nil when not applicable to the protocol in play; connErr is
// the transport-level error, if any, that short-circuited the response.
func Classify(policy collaborators.ClassifyPolicy, status int, grpcCode *int, connErr error) Result {
	if connErr != nil && policy.IsConnectionError != nil && policy.IsConnectionError(connErr) {
		return Result{Verdict: Failure, Labels: policy.Labels}
	}
	for _, r := range policy.FailureStatusRanges {
		if r.Contains(status) {
			return Result{Verdict: Failure, Labels: policy.Labels}
		}
	}
	if grpcCode != nil {
		for _, c := range policy.FailureGRPCCodes {
			if c == *grpcCode {
				return Result{Verdict: Failure, Labels: policy.Labels}
			}
		}
	}
	return Result{Verdict: Success, Labels: policy.Labels}
}

// Extractor pulls the classification-relevant fields out of a protocol
// response. Routes instantiate this per protocol (HTTP status code, gRPC
// trailer, etc).
type Extractor[Resp any] func(resp Resp, err error) (status int, grpcCode *int)
