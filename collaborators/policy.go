package collaborators

import "time"

// StatusRange is an inclusive [Min, Max] HTTP status code range used by a
// ClassifyPolicy, "status ranges".
type StatusRange struct {
	Min, Max int
}

func (r StatusRange) Contains(status int) bool { return status >= r.Min && status <= r.Max }

// ConnectionErrorMatcher reports whether a transport-level error (as
// opposed to a well-formed response) should be classified as a failure.
type ConnectionErrorMatcher func(err error) bool

// ClassifyPolicy is a route's response-classification policy: status
// ranges, gRPC status codes, and connection-error matchers that together
// decide the Success/Failure verdict for a response.
type ClassifyPolicy struct {
	FailureStatusRanges []StatusRange
	FailureGRPCCodes    []int
	IsConnectionError   ConnectionErrorMatcher
	// Labels attached to every verdict produced under this policy, used
	// for metrics.
	Labels map[string]string
}

// DefaultClassifyPolicy treats any 5xx status or a non-nil connection error
// as failure, matching the original's default response classes.
func DefaultClassifyPolicy() ClassifyPolicy {
	return ClassifyPolicy{
		FailureStatusRanges: []StatusRange{{Min: 500, Max: 599}},
		IsConnectionError:   func(err error) bool { return err != nil },
	}
}

// RetryPolicy is a route's retry policy: a budget plus which response
// classes are considered retryable.
type RetryPolicy struct {
	Budget BudgetSpec
	// Retryable reports whether the verdict/labels produced by
	// ClassifyPolicy for a given response should be retried. Most routes
	// simply retry on Failure; this hook exists so a route can retry on a
	// subset of failures (e.g. only gRPC UNAVAILABLE).
	Retryable func(isFailure bool, labels map[string]string) bool
}

// RetryableOnFailure is the common case: retry any response classified as
// Failure.
func RetryableOnFailure(isFailure bool, _ map[string]string) bool { return isFailure }

// BudgetSpec configures a retry token bucket: refill rate is
// max(MinRetriesPerSecond, RetryRatio * success-rps).
type BudgetSpec struct {
	TTL                 time.Duration
	MinRetriesPerSecond float64
	RetryRatio          float64
}

// DefaultBudgetSpec matches scenario S1.
func DefaultBudgetSpec() BudgetSpec {
	return BudgetSpec{TTL: 10 * time.Second, MinRetriesPerSecond: 10, RetryRatio: 0.1}
}
