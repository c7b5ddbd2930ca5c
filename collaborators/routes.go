package collaborators

import "time"

// RequestMatch predicates a request for route selection. It is deliberately opaque to this package: the profiles
// engine only needs to evaluate it, not understand its structure.
type RequestMatch func(method, path string, headers map[string][]string) bool

// Route is one (request-match, route) pair's route half, plus the default
// route used when nothing matches.
type Route struct {
	Name     string
	Classify ClassifyPolicy
	Timeout  time.Duration
	Retry    *RetryPolicy
	Labels   map[string]string
}

// RouteRule pairs a RequestMatch with the Route it selects. Rules are
// scanned in order; the first match wins.
type RouteRule struct {
	Match RequestMatch
	Route Route
}

// DestinationOverride is one weighted concrete destination in a traffic
// split.
type DestinationOverride struct {
	Name   string
	Weight uint32
}

// Routes is a single update from ProfileClient.GetRoutes: an ordered list
// of route rules, a default route, and an optional weighted destination
// override list.
type Routes struct {
	Rules               []RouteRule
	Default             Route
	DestinationOverrides []DestinationOverride
}
