// Per-route HTTP metrics: a request total, a response-latency histogram,
// and a retryable-failure counter, all partitioned by route name rather
// than raw status code, matching linkerd's http-metrics label
// cardinality discipline.
package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/profiles"
	"github.com/meshcore/sidecar/svc"
	"github.com/meshcore/sidecar/svc/classify"
)

// RouteMetrics records per-route request counts, latency, and retryable
// failures against a MetricsSink. One RouteMetrics layer wraps each
// distinct route's service, so labels never vary per request.
type RouteMetrics struct {
	inner   svc.Service[*http.Request, *http.Response]
	total   collaborators.CounterHandle
	latency collaborators.HistogramHandle
	retried collaborators.CounterHandle
	classify collaborators.ClassifyPolicy
}

// RouteMetricsLayer returns a profiles.RouteBuilder wrapping build's output
// with a RouteMetrics layer scoped to route.Name, so it composes outside
// the timeout/retry middleware route builders already add.
func RouteMetricsLayer(sink collaborators.MetricsSink, build profiles.RouteBuilder[*http.Request, *http.Response]) profiles.RouteBuilder[*http.Request, *http.Response] {
	return func(route collaborators.Route, concrete svc.Service[*http.Request, *http.Response]) svc.Service[*http.Request, *http.Response] {
		inner := concrete
		if build != nil {
			inner = build(route, concrete)
		}
		if sink == nil {
			return inner
		}
		labels := map[string]string{"route": route.Name}
		return &RouteMetrics{
			inner:    inner,
			total:    sink.Counter("route_requests_total", labels),
			latency:  sink.Histogram("route_response_latency_seconds", labels),
			retried:  sink.Counter("route_retryable_failures_total", labels),
			classify: route.Classify,
		}
	}
}

func (m *RouteMetrics) Ready(ctx context.Context) error { return m.inner.Ready(ctx) }

func (m *RouteMetrics) Call(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := m.inner.Call(ctx, req)
	m.latency.Observe(time.Since(start).Seconds())
	m.total.Inc()

	status, grpcCode := ExtractVerdict(resp, err)
	result := classify.Classify(m.classify, status, grpcCode, err)
	if result.Verdict == classify.Failure {
		m.retried.Inc()
	}
	return resp, err
}
