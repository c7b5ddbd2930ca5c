package telemetry

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meshcore/sidecar/collaborators"
)

// PromSink implements collaborators.MetricsSink over
// github.com/prometheus/client_golang. Each vector is created and
// registered the first time its name is recorded, and a child is looked
// up by label values at record time.
type PromSink struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPromSink constructs a PromSink registered against registry (pass
// prometheus.DefaultRegisterer's registry, or a fresh one for tests).
func NewPromSink(namespace string, registry *prometheus.Registry) *PromSink {
	return &PromSink{
		namespace:  namespace,
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

func labelNames(labels map[string]string) ([]string, []string) {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	values := make([]string, len(names))
	for i, k := range names {
		values[i] = labels[k]
	}
	return names, values
}

func (s *PromSink) Counter(name string, labels map[string]string) collaborators.CounterHandle {
	names, values := labelNames(labels)
	s.mu.Lock()
	vec, ok := s.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      sanitize(name),
			Help:      name,
		}, names)
		s.counters[name] = vec
		s.registry.MustRegister(vec)
	}
	s.mu.Unlock()
	return counterHandle{vec.WithLabelValues(values...)}
}

func (s *PromSink) Histogram(name string, labels map[string]string) collaborators.HistogramHandle {
	names, values := labelNames(labels)
	s.mu.Lock()
	vec, ok := s.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      sanitize(name),
			Help:      name,
			Buckets:   prometheus.DefBuckets,
		}, names)
		s.histograms[name] = vec
		s.registry.MustRegister(vec)
	}
	s.mu.Unlock()
	return histogramHandle{vec.WithLabelValues(values...)}
}

func (s *PromSink) Gauge(name string, labels map[string]string) collaborators.GaugeHandle {
	names, values := labelNames(labels)
	s.mu.Lock()
	vec, ok := s.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      sanitize(name),
			Help:      name,
		}, names)
		s.gauges[name] = vec
		s.registry.MustRegister(vec)
	}
	s.mu.Unlock()
	return gaugeHandle{vec.WithLabelValues(values...)}
}

func sanitize(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "-", "_"), ".", "_")
}

type counterHandle struct{ c prometheus.Counter }

func (h counterHandle) Inc()            { h.c.Inc() }
func (h counterHandle) Add(d float64)   { h.c.Add(d) }

type histogramHandle struct{ o prometheus.Observer }

func (h histogramHandle) Observe(v float64) { h.o.Observe(v) }

type gaugeHandle struct{ g prometheus.Gauge }

func (h gaugeHandle) Set(v float64) { h.g.Set(v) }
func (h gaugeHandle) Add(d float64) { h.g.Add(d) }
