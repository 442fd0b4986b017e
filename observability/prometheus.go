package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// latencyBuckets covers 10ms to roughly 80s, the range of a store purchase
// sheet including user interaction.
var latencyBuckets = prometheus.ExponentialBuckets(10, 2, 14)

// PrometheusFactory implements MetricFactory on a Prometheus registry.
// Dotted metric names become underscore-separated; counters get the
// conventional _total suffix.
type PrometheusFactory struct {
	registry prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewPrometheusFactory registers metrics on reg. A nil reg uses a fresh
// registry, available through Registry.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &PrometheusFactory{
		registry:   reg,
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Registry returns the registerer metrics are attached to.
func (f *PrometheusFactory) Registry() prometheus.Registerer { return f.registry }

// Counter returns the counter for name, creating it on first use.
func (f *PrometheusFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: "Count of " + name + ".",
	})
	f.counters[name] = registerOrExisting(f.registry, c).(prometheus.Counter)
	return f.counters[name]
}

// Histogram returns the histogram for name, creating it on first use.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    "Distribution of " + name + ".",
		Buckets: latencyBuckets,
	})
	f.histograms[name] = registerOrExisting(f.registry, h).(prometheus.Histogram)
	return f.histograms[name]
}

// registerOrExisting registers c, returning the already registered
// collector when an identical one exists (two factories on one registry).
func registerOrExisting(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
