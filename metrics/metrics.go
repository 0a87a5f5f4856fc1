// Package metrics exposes Prometheus collectors for the scorer API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "leadscore"

// Option configures a Metrics instance.
type Option func(*Metrics)

// WithNamespace overrides the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Metrics) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithRegistry registers collectors on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(m *Metrics) {
		if reg != nil {
			m.registry = reg
		}
	}
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(m *Metrics) {
		m.runtime = true
	}
}

// WithBuckets sets the latency histogram buckets (seconds).
func WithBuckets(buckets []float64) Option {
	return func(m *Metrics) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// Metrics holds the scorer service collectors on a private registry.
type Metrics struct {
	namespace string
	registry  *prometheus.Registry
	buckets   []float64
	runtime   bool

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	qualifications      *prometheus.CounterVec
	scores              prometheus.Histogram
	websiteFetches      *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec
}

// New creates the collectors. Without WithRegistry each instance gets its own
// registry so tests and multiple servers never collide.
func New(opts ...Option) *Metrics {
	m := &Metrics{
		namespace: defaultNamespace,
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	if m.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	auto := promauto.With(m.registry)

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   m.buckets,
	}, []string{"route", "method"})

	m.qualifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "scorer",
		Name:      "qualifications_total",
		Help:      "Scored leads by outcome and confidence",
	}, []string{"qualified", "confidence"})

	m.scores = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "scorer",
		Name:      "score",
		Help:      "Distribution of qualification scores",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	m.websiteFetches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "website",
		Name:      "fetches_total",
		Help:      "Website text fetches by result",
	}, []string{"result"})

	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "website",
		Name:      "cache_lookups_total",
		Help:      "Website text cache lookups by result",
	}, []string{"result"})

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// ObserveQualification records one scored lead.
func (m *Metrics) ObserveQualification(score float64, qualified bool, confidence string) {
	if m == nil {
		return
	}
	m.qualifications.WithLabelValues(strconv.FormatBool(qualified), confidence).Inc()
	m.scores.Observe(score)
}

// Website fetch results.
const (
	FetchOK     = "ok"
	FetchFailed = "failed"
	FetchEmpty  = "empty"
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "disabled"
)

// ObserveWebsiteFetch records a website fetch outcome.
func (m *Metrics) ObserveWebsiteFetch(result string) {
	if m == nil {
		return
	}
	m.websiteFetches.WithLabelValues(result).Inc()
}

// ObserveCacheLookup records a website cache lookup outcome.
func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
