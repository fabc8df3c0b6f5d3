// Package metrics instruments the request lifecycle with Prometheus.
// Collection is opt-in; the client runs without a collector by default.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes counters and histograms for requests, retries,
// deduplication hits and taxonomy errors. Safe for concurrent use.
type Collector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	retriesTotal     *prometheus.CounterVec
	dedupHitsTotal   *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
}

// NewCollector registers the metrics on the default registerer.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry registers the metrics on the supplied registerer.
func NewCollectorWithRegistry(registry prometheus.Registerer) *Collector {
	return &Collector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "flux_requests_total",
				Help: "Total number of requests completed",
			},
			[]string{"method", "status"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flux_request_duration_seconds",
				Help:    "End-to-end request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		requestsInFlight: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "flux_requests_in_flight",
				Help: "Requests currently executing",
			},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "flux_retries_total",
				Help: "Retry attempts performed",
			},
			[]string{"method"},
		),
		dedupHitsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "flux_dedup_hits_total",
				Help: "Requests served by sharing an in-flight execution",
			},
			[]string{"method"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "flux_errors_total",
				Help: "Failures by taxonomy code",
			},
			[]string{"code"},
		),
	}
}

// RequestStarted marks a request in flight and returns a done callback that
// records the outcome.
func (c *Collector) RequestStarted(method string) func(status int, elapsed time.Duration) {
	if c == nil {
		return func(int, time.Duration) {}
	}
	c.requestsInFlight.Inc()
	return func(status int, elapsed time.Duration) {
		c.requestsInFlight.Dec()
		c.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
		c.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	}
}

// RetryPerformed counts one retry attempt.
func (c *Collector) RetryPerformed(method string) {
	if c == nil {
		return
	}
	c.retriesTotal.WithLabelValues(method).Inc()
}

// DedupHit counts a request served from a shared in-flight execution.
func (c *Collector) DedupHit(method string) {
	if c == nil {
		return
	}
	c.dedupHitsTotal.WithLabelValues(method).Inc()
}

// ErrorObserved counts a final failure by taxonomy code.
func (c *Collector) ErrorObserved(code string) {
	if c == nil {
		return
	}
	c.errorsTotal.WithLabelValues(code).Inc()
}
