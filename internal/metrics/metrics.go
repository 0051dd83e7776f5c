package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry                *prometheus.Registry
	httpRequests            *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	upstreamRequests        *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec
	sequences               *prometheus.CounterVec
	sequenceDuration        *prometheus.HistogramVec
	droppedTargetDetails    prometheus.Counter
}

// New creates a fresh Metrics registry with HTTP, upstream and sequence metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "viewer",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by viewer-go",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "viewer",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by viewer-go",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	upstreamRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "viewer",
		Name:      "upstream_requests_total",
		Help:      "Count of requests sent to the Gotham API",
	}, []string{"operation", "status"})

	upstreamRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "viewer",
		Name:      "upstream_request_duration_seconds",
		Help:      "Duration of requests sent to the Gotham API",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	sequences := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "viewer",
		Name:      "sequences_total",
		Help:      "Fetch sequences by action and outcome",
	}, []string{"action", "outcome"})

	sequenceDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "viewer",
		Name:      "sequence_duration_seconds",
		Help:      "Duration of fetch sequences from trigger to store write",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"action"})

	droppedTargetDetails := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "viewer",
		Name:      "target_details_dropped_total",
		Help:      "Target references dropped from a board because their detail fetch failed",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		upstreamRequests,
		upstreamRequestDuration,
		sequences,
		sequenceDuration,
		droppedTargetDetails,
	)

	return &Metrics{
		registry:                registry,
		httpRequests:            httpRequests,
		httpRequestDuration:     httpRequestDuration,
		upstreamRequests:        upstreamRequests,
		upstreamRequestDuration: upstreamRequestDuration,
		sequences:               sequences,
		sequenceDuration:        sequenceDuration,
		droppedTargetDetails:    droppedTargetDetails,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveUpstreamRequest records one call to the Gotham API. A zero status
// means the request never produced a response.
func (m *Metrics) ObserveUpstreamRequest(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := "error"
	if status > 0 {
		statusLabel = strconv.Itoa(status)
	}
	m.upstreamRequests.WithLabelValues(operation, statusLabel).Inc()
	m.upstreamRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveSequence records how a fetch sequence ended.
func (m *Metrics) ObserveSequence(action, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sequences.WithLabelValues(action, outcome).Inc()
	m.sequenceDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// IncDroppedTargetDetail counts a target reference whose detail fetch failed.
func (m *Metrics) IncDroppedTargetDetail() {
	if m == nil {
		return
	}
	m.droppedTargetDetails.Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
