// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GrabAttempts tracks catalog grab attempts by outcome
	// (acquired, contended, error, timeout).
	GrabAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distlock_grab_attempts_total",
			Help: "Total lock grab attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AcquireDuration tracks how long successful acquisitions waited.
	AcquireDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distlock_acquire_duration_seconds",
			Help:    "Time spent waiting for successful lock acquisitions",
			Buckets: []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// PendingUnlocks tracks the current pending-unlock queue size.
	PendingUnlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "distlock_pending_unlocks",
			Help: "Current number of session ids queued for retry unlock",
		},
	)

	// QueuedUnlocks tracks background unlock retries by status.
	QueuedUnlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distlock_queued_unlocks_total",
			Help: "Total background unlock attempts by status",
		},
		[]string{"status"},
	)

	// Pings tracks liveness pings by status.
	Pings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distlock_pings_total",
			Help: "Total liveness pings by status",
		},
		[]string{"status"},
	)

	// HTTPRequestsTotal tracks total HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RegisterMetricsEndpoint registers the /metrics endpoint on a Gin router.
func RegisterMetricsEndpoint(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RegisterMetricsEndpointWithPath registers the metrics endpoint at a custom path.
func RegisterMetricsEndpointWithPath(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// RecordGrabAttempt records a lock grab attempt outcome.
func RecordGrabAttempt(outcome string) {
	GrabAttempts.WithLabelValues(outcome).Inc()
}

// RecordAcquireDuration records the wait time of a successful acquisition.
func RecordAcquireDuration(seconds float64) {
	AcquireDuration.Observe(seconds)
}

// SetPendingUnlocks sets the current pending-unlock queue size.
func SetPendingUnlocks(size int) {
	PendingUnlocks.Set(float64(size))
}

// RecordQueuedUnlock records a background unlock attempt.
func RecordQueuedUnlock(status string) {
	QueuedUnlocks.WithLabelValues(status).Inc()
}

// RecordPing records a liveness ping.
func RecordPing(status string) {
	Pings.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(method, path string, seconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}
