package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "code"},
	)

	requestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "code"},
	)

	requestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
		[]string{"method", "path"},
	)

	responseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "response_size_bytes",
			Help:    "Size of HTTP responses in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path", "code"},
	)

	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Identity flow actions by outcome",
		},
		[]string{"action", "outcome"},
	)

	gateAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_attempts_total",
			Help: "Shared-secret gate submissions by outcome",
		},
		[]string{"outcome"},
	)

	visitorsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "visitors_active",
			Help: "Visitors with in-memory state",
		},
	)
)

// RecordAuthAttempt counts one identity flow action.
func RecordAuthAttempt(action, outcome string) {
	authAttempts.WithLabelValues(action, outcome).Inc()
}

// RecordGateAttempt counts one gate submission.
func RecordGateAttempt(outcome string) {
	gateAttempts.WithLabelValues(outcome).Inc()
}

// SetActiveVisitors publishes the visitor registry size.
func SetActiveVisitors(n int) {
	visitorsActive.Set(float64(n))
}

// shouldCollectMetrics excludes infrastructure endpoints (probes, scrapes, assets),
// which carry no user traffic and would dominate the series.
func shouldCollectMetrics(path string) bool {
	for _, skipPath := range []string{"/health", "/ready", "/metrics", "/static", "/favicon.ico"} {
		if strings.HasPrefix(path, skipPath) {
			return false
		}
	}
	return true
}

// PrometheusMiddleware records HTTP metrics labelled by route template.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !shouldCollectMetrics(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		method := c.Request.Method
		// Route template keeps label cardinality bounded; unknown routes share one label.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsInFlight.WithLabelValues(method, path).Inc()
		defer requestsInFlight.WithLabelValues(method, path).Dec()

		c.Next()

		statusCode := strconv.Itoa(c.Writer.Status())
		requestDuration.WithLabelValues(method, path, statusCode).Observe(time.Since(start).Seconds())
		requestTotal.WithLabelValues(method, path, statusCode).Inc()
		responseSize.WithLabelValues(method, path, statusCode).Observe(float64(c.Writer.Size()))
	}
}
