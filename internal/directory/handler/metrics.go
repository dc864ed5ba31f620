package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgedir/rd/internal/directory"
)

var (
	rdRegistrationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rd_registrations_active",
		Help: "Number of live endpoint registrations.",
	})

	rdExpirationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rd_expirations_total",
		Help: "Total registrations removed by lifetime expiry.",
	})

	rdRemovalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rd_removals_total",
		Help: "Total registrations removed explicitly.",
	})

	rdRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rd_requests_total",
		Help: "Total HTTP requests by method, route, and response status.",
	}, []string{"method", "path", "status"})

	rdRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rd_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

func observeRegistrations(count int) {
	rdRegistrationsActive.Set(float64(count))
}

// ObserveRegistry wires eviction metrics into the registry. Expiry-driven
// evictions and explicit removals are counted separately; the active
// gauge tracks the table size either way.
func ObserveRegistry(registry *directory.Registry) {
	registry.SetEvictHook(func(_ *directory.Registration, expired bool) {
		if expired {
			rdExpirationsTotal.Inc()
		} else {
			rdRemovalsTotal.Inc()
		}
		observeRegistrations(registry.Count())
	})
}

// PrometheusMiddleware returns a gin middleware recording per-request
// counters and latency, labeled by route template to bound cardinality.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		rdRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		rdRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler exposes the prometheus registry, mounted at /metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
