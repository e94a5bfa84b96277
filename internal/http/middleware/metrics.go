// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the Prometheus instrumentation for the assistant API. All
// collectors live under the assistant_http_* prefix and label by route
// template, not raw URL, so cardinality stays bounded no matter how many
// conversations or courses exist:
//
//   - method: HTTP verb
//   - route:  registered Gin route (e.g. /api/v1/conversations/:id/messages);
//     the raw path only appears for unmatched requests (404s)
//   - status: numeric status code as a string
//
// Latency buckets stretch to 30s because a chat exchange blocks on the model
// provider; response size buckets stop at the 1 MiB body cap.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	// status is deliberately not a label here: latency per route is what
	// dashboards alert on, and the extra dimension triples the series.
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:      "request_duration_seconds",
			Namespace: "assistant",
			Subsystem: "http",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "requests_inflight",
			Help:      "Requests currently being handled.",
		},
	)

	httpResponseBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes.",
			Buckets:   []float64{256, 1 << 10, 4 << 10, 16 << 10, 64 << 10, 256 << 10, 1 << 20},
		},
		[]string{"method", "route"},
	)

	// httpRateLimited counts 429s from the token-bucket limiter, split by
	// whether the bucket was keyed on a student identity or a bare IP.
	httpRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by bucket key class.",
		},
		[]string{"key_class"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, httpInflight, httpResponseBytes, httpRateLimited)
}

// Metrics returns middleware that instruments every request.
//
// Usage:
//
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
//
// Each request increments assistant_http_requests_total, observes the
// duration and written size histograms, and holds the inflight gauge while
// the handler runs. Hijacked or bodyless responses report size -1; those skip
// the size histogram rather than record a bogus sample.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		httpRequests.WithLabelValues(method, route, status).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpResponseBytes.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}
