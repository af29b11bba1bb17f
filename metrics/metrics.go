// Package metrics exposes Prometheus metrics for the events backend.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phillip/campus-events-go/lifecycle"
)

var (
	// TransitionsTotal counts lifecycle transition attempts by transition and outcome.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_events_transitions_total",
		Help: "Total number of event lifecycle transition attempts, by transition and outcome.",
	}, []string{"transition", "outcome"})

	// HTTPRequestsTotal counts handled requests by route template, method and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_events_http_requests_total",
		Help: "Total number of HTTP requests, by route, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campus_events_http_request_duration_seconds",
		Help:    "HTTP request latency, by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// Recorder feeds lifecycle outcomes into TransitionsTotal.
type Recorder struct{}

var _ lifecycle.Recorder = Recorder{}

func (Recorder) ObserveTransition(t lifecycle.Transition, outcome string) {
	TransitionsTotal.WithLabelValues(t.String(), outcome).Inc()
}

// Middleware records request counts and latency. The route label is the
// gin route template so ids never become label values.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
