package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mojochat_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mojochat_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	ChatTurnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mojochat_chat_turns_total",
		Help: "Submitted chat turns by outcome",
	}, []string{"outcome"})
	ToolInvocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mojochat_tool_invocations_total",
		Help: "Tool executions requested by the model, by tool and outcome",
	}, []string{"tool", "outcome"})
	EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mojochat_events_published_total",
		Help: "Domain events handed to the broker, by routing key and outcome",
	}, []string{"event", "outcome"})
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration, ChatTurnsTotal, ToolInvocationsTotal, EventsPublishedTotal)
}

// GinMiddleware records request counts and latency for Prometheus.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
