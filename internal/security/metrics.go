package security

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency is used by the store metrics wrapper to record operation latency.
	StoreLatency *prometheus.HistogramVec

	// MessagesSentTotal counts successfully appended messages.
	MessagesSentTotal prometheus.Counter

	// MarksSeenTotal counts successful mark-seen calls, including idempotent
	// repeats.
	MarksSeenTotal prometheus.Counter
)

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics. Must be called before the
// HTTP server starts. Safe to call multiple times; only the first call
// registers.
func InitMetrics() {
	initMetricsOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_service_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_service_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)

		StoreLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_service_store_latency_seconds",
				Help:    "Store operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)

		MessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_service_messages_sent_total",
			Help: "Total messages appended to chats",
		})

		MarksSeenTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_service_marks_seen_total",
			Help: "Total successful mark-seen calls",
		})
	})
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
