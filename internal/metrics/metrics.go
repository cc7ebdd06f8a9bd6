package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus collectors for the call inbox.
// All methods are safe on a nil receiver so packages can run unmetered in tests.
type Metrics struct {
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec

	TransitionsTotal *prometheus.CounterVec

	FeedConnections prometheus.Gauge
	FeedTicksTotal  *prometheus.CounterVec
	FeedFramesTotal *prometheus.CounterVec

	NotificationsTotal *prometheus.CounterVec
	LoginsTotal        *prometheus.CounterVec
}

// NewMetrics registers collectors once per process.
//
// Metrics:
//   - call_inbox_http_requests_total{method,route,status}
//   - call_inbox_http_request_duration_seconds{method,route}
//   - call_inbox_claim_transitions_total{from,to}
//   - call_inbox_feed_connections
//   - call_inbox_feed_ticks_total{result}
//   - call_inbox_feed_frames_total{type}
//   - call_inbox_notifications_total{status,result}
//   - call_inbox_logins_total{result}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "call_inbox_http_requests_total",
					Help: "Total HTTP requests by route and status",
				},
				[]string{"method", "route", "status"},
			),
			HTTPDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "call_inbox_http_request_duration_seconds",
					Help:    "HTTP request latency, streaming routes excluded",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
				},
				[]string{"method", "route"},
			),
			TransitionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "call_inbox_claim_transitions_total",
					Help: "Successful call claim transitions",
				},
				[]string{"from", "to"},
			),
			FeedConnections: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "call_inbox_feed_connections",
					Help: "Open change feed connections",
				},
			),
			FeedTicksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "call_inbox_feed_ticks_total",
					Help: "Feed refreshes by outcome",
				},
				[]string{"result"}, // "ok", "error", "unchanged"
			),
			FeedFramesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "call_inbox_feed_frames_total",
					Help: "Frames written to feed clients",
				},
				[]string{"type"},
			),
			NotificationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "call_inbox_notifications_total",
					Help: "Push notifications attempted",
				},
				[]string{"status", "result"},
			),
			LoginsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "call_inbox_logins_total",
					Help: "Login attempts by outcome",
				},
				[]string{"result"},
			),
		}
	})
	return globalMetrics
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) FeedOpened() {
	if m == nil {
		return
	}
	m.FeedConnections.Inc()
}

func (m *Metrics) FeedClosed() {
	if m == nil {
		return
	}
	m.FeedConnections.Dec()
}

func (m *Metrics) RecordTick(result string) {
	if m == nil {
		return
	}
	m.FeedTicksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordFrame(frameType string) {
	if m == nil {
		return
	}
	m.FeedFramesTotal.WithLabelValues(frameType).Inc()
}

func (m *Metrics) RecordNotification(status string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.NotificationsTotal.WithLabelValues(status, result).Inc()
}

func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency per matched route.
// Routes listed in streaming only count requests; their duration is the
// connection lifetime and would skew the histogram.
func (m *Metrics) Middleware(streaming ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(streaming))
	for _, r := range streaming {
		skip[r] = true
	}
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		if !skip[route] {
			m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		}
	}
}
