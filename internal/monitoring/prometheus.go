package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics exposed by the dashboard backend.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeConnections   prometheus.Gauge
	messagesSent        *prometheus.CounterVec
	sendFailures        prometheus.Counter
	broadcastDuration   prometheus.Histogram
	storeReadErrors     *prometheus.CounterVec
}

// NewMetrics creates and registers the metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "websocket_connections_active",
				Help: "Number of active WebSocket connections",
			},
		),
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websocket_messages_sent_total",
				Help: "Total number of push messages sent, by channel",
			},
			[]string{"channel"},
		),
		sendFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "websocket_send_failures_total",
				Help: "Total number of failed pushes that dropped a connection",
			},
		),
		broadcastDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "broadcast_tick_duration_seconds",
				Help:    "Duration of one broadcaster tick",
				Buckets: prometheus.DefBuckets,
			},
		),
		storeReadErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_read_errors_total",
				Help: "Total number of failed upstream store reads, by store",
			},
			[]string{"store"},
		),
	}

	prometheus.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.activeConnections,
		m.messagesSent,
		m.sendFailures,
		m.broadcastDuration,
		m.storeReadErrors,
	)

	return m
}

// Middleware records request counts and latencies for gin routes.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetActiveConnections updates the live connection gauge.
func (m *Metrics) SetActiveConnections(n int) {
	m.activeConnections.Set(float64(n))
}

// RecordMessageSent counts one successful push on a channel.
func (m *Metrics) RecordMessageSent(channel string) {
	m.messagesSent.WithLabelValues(channel).Inc()
}

// RecordSendFailure counts a push that failed and dropped the connection.
func (m *Metrics) RecordSendFailure() {
	m.sendFailures.Inc()
}

// ObserveBroadcastTick records the duration of one broadcaster tick.
func (m *Metrics) ObserveBroadcastTick(d time.Duration) {
	m.broadcastDuration.Observe(d.Seconds())
}

// RecordStoreReadError counts a failed upstream store read.
func (m *Metrics) RecordStoreReadError(store string) {
	m.storeReadErrors.WithLabelValues(store).Inc()
}
