package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the streaming server
type Metrics struct {
	// Broadcast metrics
	FramesBroadcast   prometheus.Counter
	BytesSent         prometheus.Counter
	BroadcastDuration prometheus.Histogram

	// Client metrics
	ConnectedClients prometheus.Gauge
	ClientConnects   prometheus.Counter
	ClientRefusals   prometheus.Counter
	ClientEvictions  prometheus.Counter

	// Loop metrics
	EncodeDuration prometheus.Histogram
	FrameOverruns  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Broadcast metrics
		FramesBroadcast: promauto.NewCounter(prometheus.CounterOpts{
			Name: "jpegstream_frames_broadcast_total",
			Help: "Total number of frames broadcast to clients",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "jpegstream_bytes_sent_total",
			Help: "Total payload bytes sent across all clients",
		}),
		BroadcastDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "jpegstream_broadcast_duration_seconds",
			Help:    "Time spent delivering one frame to all clients",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~400ms
		}),

		// Client metrics
		ConnectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "jpegstream_connected_clients",
			Help: "Current number of connected clients",
		}),
		ClientConnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "jpegstream_client_connects_total",
			Help: "Total number of accepted client connections",
		}),
		ClientRefusals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "jpegstream_client_refusals_total",
			Help: "Total number of connections refused at the max_clients cap",
		}),
		ClientEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "jpegstream_client_evictions_total",
			Help: "Total number of clients evicted after a failed send",
		}),

		// Loop metrics
		EncodeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "jpegstream_encode_duration_seconds",
			Help:    "Time spent JPEG-encoding one frame",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to ~500ms
		}),
		FrameOverruns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "jpegstream_frame_overruns_total",
			Help: "Total number of iterations that exceeded the per-frame budget",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "jpegstream_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jpegstream_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "jpegstream_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordBroadcast records one completed broadcast pass
func (m *Metrics) RecordBroadcast(bytesSent int, durationSeconds float64) {
	m.FramesBroadcast.Inc()
	m.BytesSent.Add(float64(bytesSent))
	m.BroadcastDuration.Observe(durationSeconds)
}

// RecordClientConnect increments the connect counter and the client gauge
func (m *Metrics) RecordClientConnect() {
	m.ClientConnects.Inc()
	m.ConnectedClients.Inc()
}

// RecordClientRefusal increments the refused-connection counter
func (m *Metrics) RecordClientRefusal() {
	m.ClientRefusals.Inc()
}

// RecordClientEviction records a client removed after a failed send
func (m *Metrics) RecordClientEviction() {
	m.ClientEvictions.Inc()
	m.ConnectedClients.Dec()
}

// RecordEncode records the duration of one JPEG encode
func (m *Metrics) RecordEncode(durationSeconds float64) {
	m.EncodeDuration.Observe(durationSeconds)
}

// RecordOverrun increments the frame overrun counter
func (m *Metrics) RecordOverrun() {
	m.FrameOverruns.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
