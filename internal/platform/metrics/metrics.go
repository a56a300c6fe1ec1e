package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the telemetry engine.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	framesIngestedTotal    prometheus.Counter
	framesDroppedTotal     prometheus.Counter
	bytesIngestedTotal     prometheus.Counter
	detectionBatchesTotal  prometheus.Counter
	recordingsStartedTotal prometheus.Counter
	recordingsClosedTotal  prometheus.Counter
	activeSessions         prometheus.Gauge
	activeViewers          prometheus.Gauge
}

// New creates and registers Prometheus metrics for the engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	framesIngestedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_frames_ingested_total",
		Help: "Total number of frames successfully decoded across all sessions",
	})
	framesDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_frames_dropped_total",
		Help: "Total number of inbound payloads that failed to decode",
	})
	bytesIngestedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_bytes_ingested_total",
		Help: "Total compressed payload bytes of successfully decoded frames",
	})
	detectionBatchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_detection_batches_total",
		Help: "Total number of detection batches appended to the buffer",
	})
	recordingsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_recordings_started_total",
		Help: "Total number of video recordings opened",
	})
	recordingsClosedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_recordings_closed_total",
		Help: "Total number of video recordings finalized",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_active_sessions",
		Help: "Number of currently connected ingest sessions",
	})
	activeViewers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_active_viewers",
		Help: "Number of currently open live stream viewers",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		framesIngestedTotal,
		framesDroppedTotal,
		bytesIngestedTotal,
		detectionBatchesTotal,
		recordingsStartedTotal,
		recordingsClosedTotal,
		activeSessions,
		activeViewers,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		framesIngestedTotal:    framesIngestedTotal,
		framesDroppedTotal:     framesDroppedTotal,
		bytesIngestedTotal:     bytesIngestedTotal,
		detectionBatchesTotal:  detectionBatchesTotal,
		recordingsStartedTotal: recordingsStartedTotal,
		recordingsClosedTotal:  recordingsClosedTotal,
		activeSessions:         activeSessions,
		activeViewers:          activeViewers,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncFramesIngested records one successfully decoded frame of the given
// compressed payload size.
func (m *Metrics) IncFramesIngested(payloadLen int) {
	m.framesIngestedTotal.Inc()
	m.bytesIngestedTotal.Add(float64(payloadLen))
}

// IncFramesDropped increments the dropped (undecodable) frame counter.
func (m *Metrics) IncFramesDropped() {
	m.framesDroppedTotal.Inc()
}

// IncDetectionBatches increments the detection batch counter by n.
func (m *Metrics) IncDetectionBatches(n int) {
	m.detectionBatchesTotal.Add(float64(n))
}

// IncRecordingsStarted increments the recordings opened counter.
func (m *Metrics) IncRecordingsStarted() {
	m.recordingsStartedTotal.Inc()
}

// IncRecordingsClosed increments the recordings finalized counter.
func (m *Metrics) IncRecordingsClosed() {
	m.recordingsClosedTotal.Inc()
}

// SetActiveSessions sets the connected session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// AddActiveViewers adjusts the live viewer gauge by delta (+1 on stream
// start, -1 on viewer disconnect).
func (m *Metrics) AddActiveViewers(delta int) {
	m.activeViewers.Add(float64(delta))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
