// Package metrics provides Prometheus instrumentation for the voice
// command service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service
type Metrics struct {
	// Audio ingest metrics
	FramesReceived   prometheus.Counter
	FramesDropped    prometheus.Counter
	FrameQueueSize   prometheus.Gauge
	WindowsAssembled prometheus.Counter

	// Transcription metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionSuccess  prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionRetries  prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	EmptyTranscripts      prometheus.Counter

	// Routing metrics
	UtterancesRouted *prometheus.CounterVec
	ModeSwitches     *prometheus.CounterVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsEvicted prometheus.Counter

	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Pipeline metrics
	PipelineErrors prometheus.Counter
	PipelineResets prometheus.Counter
}

// New creates and registers all metrics with the given registry.
// Pass nil to use the default registry.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_received_total",
			Help: "Total number of audio frames received from the capture transport",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_dropped_total",
			Help: "Total number of audio frames dropped due to queue overflow",
		}),
		FrameQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voice_frame_queue_size",
			Help: "Current number of frames waiting in the capture queue",
		}),
		WindowsAssembled: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_windows_assembled_total",
			Help: "Total number of audio windows extracted for transcription",
		}),

		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_requests_total",
			Help: "Total number of transcription API requests",
		}),
		TranscriptionSuccess: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_success_total",
			Help: "Total number of successful transcriptions",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_failures_total",
			Help: "Total number of failed transcriptions after retries",
		}),
		TranscriptionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_retries_total",
			Help: "Total number of transcription retry attempts",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_transcription_duration_seconds",
			Help:    "Transcription API request duration",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		EmptyTranscripts: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_empty_transcripts_total",
			Help: "Total number of transcripts rejected as empty or placeholder",
		}),

		UtterancesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_utterances_routed_total",
			Help: "Total number of utterances routed, by mode and outcome",
		}, []string{"mode", "outcome"}),
		ModeSwitches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_mode_switches_total",
			Help: "Total number of mode switch commands, by target mode",
		}, []string{"mode"}),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voice_sessions_active",
			Help: "Current number of live sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_evicted_total",
			Help: "Total number of sessions evicted by TTL sweep",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_http_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		PipelineErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_pipeline_errors_total",
			Help: "Total number of pipeline iterations that failed",
		}),
		PipelineResets: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_pipeline_resets_total",
			Help: "Total number of assembler resets after pipeline failures",
		}),
	}
}

// RecordFrameReceived increments the received frame counter
func (m *Metrics) RecordFrameReceived() {
	m.FramesReceived.Inc()
}

// RecordFrameDropped increments the dropped frame counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// SetFrameQueueSize updates the frame queue gauge
func (m *Metrics) SetFrameQueueSize(size int) {
	m.FrameQueueSize.Set(float64(size))
}

// RecordWindowAssembled increments the assembled window counter
func (m *Metrics) RecordWindowAssembled() {
	m.WindowsAssembled.Inc()
}

// RecordTranscription records a transcription attempt and its duration
func (m *Metrics) RecordTranscription(duration time.Duration, success bool) {
	m.TranscriptionRequests.Inc()
	m.TranscriptionDuration.Observe(duration.Seconds())
	if success {
		m.TranscriptionSuccess.Inc()
	} else {
		m.TranscriptionFailures.Inc()
	}
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordEmptyTranscript increments the empty transcript counter
func (m *Metrics) RecordEmptyTranscript() {
	m.EmptyTranscripts.Inc()
}

// RecordUtterance records a routed utterance by mode and outcome
func (m *Metrics) RecordUtterance(mode, outcome string) {
	m.UtterancesRouted.WithLabelValues(mode, outcome).Inc()
}

// RecordModeSwitch records a mode switch command
func (m *Metrics) RecordModeSwitch(mode string) {
	m.ModeSwitches.WithLabelValues(mode).Inc()
}

// SetActiveSessions updates the active session gauge
func (m *Metrics) SetActiveSessions(count int) {
	m.SessionsActive.Set(float64(count))
}

// RecordSessionCreated increments the session creation counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionsEvicted adds to the eviction counter
func (m *Metrics) RecordSessionsEvicted(count int) {
	m.SessionsEvicted.Add(float64(count))
}

// RecordHTTPRequest records an HTTP API request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordPipelineError increments the pipeline error counter
func (m *Metrics) RecordPipelineError() {
	m.PipelineErrors.Inc()
}

// RecordPipelineReset increments the pipeline reset counter
func (m *Metrics) RecordPipelineReset() {
	m.PipelineResets.Inc()
}
