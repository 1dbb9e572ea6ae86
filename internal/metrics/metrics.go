// Package metrics provides Prometheus metrics for interview sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hireguard"

// Metrics holds all Prometheus collectors of the application.
type Metrics struct {
	// Session metrics
	SessionsOpened prometheus.Counter
	SessionsFailed *prometheus.CounterVec
	SessionsActive prometheus.Gauge

	// Capture metrics
	FramesSent    prometheus.Counter
	FramesDropped prometheus.Counter

	// Playback metrics
	ChunksScheduled prometheus.Counter
	ChunksDropped   *prometheus.CounterVec
	Interruptions   prometheus.Counter

	// Transcript metrics
	TurnsCommitted *prometheus.CounterVec

	// Model call metrics
	ModelCalls       *prometheus.CounterVec
	ModelCallLatency *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_opened_total",
			Help:      "Total number of live sessions opened",
		}),
		SessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_failed_total",
			Help:      "Total number of live sessions that failed to start",
		}, []string{"reason"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of currently active live sessions",
		}),

		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_sent_total",
			Help:      "Total microphone frames sent to the model",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_dropped_total",
			Help:      "Total microphone frames that could not be sent",
		}),

		ChunksScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_scheduled_total",
			Help:      "Total response audio chunks scheduled for playback",
		}),
		ChunksDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_dropped_total",
			Help:      "Total response audio chunks dropped",
		}, []string{"reason"}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_interruptions_total",
			Help:      "Total playback flushes caused by interruptions",
		}),

		TurnsCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_turns_committed_total",
			Help:      "Total conversation turns committed to history",
		}, []string{"role"}),

		ModelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Total structured model calls",
		}, []string{"operation", "outcome"}),
		ModelCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Latency of structured model calls",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"operation"}),

		gatherer: reg,
	}
}

// NewNop returns metrics registered on a private registry. Useful in tests and
// when no metrics endpoint is configured.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveModelCall records the outcome and latency of a structured model call.
func (m *Metrics) ObserveModelCall(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ModelCalls.WithLabelValues(operation, outcome).Inc()
	m.ModelCallLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Handler exposes the registered collectors over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
