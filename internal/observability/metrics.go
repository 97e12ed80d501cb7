package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a Prometheus-backed implementation of bridge.Metrics, extended
// with counters for the Task Envelope Runtime's stage pipeline.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	br := bridge.New(cfg, registry, logger, metrics)
type Metrics struct {
	// DispatchCounter counts dispatches by outcome (ok|timeout|error|disconnected).
	DispatchCounter *prometheus.CounterVec

	// DispatchDuration measures dispatch round-trip latency in seconds.
	DispatchDuration *prometheus.HistogramVec

	// PeerConnections counts peer connect/disconnect transitions.
	// Labels: event (connected|disconnected)
	PeerConnections *prometheus.CounterVec

	// PendingRequestsGauge tracks the number of outstanding dispatches.
	PendingRequestsGauge prometheus.Gauge

	// TaskStageCounter counts Task Envelope Runtime stage completions.
	// Labels: stage (validate|collect|compute|apply|export), outcome (ok|error)
	TaskStageCounter *prometheus.CounterVec

	// TaskStageDuration measures per-stage latency in seconds.
	// Labels: stage
	TaskStageDuration *prometheus.HistogramVec

	// TaskRetryCounter counts stage retries.
	// Labels: stage
	TaskRetryCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		DispatchCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "illustrator_bridge_dispatches_total",
				Help: "Total number of script dispatches by outcome",
			},
			[]string{"outcome"},
		),

		DispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "illustrator_bridge_dispatch_duration_seconds",
				Help:    "Duration of script dispatches in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		),

		PeerConnections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "illustrator_bridge_peer_connections_total",
				Help: "Total number of peer connect/disconnect transitions",
			},
			[]string{"event"},
		),

		PendingRequestsGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "illustrator_bridge_pending_requests",
				Help: "Current number of outstanding dispatches awaiting a reply",
			},
		),

		TaskStageCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "illustrator_bridge_task_stage_total",
				Help: "Total number of Task Envelope Runtime stage completions by outcome",
			},
			[]string{"stage", "outcome"},
		),

		TaskStageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "illustrator_bridge_task_stage_duration_seconds",
				Help:    "Duration of Task Envelope Runtime stages in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"stage"},
		),

		TaskRetryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "illustrator_bridge_task_retries_total",
				Help: "Total number of Task Envelope Runtime stage retries",
			},
			[]string{"stage"},
		),
	}
}

// DispatchStarted is a no-op hook kept for symmetry with DispatchSettled;
// dispatch-start timing is measured by the caller and passed to
// DispatchSettled's elapsed argument.
func (m *Metrics) DispatchStarted() {}

// DispatchSettled implements bridge.Metrics: records the terminal outcome of
// one dispatch (ok|timeout|error|disconnected) and its elapsed time.
func (m *Metrics) DispatchSettled(outcome string, elapsed time.Duration) {
	m.DispatchCounter.WithLabelValues(outcome).Inc()
	m.DispatchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// PeerConnected implements bridge.Metrics.
func (m *Metrics) PeerConnected() {
	m.PeerConnections.WithLabelValues("connected").Inc()
}

// PeerDisconnected implements bridge.Metrics.
func (m *Metrics) PeerDisconnected() {
	m.PeerConnections.WithLabelValues("disconnected").Inc()
}

// PendingRequests implements bridge.Metrics.
func (m *Metrics) PendingRequests(n int) {
	m.PendingRequestsGauge.Set(float64(n))
}

// RecordTaskStage records one stage's outcome and latency.
//
// Example:
//
//	metrics.RecordTaskStage("collect", "ok", 12*time.Millisecond)
func (m *Metrics) RecordTaskStage(stage, outcome string, duration time.Duration) {
	m.TaskStageCounter.WithLabelValues(stage, outcome).Inc()
	m.TaskStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordTaskRetry records a retry of the given stage.
func (m *Metrics) RecordTaskRetry(stage string) {
	m.TaskRetryCounter.WithLabelValues(stage).Inc()
}
