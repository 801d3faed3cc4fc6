// Package metrics exposes Prometheus collectors for preview and chat activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "builderbot"

// Stop modes recorded by PreviewStopped.
const (
	StopGraceful = "graceful"
	StopForced   = "forced"
	StopExited   = "exited"
)

// Metrics groups the collectors updated by the sandbox, session and deploy packages.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	previewStarts  prometheus.Counter
	previewStops   *prometheus.CounterVec
	spawnFailures  prometheus.Counter
	logLines       prometheus.Counter
	chatRequests   *prometheus.CounterVec
	deployments    *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New registers the builder bot collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		previewStarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "starts_total",
			Help:      "Preview processes spawned.",
		}),
		previewStops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "stops_total",
			Help:      "Preview processes released, by how they ended.",
		}, []string{"mode"}),
		spawnFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "spawn_failures_total",
			Help:      "Preview processes that failed to start.",
		}),
		logLines: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "log_lines_total",
			Help:      "Output lines captured from preview processes.",
		}),
		chatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat turns, by outcome.",
		}, []string{"outcome"}),
		deployments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "projects_total",
			Help:      "Project publish attempts, by outcome.",
		}, []string{"outcome"}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "active_sessions",
			Help:      "Chat sessions currently held in memory.",
		}),
	}
}

// PreviewStarted counts a successful preview spawn.
func (m *Metrics) PreviewStarted() {
	if m != nil {
		m.previewStarts.Inc()
	}
}

// PreviewStopped counts a released preview, labelled by its Stop* mode.
func (m *Metrics) PreviewStopped(mode string) {
	if m != nil {
		m.previewStops.WithLabelValues(mode).Inc()
	}
}

// SpawnFailed counts a preview that could not be started.
func (m *Metrics) SpawnFailed() {
	if m != nil {
		m.spawnFailures.Inc()
	}
}

// LogLine counts one captured output line.
func (m *Metrics) LogLine() {
	if m != nil {
		m.logLines.Inc()
	}
}

// ChatRequest counts a chat turn by outcome.
func (m *Metrics) ChatRequest(outcome string) {
	if m != nil {
		m.chatRequests.WithLabelValues(outcome).Inc()
	}
}

// Deployment counts a deploy attempt by outcome.
func (m *Metrics) Deployment(outcome string) {
	if m != nil {
		m.deployments.WithLabelValues(outcome).Inc()
	}
}

// SetActiveSessions records how many sessions are held.
func (m *Metrics) SetActiveSessions(n int) {
	if m != nil {
		m.activeSessions.Set(float64(n))
	}
}
