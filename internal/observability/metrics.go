package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	RunningJobs     prometheus.Gauge
	JobsFinished    *prometheus.CounterVec
	ChunksProduced  *prometheus.CounterVec
	ChunkFailures   *prometheus.CounterVec
	ChunkLatency    *prometheus.HistogramVec
	SkippedText     *prometheus.CounterVec
	PlaybackUpdates *prometheus.CounterVec
	LoginAttempts   *prometheus.CounterVec

	// Latency keeps a rolling window of recent chunk latencies for the UI.
	Latency *LatencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of logged-in browser sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		RunningJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synthesis_jobs_running",
			Help:      "Number of book synthesis jobs in progress.",
		}),
		JobsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_jobs_total",
			Help:      "Finished synthesis jobs by outcome.",
		}, []string{"status"}),
		ChunksProduced: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_chunks_total",
			Help:      "Audio segments written by provider.",
		}, []string{"provider"}),
		ChunkFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_chunk_failures_total",
			Help:      "Chunk failures by provider and kind.",
		}, []string{"provider", "kind"}),
		ChunkLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_chunk_latency_ms",
			Help:      "Provider round trip per chunk in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}, []string{"provider"}),
		SkippedText: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segmenter_skipped_total",
			Help:      "Sentences emitted over budget or dropped by the segmenter.",
		}, []string{"reason"}),
		PlaybackUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_updates_total",
			Help:      "Playback record updates by status.",
		}, []string{"status"}),
		LoginAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		Latency: NewLatencyWindow(256),
	}
}

// ObserveChunk records one successful provider call.
func (m *Metrics) ObserveChunk(provider string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Milliseconds())
	m.ChunksProduced.WithLabelValues(provider).Inc()
	m.ChunkLatency.WithLabelValues(provider).Observe(ms)
	m.Latency.Observe(provider, ms)
}

// ObserveChunkFailure records a transport or validation failure.
func (m *Metrics) ObserveChunkFailure(provider, kind string) {
	if m == nil {
		return
	}
	m.ChunkFailures.WithLabelValues(provider, kind).Inc()
	m.Latency.ObserveIndicator(provider + "_" + kind)
}

func (m *Metrics) ObserveSkipped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedText.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.RunningJobs.Inc()
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.RunningJobs.Dec()
	m.JobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) ObservePlayback(status string) {
	if m == nil {
		return
	}
	m.PlaybackUpdates.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveLogin(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
