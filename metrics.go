package scorehider

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for sessions and reactions. A nil
// *Metrics is valid and records nothing.
//
// Metrics:
//   - scorehider_scans_total{kind} - pre-scan and full scan passes
//   - scorehider_scan_duration_seconds{kind} - pass duration
//   - scorehider_scores_hidden_total - elements moved to hidden
//   - scorehider_scores_revealed_total - elements revealed
//   - scorehider_prehide_restored_total - pre-hidden false positives restored
//   - scorehider_element_failures_total - elements skipped after a failure
//   - scorehider_reactions_total{tier} - effect plans delivered
//   - scorehider_reactions_suppressed_total{reason} - plans dropped by cooldown or a full queue
//   - scorehider_sink_failures_total - effect sink errors and panics
//   - scorehider_sessions_active - live page sessions
type Metrics struct {
	Scans              *prometheus.CounterVec
	ScanDuration       *prometheus.HistogramVec
	Hidden             prometheus.Counter
	Revealed           prometheus.Counter
	Restored           prometheus.Counter
	ElementFailures    prometheus.Counter
	Reactions          *prometheus.CounterVec
	ReactionSuppressed *prometheus.CounterVec
	SinkFailures       prometheus.Counter
	ActiveSessions     prometheus.Gauge
}

// NewMetrics registers the metrics with reg. Each registry can take one set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scorehider_scans_total",
			Help: "Total number of scan passes",
		}, []string{"kind"}),
		ScanDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scorehider_scan_duration_seconds",
			Help:    "Duration of scan passes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"kind"}),
		Hidden: f.NewCounter(prometheus.CounterOpts{
			Name: "scorehider_scores_hidden_total",
			Help: "Total number of score elements hidden",
		}),
		Revealed: f.NewCounter(prometheus.CounterOpts{
			Name: "scorehider_scores_revealed_total",
			Help: "Total number of score elements revealed",
		}),
		Restored: f.NewCounter(prometheus.CounterOpts{
			Name: "scorehider_prehide_restored_total",
			Help: "Total number of pre-hidden elements restored after failing classification",
		}),
		ElementFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "scorehider_element_failures_total",
			Help: "Total number of elements skipped after a processing failure",
		}),
		Reactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scorehider_reactions_total",
			Help: "Total number of effect plans delivered",
		}, []string{"tier"}),
		ReactionSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scorehider_reactions_suppressed_total",
			Help: "Total number of effect plans dropped",
		}, []string{"reason"}),
		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "scorehider_sink_failures_total",
			Help: "Total number of effect sink failures",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "scorehider_sessions_active",
			Help: "Current number of live page sessions",
		}),
	}
}

func (m *Metrics) recordScan(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(kind).Inc()
	m.ScanDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) recordHidden(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Hidden.Add(float64(n))
}

func (m *Metrics) recordRevealed() {
	if m == nil {
		return
	}
	m.Revealed.Inc()
}

func (m *Metrics) recordRestored(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Restored.Add(float64(n))
}

func (m *Metrics) recordElementFailure() {
	if m == nil {
		return
	}
	m.ElementFailures.Inc()
}

func (m *Metrics) recordReaction(tier Tier) {
	if m == nil {
		return
	}
	m.Reactions.WithLabelValues(string(tier)).Inc()
}

func (m *Metrics) recordSuppressed(reason string) {
	if m == nil {
		return
	}
	m.ReactionSuppressed.WithLabelValues(reason).Inc()
}

func (m *Metrics) recordSinkFailure() {
	if m == nil {
		return
	}
	m.SinkFailures.Inc()
}

// SessionOpened and SessionClosed track the live session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
