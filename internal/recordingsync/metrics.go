package recordingsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors for sync passes.
type Metrics struct {
	Passes       *prometheus.CounterVec
	Files        *prometheus.CounterVec
	PassDuration prometheus.Histogram
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lms",
			Subsystem: "recording_sync",
			Name:      "passes_total",
			Help:      "Sync passes by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		Files: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lms",
			Subsystem: "recording_sync",
			Name:      "files_total",
			Help:      "Eligible recording files by result.",
		}, []string{"result"}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lms",
			Subsystem: "recording_sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of completed sync passes.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}
}

func (m *Metrics) observe(trigger Trigger, outcome string, res *Result, seconds float64) {
	if m == nil {
		return
	}
	m.Passes.WithLabelValues(string(trigger), outcome).Inc()
	if res == nil {
		return
	}
	m.Files.WithLabelValues("ingested").Add(float64(res.Ingested))
	m.Files.WithLabelValues("skipped").Add(float64(res.Skipped))
	m.Files.WithLabelValues("failed").Add(float64(res.Failed))
	m.PassDuration.Observe(seconds)
}
