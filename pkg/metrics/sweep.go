package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics records the scheduled consistency sweeps.
type SweepMetrics struct {
	duration  *prometheus.HistogramVec
	runs      *prometheus.CounterVec
	unhealthy *prometheus.GaugeVec
}

func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_job_duration_seconds",
		Help:    "Duration of sweep jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_job_runs_total",
		Help: "Sweep job executions by outcome.",
	}, []string{"job", "outcome"})
	unhealthy := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sweep_unhealthy_scopes",
		Help: "Scopes holding overlapping rules at the last sweep.",
	}, []string{"kind"})
	reg.MustRegister(duration, runs, unhealthy)
	return &SweepMetrics{duration: duration, runs: runs, unhealthy: unhealthy}
}

func (m *SweepMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

func (m *SweepMetrics) IncSuccess(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), "success").Inc()
}

func (m *SweepMetrics) IncFailure(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), "failure").Inc()
}

// SetUnhealthy records how many scopes of kind failed the last audit.
func (m *SweepMetrics) SetUnhealthy(kind string, scopes int) {
	if m == nil || m.unhealthy == nil {
		return
	}
	m.unhealthy.WithLabelValues(normalizeLabel(kind)).Set(float64(scopes))
}
