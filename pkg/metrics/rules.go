package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RuleMetrics tracks mutations and lookups against rule timelines.
type RuleMetrics struct {
	mutations  *prometheus.CounterVec
	conflicts  *prometheus.CounterVec
	violations *prometheus.CounterVec
	resolve    *prometheus.HistogramVec
}

// NewRuleMetrics registers the rule metrics on reg. A nil registerer yields a no-op recorder.
func NewRuleMetrics(reg prometheus.Registerer) *RuleMetrics {
	if reg == nil {
		return &RuleMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rule_mutations_total",
		Help: "Committed rule mutations by kind and mode.",
	}, []string{"kind", "mode"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rule_conflicts_total",
		Help: "Mutations rejected because the interval overlapped an existing rule.",
	}, []string{"kind", "mode"})
	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rule_consistency_violations_total",
		Help: "Lookups or audits that found overlapping rules in storage.",
	}, []string{"kind"})
	resolve := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rule_resolve_duration_seconds",
		Help:    "Latency of effective rule lookups.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	reg.MustRegister(mutations, conflicts, violations, resolve)
	return &RuleMetrics{
		mutations:  mutations,
		conflicts:  conflicts,
		violations: violations,
		resolve:    resolve,
	}
}

func (m *RuleMetrics) IncMutation(kind, mode string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(kind), normalizeLabel(mode)).Inc()
}

func (m *RuleMetrics) IncConflict(kind, mode string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(kind), normalizeLabel(mode)).Inc()
}

func (m *RuleMetrics) IncViolation(kind string) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.WithLabelValues(normalizeLabel(kind)).Inc()
}

// ObserveResolve records how long an effective lookup took.
func (m *RuleMetrics) ObserveResolve(kind string, d time.Duration) {
	if m == nil || m.resolve == nil {
		return
	}
	m.resolve.WithLabelValues(normalizeLabel(kind)).Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
