package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRuleMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRuleMetrics(reg)

	m.IncMutation("pricing", "create")
	m.IncMutation("pricing", "create")
	m.IncConflict("pricing", "adjust")
	m.IncViolation("promotion")
	m.ObserveResolve("pricing", 15*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := counterValue(mfs, "rule_mutations_total", map[string]string{"kind": "pricing", "mode": "create"})
	require.NoError(t, err)
	require.Equal(t, float64(2), got)

	got, err = counterValue(mfs, "rule_conflicts_total", map[string]string{"kind": "pricing", "mode": "adjust"})
	require.NoError(t, err)
	require.Equal(t, float64(1), got)

	got, err = counterValue(mfs, "rule_consistency_violations_total", map[string]string{"kind": "promotion"})
	require.NoError(t, err)
	require.Equal(t, float64(1), got)

	mf := findMetricFamily(mfs, "rule_resolve_duration_seconds")
	require.NotNil(t, mf)
	require.Len(t, mf.GetMetric(), 1)
	require.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
	require.Greater(t, mf.GetMetric()[0].GetHistogram().GetSampleSum(), float64(0))
}

func TestRuleMetricsNormalizesEmptyLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRuleMetrics(reg)
	m.IncMutation("", "")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := counterValue(mfs, "rule_mutations_total", map[string]string{"kind": "unknown", "mode": "unknown"})
	require.NoError(t, err)
	require.Equal(t, float64(1), got)
}

func TestRuleMetricsNilSafe(t *testing.T) {
	var m *RuleMetrics
	m.IncMutation("pricing", "create")
	m.IncConflict("pricing", "create")
	m.IncViolation("pricing")
	m.ObserveResolve("pricing", time.Second)

	NewRuleMetrics(nil).IncMutation("pricing", "create")
}

func counterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestSweepMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSweepMetrics(reg)

	m.IncSuccess("pricing-audit")
	m.IncFailure("pricing-audit")
	m.IncFailure("pricing-audit")
	m.SetUnhealthy("pricing", 3)
	m.ObserveDuration("pricing-audit", time.Second)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := counterValue(mfs, "sweep_job_runs_total", map[string]string{"job": "pricing-audit", "outcome": "failure"})
	require.NoError(t, err)
	require.Equal(t, float64(2), got)

	mf := findMetricFamily(mfs, "sweep_unhealthy_scopes")
	require.NotNil(t, mf)
	require.Equal(t, float64(3), mf.GetMetric()[0].GetGauge().GetValue())

	var nilMetrics *SweepMetrics
	nilMetrics.IncSuccess("x")
	nilMetrics.SetUnhealthy("x", 1)
}
