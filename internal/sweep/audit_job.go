package sweep

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/dealerhub/dealer-pricing/internal/rules"
	"github.com/dealerhub/dealer-pricing/pkg/logger"
	"github.com/dealerhub/dealer-pricing/pkg/metrics"
)

// Sweeper is implemented by rules.Service for every rule kind.
type Sweeper interface {
	Kind() string
	Sweep(ctx context.Context) (rules.SweepReport, error)
}

type AuditJob struct {
	sweeper Sweeper
	metrics *metrics.SweepMetrics
	logg    *logger.Logger
}

// NewAuditJob re-checks every scope of one rule kind for overlapping rules.
func NewAuditJob(sweeper Sweeper, m *metrics.SweepMetrics, logg *logger.Logger) (*AuditJob, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &AuditJob{sweeper: sweeper, metrics: m, logg: logg}, nil
}

func (j *AuditJob) Name() string { return j.sweeper.Kind() + "-audit" }

// Run fails when any scope could not be audited or holds overlapping rules.
func (j *AuditJob) Run(ctx context.Context) error {
	report, err := j.sweeper.Sweep(ctx)
	j.metrics.SetUnhealthy(report.Kind, len(report.Unhealthy))

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"rule_kind":       report.Kind,
		"scopes_checked":  report.Scopes,
		"unhealthy":       len(report.Unhealthy),
		"violation_count": report.Violations,
	}), "sweep.audit_summary")

	if len(report.Unhealthy) > 0 {
		err = multierr.Append(err, fmt.Errorf("%d %s scope(s) hold overlapping rules: %s",
			len(report.Unhealthy), report.Kind, strings.Join(report.Unhealthy, ", ")))
	}
	return err
}
