package pricing

import (
	"time"

	"github.com/dealerhub/dealer-pricing/internal/repo"
	"github.com/dealerhub/dealer-pricing/internal/rules"
	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/dealerhub/dealer-pricing/pkg/db"
	"github.com/dealerhub/dealer-pricing/pkg/db/models"
	pkgerrors "github.com/dealerhub/dealer-pricing/pkg/errors"
	"github.com/dealerhub/dealer-pricing/pkg/logger"
	"github.com/dealerhub/dealer-pricing/pkg/metrics"
)

type Service = rules.Service[Price]

// ServiceParams groups dependencies for the pricing service.
type ServiceParams struct {
	DB                 *db.Client
	Locker             validity.ScopeLocker
	Policy             validity.ResolutionPolicy
	AdjustmentLeadDays int
	Metrics            *metrics.RuleMetrics
	Logger             *logger.Logger
	Clock              func() time.Time
}

// NewService wires the pricing timeline onto the pricing_rules table.
// Prices may be global or dealer-specific.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db client is required")
	}
	store := repo.NewScopedRepository[Price, models.PricingRule](params.DB, Mapper{}, params.Locker)
	return rules.NewService(rules.Params[Price]{
		Kind:               Kind,
		Repo:               store,
		Events:             store,
		Scopes:             store,
		Policy:             params.Policy,
		AdjustmentLeadDays: params.AdjustmentLeadDays,
		Metrics:            params.Metrics,
		Logger:             params.Logger,
		Clock:              params.Clock,
	})
}
