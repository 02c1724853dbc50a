package pricing

import (
	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/dealerhub/dealer-pricing/pkg/db/models"
	pkgerrors "github.com/dealerhub/dealer-pricing/pkg/errors"
	"github.com/shopspring/decimal"
)

// Kind tags pricing rules in audit rows, lock keys and metrics.
const Kind = "pricing"

// maxValue is the largest amount numeric(14,2) can hold.
var maxValue = decimal.New(1, 12)

// Price is the wholesale amount a dealer pays for a product.
type Price struct {
	Value decimal.Decimal `json:"value"`
}

func (p Price) Validate() error {
	switch {
	case !p.Value.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "value must be greater than zero")
	case !p.Value.Equal(p.Value.Round(2)):
		return pkgerrors.New(pkgerrors.CodeValidation, "value supports at most two decimal places")
	case p.Value.GreaterThanOrEqual(maxValue):
		return pkgerrors.New(pkgerrors.CodeValidation, "value is too large")
	}
	return nil
}

type Rule = validity.Rule[Price]

// Mapper converts pricing rules to pricing_rules rows.
type Mapper struct{}

func (Mapper) Kind() string { return Kind }

func (Mapper) ToModel(r Rule) models.PricingRule {
	return models.PricingRule{
		ID:        r.ID,
		ProductID: r.Scope.ProductID,
		DealerID:  r.Scope.DealerID,
		Value:     r.Payload.Value,
		ValidFrom: r.Interval.ValidFrom,
		ValidTo:   r.Interval.ValidTo,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ToRule returns *validity.CorruptRuleError for a row whose interval is invalid.
func (Mapper) ToRule(m models.PricingRule) (Rule, error) {
	var dealer *int64
	if m.DealerID != nil {
		id := *m.DealerID
		dealer = &id
	}
	scope := validity.ScopeKey{ProductID: m.ProductID, DealerID: dealer}
	iv, err := validity.NewInterval(m.ValidFrom, m.ValidTo)
	if err != nil {
		return Rule{}, &validity.CorruptRuleError{RuleID: m.ID, Scope: scope, Err: err}
	}
	return Rule{
		ID:        m.ID,
		Scope:     scope,
		Interval:  iv,
		Payload:   Price{Value: m.Value},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}
