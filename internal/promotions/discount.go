package promotions

import (
	"strings"
	"unicode/utf8"

	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/dealerhub/dealer-pricing/pkg/db/models"
	pkgerrors "github.com/dealerhub/dealer-pricing/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	Kind                 = "promotion"
	maxDescriptionLength = 255
)

var hundred = decimal.NewFromInt(100)

// Discount is a dealer-specific percentage off the effective price.
type Discount struct {
	Description     string          `json:"description"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

func (d Discount) Validate() error {
	desc := strings.TrimSpace(d.Description)
	switch {
	case desc == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	case utf8.RuneCountInString(desc) > maxDescriptionLength:
		return pkgerrors.New(pkgerrors.CodeValidation, "description must be at most 255 characters")
	case !d.DiscountPercent.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "discount_percent must be greater than zero")
	case d.DiscountPercent.GreaterThan(hundred):
		return pkgerrors.New(pkgerrors.CodeValidation, "discount_percent must be at most 100")
	case !d.DiscountPercent.Equal(d.DiscountPercent.Round(2)):
		return pkgerrors.New(pkgerrors.CodeValidation, "discount_percent supports at most two decimal places")
	}
	return nil
}

type Rule = validity.Rule[Discount]

type Mapper struct{}

func (Mapper) Kind() string { return Kind }

// ToModel expects a dealer scope. Global scopes are rejected before reaching storage.
func (Mapper) ToModel(r Rule) models.PromotionPolicy {
	var dealer int64
	if r.Scope.DealerID != nil {
		dealer = *r.Scope.DealerID
	}
	return models.PromotionPolicy{
		ID:              r.ID,
		ProductID:       r.Scope.ProductID,
		DealerID:        dealer,
		Description:     strings.TrimSpace(r.Payload.Description),
		DiscountPercent: r.Payload.DiscountPercent,
		ValidFrom:       r.Interval.ValidFrom,
		ValidTo:         r.Interval.ValidTo,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (Mapper) ToRule(m models.PromotionPolicy) (Rule, error) {
	scope := validity.DealerScope(m.ProductID, m.DealerID)
	iv, err := validity.NewInterval(m.ValidFrom, m.ValidTo)
	if err != nil {
		return Rule{}, &validity.CorruptRuleError{RuleID: m.ID, Scope: scope, Err: err}
	}
	return Rule{
		ID:        m.ID,
		Scope:     scope,
		Interval:  iv,
		Payload:   Discount{Description: m.Description, DiscountPercent: m.DiscountPercent},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}
