package rules

import (
	"github.com/shopspring/decimal"

	"github.com/dealerhub/dealer-pricing/api/validators"
	"github.com/dealerhub/dealer-pricing/internal/pricing"
	"github.com/dealerhub/dealer-pricing/internal/promotions"
	"github.com/dealerhub/dealer-pricing/internal/validity"
)

// Binding maps the kind-specific body fields of a rule request onto its payload.
type Binding[P validity.Payload] interface {
	// Fields lists the JSON keys the payload owns.
	Fields() []string
	// Merge overlays the payload fields present in body onto base.
	// ok is false when body carries none of them.
	Merge(base P, body []byte) (merged P, ok bool, err error)
}

type PriceBinding struct{}

type priceFields struct {
	Value *decimal.Decimal `json:"value"`
}

func (PriceBinding) Fields() []string { return []string{"value"} }

func (PriceBinding) Merge(base pricing.Price, body []byte) (pricing.Price, bool, error) {
	var fields priceFields
	if err := validators.DecodeJSON(body, &fields); err != nil {
		return base, false, err
	}
	if fields.Value == nil {
		return base, false, nil
	}
	base.Value = *fields.Value
	return base, true, nil
}

type DiscountBinding struct{}

type discountFields struct {
	Description     *string          `json:"description"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
}

func (DiscountBinding) Fields() []string { return []string{"description", "discount_percent"} }

func (DiscountBinding) Merge(base promotions.Discount, body []byte) (promotions.Discount, bool, error) {
	var fields discountFields
	if err := validators.DecodeJSON(body, &fields); err != nil {
		return base, false, err
	}
	ok := false
	if fields.Description != nil {
		base.Description = *fields.Description
		ok = true
	}
	if fields.DiscountPercent != nil {
		base.DiscountPercent = *fields.DiscountPercent
		ok = true
	}
	return base, ok, nil
}
