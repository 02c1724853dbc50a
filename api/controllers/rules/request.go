package rules

import (
	"time"

	"github.com/dealerhub/dealer-pricing/api/validators"
	"github.com/dealerhub/dealer-pricing/internal/validity"
	pkgerrors "github.com/dealerhub/dealer-pricing/pkg/errors"
)

var (
	createFields     = []string{"product_id", "dealer_id", "valid_from", "valid_to"}
	adjustFields     = []string{"valid_from", "valid_to"}
	correctFields    = []string{"unlock", "valid_from", "valid_to", "clear_valid_to", "product_id", "dealer_id"}
	deactivateFields = []string{"as_of"}
)

type createRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	DealerID  *int64  `json:"dealer_id,omitempty" validate:"omitempty,gt=0"`
	ValidFrom string  `json:"valid_from" validate:"required,date"`
	ValidTo   *string `json:"valid_to,omitempty" validate:"omitempty,date"`
}

func (r createRequest) scope() validity.ScopeKey {
	return validity.ScopeKey{ProductID: r.ProductID, DealerID: r.DealerID}
}

type adjustRequest struct {
	ValidFrom *string `json:"valid_from,omitempty" validate:"omitempty,date"`
	ValidTo   *string `json:"valid_to,omitempty" validate:"omitempty,date"`
}

type correctRequest struct {
	Unlock       bool    `json:"unlock"`
	ValidFrom    *string `json:"valid_from,omitempty" validate:"omitempty,date"`
	ValidTo      *string `json:"valid_to,omitempty" validate:"omitempty,date"`
	ClearValidTo bool    `json:"clear_valid_to"`
	ProductID    *int64  `json:"product_id,omitempty"`
	DealerID     *int64  `json:"dealer_id,omitempty"`
}

// identity returns the scope the caller claims the rule has, or nil when no identity
// field was sent. A missing product falls back to current; a missing dealer means global.
func (r correctRequest) identity(current validity.ScopeKey) *validity.ScopeKey {
	if r.ProductID == nil && r.DealerID == nil {
		return nil
	}
	scope := validity.ScopeKey{ProductID: current.ProductID, DealerID: r.DealerID}
	if r.ProductID != nil {
		scope.ProductID = *r.ProductID
	}
	return &scope
}

type deactivateRequest struct {
	AsOf *string `json:"as_of,omitempty" validate:"omitempty,date"`
}

type dates struct {
	from *time.Time
	to   *time.Time
}

func parseDates(from, to *string) (dates, error) {
	var out dates
	var err error
	if out.from, err = validators.ParseOptionalDate(from, "valid_from"); err != nil {
		return dates{}, err
	}
	if out.to, err = validators.ParseOptionalDate(to, "valid_to"); err != nil {
		return dates{}, err
	}
	return out, nil
}

func requireDate(value string, field string) (time.Time, error) {
	parsed, err := validators.ParseOptionalDate(&value, field)
	if err != nil {
		return time.Time{}, err
	}
	if parsed == nil {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, field+" is required").WithDetails(map[string]any{"field": field})
	}
	return *parsed, nil
}

func allowed(base []string, extra []string) []string {
	keys := make([]string, 0, len(base)+len(extra))
	keys = append(keys, base...)
	return append(keys, extra...)
}
