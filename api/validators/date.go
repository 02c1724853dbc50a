package validators

import (
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/dealerhub/dealer-pricing/pkg/errors"
)

// DateLayout is the wire format for every validity date.
const DateLayout = "2006-01-02"

func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(value))
}

// ParseOptionalDate returns nil for nil or blank input.
func ParseOptionalDate(value *string, field string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	d, err := ParseDate(*value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, field+" must be a YYYY-MM-DD date").
			WithDetails(map[string]any{"field": field})
	}
	return &d, nil
}

// ParseQueryDate reads a date query parameter, falling back to the UTC day of now.
func ParseQueryDate(r *http.Request, key string, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	value, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, key+" must be a YYYY-MM-DD date").
			WithDetails(map[string]any{"field": key})
	}
	return value, nil
}
