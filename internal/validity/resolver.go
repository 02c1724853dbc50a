package validity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// ResolutionPolicy decides how dealer and global timelines interact when resolving.
type ResolutionPolicy string

const (
	// PolicyExact resolves only within the requested scope.
	PolicyExact ResolutionPolicy = "exact"
	// PolicyDealerOverride falls back to the global scope when the dealer scope has no effective rule.
	PolicyDealerOverride ResolutionPolicy = "dealer_override"
)

func ParsePolicy(value string) (ResolutionPolicy, error) {
	switch p := ResolutionPolicy(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return PolicyExact, nil
	case PolicyExact, PolicyDealerOverride:
		return p, nil
	default:
		return "", fmt.Errorf("unknown resolution policy %q", value)
	}
}

// Resolve returns the rule of scope whose interval contains at, or nil.
// More than one match is a ConsistencyViolation; no tie-breaking is attempted.
func Resolve[P Payload](rules []Rule[P], scope ScopeKey, at time.Time) (*Rule[P], error) {
	var matches []Rule[P]
	for _, r := range rules {
		if r.Scope.Equal(scope) && r.Interval.Contains(at) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	}
	sortRules(matches)
	day := Day(at)
	return nil, &ConsistencyViolation{Scope: scope, At: &day, RuleIDs: ruleIDs(matches)}
}

// AuditOverlaps checks every pair of rules in scope. The result combines one
// ConsistencyViolation per overlapping pair, or is nil for a healthy timeline.
func AuditOverlaps[P Payload](rules []Rule[P], scope ScopeKey) error {
	var scoped []Rule[P]
	for _, r := range rules {
		if r.Scope.Equal(scope) {
			scoped = append(scoped, r)
		}
	}
	sortRules(scoped)

	var errs error
	for i := range scoped {
		for j := i + 1; j < len(scoped); j++ {
			if scoped[i].Interval.Overlaps(scoped[j].Interval) {
				errs = multierr.Append(errs, &ConsistencyViolation{
					Scope:   scope,
					RuleIDs: []uuid.UUID{scoped[i].ID, scoped[j].ID},
				})
			}
		}
	}
	return errs
}

func ruleIDs[P Payload](rules []Rule[P]) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	return ids
}
