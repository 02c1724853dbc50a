package validity

import (
	"sort"

	"github.com/google/uuid"
)

// Candidate is the scope and interval being validated.
type Candidate struct {
	Scope    ScopeKey
	Interval Interval
}

// CheckConflict returns the first rule (by ValidFrom) that shares the candidate's scope
// and overlaps its interval, skipping excludeID. It has no side effects.
func CheckConflict[P Payload](candidate Candidate, rules []Rule[P], excludeID *uuid.UUID) *Rule[P] {
	conflicts := FindConflicts(candidate, rules, excludeID)
	if len(conflicts) == 0 {
		return nil
	}
	return &conflicts[0]
}

// FindConflicts returns every overlapping rule in ValidFrom order.
func FindConflicts[P Payload](candidate Candidate, rules []Rule[P], excludeID *uuid.UUID) []Rule[P] {
	var out []Rule[P]
	for _, r := range rules {
		if excludeID != nil && r.ID == *excludeID {
			continue
		}
		if !r.Scope.Equal(candidate.Scope) {
			continue
		}
		if r.Interval.Overlaps(candidate.Interval) {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out
}

func conflictError[P Payload](candidate Candidate, existing Rule[P]) *ConflictError {
	return &ConflictError{
		Scope:     candidate.Scope,
		Candidate: candidate.Interval,
		RuleID:    existing.ID,
		Interval:  existing.Interval,
		Payload:   existing.Payload,
	}
}

// sortRules orders by ValidFrom, then id so equal starts stay deterministic.
func sortRules[P Payload](rules []Rule[P]) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if !a.Interval.ValidFrom.Equal(b.Interval.ValidFrom) {
			return a.Interval.ValidFrom.Before(b.Interval.ValidFrom)
		}
		return a.ID.String() < b.ID.String()
	})
}
