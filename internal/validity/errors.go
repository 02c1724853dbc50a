package validity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type IntervalInvalidError struct {
	ValidFrom time.Time
	ValidTo   *time.Time
	Reason    string
}

func (e *IntervalInvalidError) Error() string {
	if e.ValidFrom.IsZero() {
		return "invalid interval: " + e.Reason
	}
	iv := Interval{ValidFrom: e.ValidFrom, ValidTo: e.ValidTo}
	return fmt.Sprintf("invalid interval %s: %s", iv, e.Reason)
}

type ScopeInvalidError struct {
	Scope  ScopeKey
	Reason string
}

func (e *ScopeInvalidError) Error() string {
	return fmt.Sprintf("invalid scope %s: %s", e.Scope, e.Reason)
}

// ScopeImmutableError is returned when a correction tries to move a rule to another scope.
type ScopeImmutableError struct {
	RuleID    uuid.UUID
	Current   ScopeKey
	Requested ScopeKey
}

func (e *ScopeImmutableError) Error() string {
	return fmt.Sprintf("rule %s: scope is immutable (%s -> %s)", e.RuleID, e.Current, e.Requested)
}

// CorrectionLockedError is returned for in-place edits requested without the unlock flag.
type CorrectionLockedError struct {
	RuleID uuid.UUID
}

func (e *CorrectionLockedError) Error() string {
	return fmt.Sprintf("rule %s: corrections require an explicit unlock", e.RuleID)
}

// ConflictError names the stored rule that blocks the candidate interval.
type ConflictError struct {
	Scope     ScopeKey
	Candidate Interval
	RuleID    uuid.UUID
	Interval  Interval
	Payload   any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("interval %s overlaps rule %s %s in scope %s", e.Candidate, e.RuleID, e.Interval, e.Scope)
}

type NotFoundError struct {
	RuleID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rule %s not found", e.RuleID)
}

// ConsistencyViolation means the store itself breaks the no-overlap invariant.
// It is never a user error.
type ConsistencyViolation struct {
	Scope   ScopeKey
	At      *time.Time
	RuleIDs []uuid.UUID
	// Reason is set when a single stored rule is broken rather than two rules overlapping.
	Reason string
}

func (e *ConsistencyViolation) Error() string {
	ids := make([]string, 0, len(e.RuleIDs))
	for _, id := range e.RuleIDs {
		ids = append(ids, id.String())
	}
	if e.Reason != "" {
		return fmt.Sprintf("consistency violation in scope %s: rule %s %s", e.Scope, strings.Join(ids, ", "), e.Reason)
	}
	if e.At != nil {
		return fmt.Sprintf("consistency violation in scope %s on %s: rules %s all effective",
			e.Scope, e.At.Format(DateLayout), strings.Join(ids, ", "))
	}
	return fmt.Sprintf("consistency violation in scope %s: rules %s overlap", e.Scope, strings.Join(ids, ", "))
}

// IntentInvalidError rejects a field or mode that the chosen edit action does not allow.
type IntentInvalidError struct {
	Mode   Mode
	Reason string
}

func (e *IntentInvalidError) Error() string {
	return fmt.Sprintf("%s: %s", e.Mode, e.Reason)
}

// CorruptRuleError is returned by repositories for a stored row that does not
// decode into a valid rule, such as valid_to on or before valid_from.
type CorruptRuleError struct {
	RuleID uuid.UUID
	Scope  ScopeKey
	Err    error
}

func (e *CorruptRuleError) Error() string {
	return fmt.Sprintf("stored rule %s in scope %s is corrupt: %v", e.RuleID, e.Scope, e.Err)
}

func (e *CorruptRuleError) Unwrap() error { return e.Err }

// Violation reports the corrupt row the way the consistency audit reports overlaps.
func (e *CorruptRuleError) Violation() *ConsistencyViolation {
	reason := "cannot be decoded"
	if e.Err != nil {
		reason = "cannot be decoded: " + e.Err.Error()
	}
	return &ConsistencyViolation{Scope: e.Scope, RuleIDs: []uuid.UUID{e.RuleID}, Reason: reason}
}
