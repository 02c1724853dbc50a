package validity

import (
	"time"

	"github.com/google/uuid"
)

// Payload is the kind-specific part of a rule (a price, a discount).
type Payload interface {
	Validate() error
}

type Rule[P Payload] struct {
	ID        uuid.UUID
	Scope     ScopeKey
	Interval  Interval
	Payload   P
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Rule[P]) Validate() error {
	if err := r.Scope.Validate(); err != nil {
		return err
	}
	if err := r.Interval.Validate(); err != nil {
		return err
	}
	return r.Payload.Validate()
}

// Patch carries the fields of an in-place correction. Nil fields are left alone.
// Scope is only set when the caller sent identity fields; it must match the stored scope.
type Patch[P Payload] struct {
	Payload      *P
	ValidFrom    *time.Time
	ValidTo      *time.Time
	ClearValidTo bool
	Scope        *ScopeKey
}

func (p Patch[P]) apply(rule Rule[P]) (Rule[P], error) {
	if p.Scope != nil && !p.Scope.Equal(rule.Scope) {
		return rule, &ScopeImmutableError{RuleID: rule.ID, Current: rule.Scope, Requested: *p.Scope}
	}
	if p.ClearValidTo && p.ValidTo != nil {
		return rule, &IntentInvalidError{Mode: ModeCorrect, Reason: "valid_to and clear_valid_to are mutually exclusive"}
	}

	next := rule
	if p.Payload != nil {
		next.Payload = *p.Payload
	}

	from := rule.Interval.ValidFrom
	if p.ValidFrom != nil {
		from = *p.ValidFrom
	}
	to := rule.Interval.ValidTo
	switch {
	case p.ClearValidTo:
		to = nil
	case p.ValidTo != nil:
		to = p.ValidTo
	}
	iv, err := NewInterval(from, to)
	if err != nil {
		return rule, err
	}
	next.Interval = iv
	return next, nil
}

// Actor identifies who triggered a mutation; it ends up in the audit trail.
type Actor struct {
	ID   string
	Role string
}

// Event is one audited write.
type Event[P Payload] struct {
	RuleID     uuid.UUID
	Scope      ScopeKey
	Mode       Mode
	Actor      Actor
	Before     *Rule[P]
	After      Rule[P]
	OccurredAt time.Time
}
