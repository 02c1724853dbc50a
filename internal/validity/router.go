package validity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode is the edit action a caller picked.
type Mode string

const (
	ModeCreate     Mode = "create"
	ModeAdjust     Mode = "adjust"
	ModeCorrect    Mode = "correct"
	ModeDeactivate Mode = "deactivate"
)

// Intent is a single user edit. Which fields may be set depends on Mode.
type Intent[P Payload] struct {
	Mode   Mode
	RuleID uuid.UUID

	Scope        *ScopeKey
	Payload      *P
	ValidFrom    *time.Time
	ValidTo      *time.Time
	ClearValidTo bool
	Unlock       bool
	AsOf         *time.Time
}

// Result is the outcome of a routed intent. Closed is the predecessor an adjustment ended.
type Result[P Payload] struct {
	Mode   Mode
	Rule   Rule[P]
	Closed *Rule[P]
	// Unchanged is set when the intent was already satisfied and nothing was written.
	Unchanged bool
}

type field uint16

const (
	fieldRuleID field = 1 << iota
	fieldScope
	fieldPayload
	fieldValidFrom
	fieldValidTo
	fieldClearValidTo
	fieldUnlock
	fieldAsOf
)

var fieldNames = []struct {
	f    field
	name string
}{
	{fieldRuleID, "rule_id"},
	{fieldScope, "scope"},
	{fieldPayload, "payload"},
	{fieldValidFrom, "valid_from"},
	{fieldValidTo, "valid_to"},
	{fieldClearValidTo, "clear_valid_to"},
	{fieldUnlock, "unlock"},
	{fieldAsOf, "as_of"},
}

type modePolicy struct {
	allowed  field
	required field
}

// Correction accepts a scope only so it can be compared with the stored one.
var modePolicies = map[Mode]modePolicy{
	ModeCreate: {
		allowed:  fieldScope | fieldPayload | fieldValidFrom | fieldValidTo,
		required: fieldScope | fieldPayload | fieldValidFrom,
	},
	ModeAdjust: {
		allowed:  fieldRuleID | fieldPayload | fieldValidFrom | fieldValidTo,
		required: fieldRuleID,
	},
	ModeCorrect: {
		allowed:  fieldRuleID | fieldScope | fieldPayload | fieldValidFrom | fieldValidTo | fieldClearValidTo | fieldUnlock,
		required: fieldRuleID,
	},
	ModeDeactivate: {
		allowed:  fieldRuleID | fieldAsOf,
		required: fieldRuleID,
	},
}

func (in Intent[P]) fields() field {
	var set field
	if in.RuleID != uuid.Nil {
		set |= fieldRuleID
	}
	if in.Scope != nil {
		set |= fieldScope
	}
	if in.Payload != nil {
		set |= fieldPayload
	}
	if in.ValidFrom != nil {
		set |= fieldValidFrom
	}
	if in.ValidTo != nil {
		set |= fieldValidTo
	}
	if in.ClearValidTo {
		set |= fieldClearValidTo
	}
	if in.Unlock {
		set |= fieldUnlock
	}
	if in.AsOf != nil {
		set |= fieldAsOf
	}
	return set
}

func namesOf(set field) string {
	var names []string
	for _, fn := range fieldNames {
		if set&fn.f != 0 {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, ", ")
}

func checkIntent[P Payload](in Intent[P]) error {
	policy, ok := modePolicies[in.Mode]
	if !ok {
		return &IntentInvalidError{Mode: in.Mode, Reason: "unknown mode"}
	}
	set := in.fields()
	if extra := set &^ policy.allowed; extra != 0 {
		return &IntentInvalidError{Mode: in.Mode, Reason: "fields not allowed: " + namesOf(extra)}
	}
	if missing := policy.required &^ set; missing != 0 {
		return &IntentInvalidError{Mode: in.Mode, Reason: "missing fields: " + namesOf(missing)}
	}
	return nil
}

type RouterOptions struct {
	Clock              func() time.Time
	AdjustmentLeadDays int
}

// Router maps an Intent onto exactly one Store operation. It holds no state.
type Router[P Payload] struct {
	store    *Store[P]
	now      func() time.Time
	leadDays int
}

func NewRouter[P Payload](store *Store[P], opts RouterOptions) *Router[P] {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.AdjustmentLeadDays < 1 {
		opts.AdjustmentLeadDays = 1
	}
	return &Router[P]{store: store, now: opts.Clock, leadDays: opts.AdjustmentLeadDays}
}

func (r *Router[P]) Route(ctx context.Context, in Intent[P]) (Result[P], error) {
	if err := checkIntent(in); err != nil {
		return Result[P]{}, err
	}
	switch in.Mode {
	case ModeCreate:
		return r.create(ctx, in)
	case ModeAdjust:
		return r.adjust(ctx, in)
	case ModeCorrect:
		return r.correct(ctx, in)
	default:
		return r.deactivate(ctx, in)
	}
}

func (r *Router[P]) create(ctx context.Context, in Intent[P]) (Result[P], error) {
	iv, err := NewInterval(*in.ValidFrom, in.ValidTo)
	if err != nil {
		return Result[P]{}, err
	}
	rule, err := r.store.Insert(ctx, Rule[P]{Scope: *in.Scope, Payload: *in.Payload, Interval: iv})
	if err != nil {
		return Result[P]{}, err
	}
	return Result[P]{Mode: ModeCreate, Rule: rule}, nil
}

// adjust copies the template's scope and payload into a new, forward-dated rule.
func (r *Router[P]) adjust(ctx context.Context, in Intent[P]) (Result[P], error) {
	template, err := r.store.Get(ctx, in.RuleID)
	if err != nil {
		return Result[P]{}, err
	}

	today := Day(r.now())
	from := today.AddDate(0, 0, r.leadDays)
	if in.ValidFrom != nil {
		from = Day(*in.ValidFrom)
		if from.Before(today) {
			return Result[P]{}, &IntentInvalidError{Mode: ModeAdjust, Reason: "adjustments cannot start in the past"}
		}
	}
	iv, err := NewInterval(from, in.ValidTo)
	if err != nil {
		return Result[P]{}, err
	}

	payload := template.Payload
	if in.Payload != nil {
		payload = *in.Payload
	}

	rule, closed, err := r.store.Supersede(ctx, Rule[P]{Scope: template.Scope, Payload: payload, Interval: iv})
	if err != nil {
		return Result[P]{}, err
	}
	return Result[P]{Mode: ModeAdjust, Rule: rule, Closed: closed}, nil
}

func (r *Router[P]) correct(ctx context.Context, in Intent[P]) (Result[P], error) {
	if !in.Unlock {
		return Result[P]{}, &CorrectionLockedError{RuleID: in.RuleID}
	}
	rule, err := r.store.Correct(ctx, in.RuleID, Patch[P]{
		Payload:      in.Payload,
		ValidFrom:    in.ValidFrom,
		ValidTo:      in.ValidTo,
		ClearValidTo: in.ClearValidTo,
		Scope:        in.Scope,
	})
	if err != nil {
		return Result[P]{}, err
	}
	return Result[P]{Mode: ModeCorrect, Rule: rule}, nil
}

func (r *Router[P]) deactivate(ctx context.Context, in Intent[P]) (Result[P], error) {
	asOf := r.now()
	if in.AsOf != nil {
		asOf = *in.AsOf
	}
	rule, changed, err := r.store.Deactivate(ctx, in.RuleID, asOf)
	if err != nil {
		return Result[P]{}, err
	}
	return Result[P]{Mode: ModeDeactivate, Rule: rule, Unchanged: !changed}, nil
}
