package validity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// errUnchanged lets a mutation finish without writing or auditing anything.
var errUnchanged = errors.New("rule unchanged")

type Options struct {
	Policy ResolutionPolicy
	Clock  func() time.Time
	NewID  func() uuid.UUID
}

// Store enforces the per-scope no-overlap invariant on top of a Repository.
type Store[P Payload] struct {
	repo   Repository[P]
	policy ResolutionPolicy
	now    func() time.Time
	newID  func() uuid.UUID
}

func NewStore[P Payload](repo Repository[P], opts Options) *Store[P] {
	if opts.Policy == "" {
		opts.Policy = PolicyExact
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.New
	}
	return &Store[P]{repo: repo, policy: opts.Policy, now: opts.Clock, newID: opts.NewID}
}

func (s *Store[P]) Policy() ResolutionPolicy {
	return s.policy
}

func (s *Store[P]) ListByScope(ctx context.Context, scope ScopeKey) ([]Rule[P], error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	rules, err := s.repo.ListByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	sortRules(rules)
	return rules, nil
}

func (s *Store[P]) Get(ctx context.Context, id uuid.UUID) (Rule[P], error) {
	return s.repo.Get(ctx, id)
}

// Insert validates rule against its scope and persists it as a new record.
func (s *Store[P]) Insert(ctx context.Context, rule Rule[P]) (Rule[P], error) {
	rule, err := s.prepare(rule)
	if err != nil {
		return Rule[P]{}, err
	}
	err = s.repo.Transact(ctx, rule.Scope, func(ctx context.Context, tx Tx[P]) error {
		return s.insert(ctx, tx, rule, ModeCreate)
	})
	if err != nil {
		return Rule[P]{}, err
	}
	return rule, nil
}

// Supersede appends rule to its scope's timeline. An open-ended rule that starts
// before rule is closed at rule.ValidFrom in the same transaction. The closed
// predecessor, if any, is returned alongside the new rule.
func (s *Store[P]) Supersede(ctx context.Context, rule Rule[P]) (Rule[P], *Rule[P], error) {
	rule, err := s.prepare(rule)
	if err != nil {
		return Rule[P]{}, nil, err
	}

	var closed *Rule[P]
	err = s.repo.Transact(ctx, rule.Scope, func(ctx context.Context, tx Tx[P]) error {
		rules, err := tx.ListByScope(ctx, rule.Scope)
		if err != nil {
			return err
		}
		var open []Rule[P]
		for _, r := range rules {
			if r.Interval.IsOpenEnded() && r.Interval.ValidFrom.Before(rule.Interval.ValidFrom) {
				open = append(open, r)
			}
		}
		if len(open) > 1 {
			return &ConsistencyViolation{Scope: rule.Scope, RuleIDs: ruleIDs(open)}
		}
		if len(open) == 1 {
			prev := open[0]
			iv, err := prev.Interval.ClosedAt(rule.Interval.ValidFrom)
			if err != nil {
				return err
			}
			next := prev
			next.Interval = iv
			next.UpdatedAt = rule.CreatedAt
			if err := tx.Update(ctx, next); err != nil {
				return err
			}
			if err := tx.RecordEvent(ctx, s.event(ctx, ModeAdjust, &prev, next)); err != nil {
				return err
			}
			closed = &next
		}
		return s.insert(ctx, tx, rule, ModeAdjust)
	})
	if err != nil {
		return Rule[P]{}, nil, err
	}
	return rule, closed, nil
}

// Correct edits payload and interval of an existing rule in place. The rule is
// re-validated against its siblings with itself excluded.
func (s *Store[P]) Correct(ctx context.Context, id uuid.UUID, patch Patch[P]) (Rule[P], error) {
	rule, _, err := s.mutate(ctx, id, ModeCorrect, patch.apply)
	return rule, err
}

// Deactivate ends the rule at asOf. A rule that already ends on or before asOf
// is returned as stored, with changed false and no audit event. Otherwise it
// goes through the same validation as Correct.
func (s *Store[P]) Deactivate(ctx context.Context, id uuid.UUID, asOf time.Time) (rule Rule[P], changed bool, err error) {
	return s.mutate(ctx, id, ModeDeactivate, func(cur Rule[P]) (Rule[P], error) {
		end := Day(asOf)
		if cur.Interval.ValidTo != nil && !cur.Interval.ValidTo.After(end) {
			return cur, errUnchanged
		}
		return Patch[P]{ValidTo: &end}.apply(cur)
	})
}

// Resolve returns the rule effective for scope on the day of at, honoring the store's policy.
func (s *Store[P]) Resolve(ctx context.Context, scope ScopeKey, at time.Time) (*Rule[P], error) {
	rules, err := s.ListByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	found, err := Resolve(rules, scope, at)
	if err != nil || found != nil {
		return found, err
	}
	if s.policy != PolicyDealerOverride || scope.IsGlobal() {
		return nil, nil
	}
	global := scope.Global()
	rules, err = s.ListByScope(ctx, global)
	if err != nil {
		return nil, err
	}
	return Resolve(rules, global, at)
}

type AuditReport[P Payload] struct {
	Scope      ScopeKey
	Rules      []Rule[P]
	Violations []*ConsistencyViolation
}

func (r AuditReport[P]) Healthy() bool {
	return len(r.Violations) == 0
}

// Audit re-checks a whole scope for rules written outside the engine. Overlaps
// and rows that no longer decode are reported in the result; the error is
// reserved for load failures.
func (s *Store[P]) Audit(ctx context.Context, scope ScopeKey) (AuditReport[P], error) {
	if err := scope.Validate(); err != nil {
		return AuditReport[P]{}, err
	}
	rules, err := s.repo.ListByScope(ctx, scope)
	var corrupt []*ConsistencyViolation
	for _, e := range multierr.Errors(err) {
		var bad *CorruptRuleError
		if !errors.As(e, &bad) {
			return AuditReport[P]{}, err
		}
		corrupt = append(corrupt, bad.Violation())
	}
	sortRules(rules)

	report := AuditReport[P]{Scope: scope, Rules: rules, Violations: corrupt}
	for _, err := range multierr.Errors(AuditOverlaps(rules, scope)) {
		if v, ok := err.(*ConsistencyViolation); ok {
			report.Violations = append(report.Violations, v)
		}
	}
	return report, nil
}

func (s *Store[P]) mutate(ctx context.Context, id uuid.UUID, mode Mode, change func(Rule[P]) (Rule[P], error)) (Rule[P], bool, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Rule[P]{}, false, err
	}

	var out Rule[P]
	changed := true
	err = s.repo.Transact(ctx, current.Scope, func(ctx context.Context, tx Tx[P]) error {
		cur, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		next, err := change(cur)
		if errors.Is(err, errUnchanged) {
			out, changed = cur, false
			return nil
		}
		if err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		rules, err := tx.ListByScope(ctx, next.Scope)
		if err != nil {
			return err
		}
		candidate := Candidate{Scope: next.Scope, Interval: next.Interval}
		if hit := CheckConflict(candidate, rules, &next.ID); hit != nil {
			return conflictError(candidate, *hit)
		}
		next.UpdatedAt = s.now().UTC()
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		if err := tx.RecordEvent(ctx, s.event(ctx, mode, &cur, next)); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return Rule[P]{}, false, err
	}
	return out, changed, nil
}

func (s *Store[P]) insert(ctx context.Context, tx Tx[P], rule Rule[P], mode Mode) error {
	rules, err := tx.ListByScope(ctx, rule.Scope)
	if err != nil {
		return err
	}
	candidate := Candidate{Scope: rule.Scope, Interval: rule.Interval}
	if hit := CheckConflict(candidate, rules, nil); hit != nil {
		return conflictError(candidate, *hit)
	}
	if err := tx.Insert(ctx, rule); err != nil {
		return err
	}
	return tx.RecordEvent(ctx, s.event(ctx, mode, nil, rule))
}

func (s *Store[P]) prepare(rule Rule[P]) (Rule[P], error) {
	iv, err := NewInterval(rule.Interval.ValidFrom, rule.Interval.ValidTo)
	if err != nil {
		return rule, err
	}
	rule.Interval = iv
	if rule.ID == uuid.Nil {
		rule.ID = s.newID()
	}
	now := s.now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	return rule, rule.Validate()
}

func (s *Store[P]) event(ctx context.Context, mode Mode, before *Rule[P], after Rule[P]) Event[P] {
	return Event[P]{
		RuleID:     after.ID,
		Scope:      after.Scope,
		Mode:       mode,
		Actor:      ActorFromContext(ctx),
		Before:     before,
		After:      after,
		OccurredAt: s.now().UTC(),
	}
}
