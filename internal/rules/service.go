package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dealerhub/dealer-pricing/internal/repo"
	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/dealerhub/dealer-pricing/pkg/db/models"
	pkgerrors "github.com/dealerhub/dealer-pricing/pkg/errors"
	"github.com/dealerhub/dealer-pricing/pkg/logger"
	"github.com/dealerhub/dealer-pricing/pkg/metrics"
	"github.com/dealerhub/dealer-pricing/pkg/pagination"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// EventSource reads the persisted audit trail of a rule.
type EventSource interface {
	Events(ctx context.Context, ruleID uuid.UUID, params pagination.Params) ([]models.RuleAuditEvent, string, error)
}

// ScopeSource enumerates the scopes that hold rules.
type ScopeSource interface {
	Scopes(ctx context.Context) ([]validity.ScopeKey, error)
}

// Params groups dependencies for a rule service.
type Params[P validity.Payload] struct {
	Kind               string
	Repo               validity.Repository[P]
	Events             EventSource
	Scopes             ScopeSource
	Policy             validity.ResolutionPolicy
	AdjustmentLeadDays int
	// RequireDealer rejects global scopes for rule kinds that only exist per dealer.
	RequireDealer bool
	Metrics       *metrics.RuleMetrics
	Logger        *logger.Logger
	Clock         func() time.Time
}

// Service is the boundary between transport and the validity engine for one
// rule kind. Engine errors leave it as pkg/errors values.
type Service[P validity.Payload] struct {
	kind          string
	store         *validity.Store[P]
	router        *validity.Router[P]
	events        EventSource
	scopes        ScopeSource
	requireDealer bool
	metrics       *metrics.RuleMetrics
	logg          *logger.Logger
}

func NewService[P validity.Payload](params Params[P]) (*Service[P], error) {
	if params.Kind == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rule kind is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rule repository is required")
	}
	if params.Policy == "" {
		params.Policy = validity.PolicyExact
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}

	store := validity.NewStore[P](params.Repo, validity.Options{Policy: params.Policy, Clock: params.Clock})
	return &Service[P]{
		kind:  params.Kind,
		store: store,
		router: validity.NewRouter[P](store, validity.RouterOptions{
			Clock:              params.Clock,
			AdjustmentLeadDays: params.AdjustmentLeadDays,
		}),
		events:        params.Events,
		scopes:        params.Scopes,
		requireDealer: params.RequireDealer,
		metrics:       params.Metrics,
		logg:          params.Logger,
	}, nil
}

func (s *Service[P]) Kind() string { return s.kind }

// Policy reports how effective lookups treat dealer and global scopes.
func (s *Service[P]) Policy() validity.ResolutionPolicy { return s.store.Policy() }

type CreateInput[P validity.Payload] struct {
	Scope     validity.ScopeKey
	Payload   P
	ValidFrom time.Time
	ValidTo   *time.Time
}

type AdjustInput[P validity.Payload] struct {
	RuleID    uuid.UUID
	Payload   *P
	ValidFrom *time.Time
	ValidTo   *time.Time
}

type CorrectInput[P validity.Payload] struct {
	RuleID       uuid.UUID
	Unlock       bool
	Payload      *P
	ValidFrom    *time.Time
	ValidTo      *time.Time
	ClearValidTo bool
	Scope        *validity.ScopeKey
}

type DeactivateInput struct {
	RuleID uuid.UUID
	AsOf   *time.Time
}

func (s *Service[P]) Create(ctx context.Context, in CreateInput[P]) (validity.Result[P], error) {
	scope := in.Scope
	from := in.ValidFrom
	return s.Apply(ctx, validity.Intent[P]{
		Mode:      validity.ModeCreate,
		Scope:     &scope,
		Payload:   &in.Payload,
		ValidFrom: &from,
		ValidTo:   in.ValidTo,
	})
}

func (s *Service[P]) Adjust(ctx context.Context, in AdjustInput[P]) (validity.Result[P], error) {
	return s.Apply(ctx, validity.Intent[P]{
		Mode:      validity.ModeAdjust,
		RuleID:    in.RuleID,
		Payload:   in.Payload,
		ValidFrom: in.ValidFrom,
		ValidTo:   in.ValidTo,
	})
}

func (s *Service[P]) Correct(ctx context.Context, in CorrectInput[P]) (validity.Result[P], error) {
	return s.Apply(ctx, validity.Intent[P]{
		Mode:         validity.ModeCorrect,
		RuleID:       in.RuleID,
		Unlock:       in.Unlock,
		Payload:      in.Payload,
		ValidFrom:    in.ValidFrom,
		ValidTo:      in.ValidTo,
		ClearValidTo: in.ClearValidTo,
		Scope:        in.Scope,
	})
}

func (s *Service[P]) Deactivate(ctx context.Context, in DeactivateInput) (validity.Result[P], error) {
	return s.Apply(ctx, validity.Intent[P]{
		Mode:   validity.ModeDeactivate,
		RuleID: in.RuleID,
		AsOf:   in.AsOf,
	})
}

// Apply routes one intent through the engine. The actor must already be on ctx.
func (s *Service[P]) Apply(ctx context.Context, in validity.Intent[P]) (validity.Result[P], error) {
	if in.Scope != nil {
		if err := s.checkScope(*in.Scope); err != nil {
			return validity.Result[P]{}, err
		}
		ctx = s.logg.WithScope(ctx, s.kind, in.Scope.Key())
	}
	if in.RuleID != uuid.Nil {
		ctx = s.logg.WithRuleID(ctx, in.RuleID.String())
	}

	res, err := s.router.Route(ctx, in)
	if err != nil {
		return validity.Result[P]{}, s.translate(ctx, in.Mode, err)
	}
	if res.Unchanged {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"rule_kind": s.kind,
			"rule_id":   res.Rule.ID.String(),
			"mode":      string(in.Mode),
		}), "rule.unchanged")
		return res, nil
	}

	s.metrics.IncMutation(s.kind, string(in.Mode))
	fields := map[string]any{
		"rule_kind":  s.kind,
		"rule_id":    res.Rule.ID.String(),
		"scope":      res.Rule.Scope.Key(),
		"valid_from": res.Rule.Interval.ValidFrom.Format(validity.DateLayout),
		"actor_id":   validity.ActorFromContext(ctx).ID,
	}
	if res.Rule.Interval.ValidTo != nil {
		fields["valid_to"] = res.Rule.Interval.ValidTo.Format(validity.DateLayout)
	}
	if res.Closed != nil {
		fields["closed_rule_id"] = res.Closed.ID.String()
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), eventName(in.Mode))
	return res, nil
}

func (s *Service[P]) Get(ctx context.Context, id uuid.UUID) (validity.Rule[P], error) {
	rule, err := s.store.Get(ctx, id)
	if err != nil {
		return validity.Rule[P]{}, s.translate(ctx, "", err)
	}
	return rule, nil
}

func (s *Service[P]) List(ctx context.Context, scope validity.ScopeKey) ([]validity.Rule[P], error) {
	if err := s.checkScope(scope); err != nil {
		return nil, err
	}
	rules, err := s.store.ListByScope(ctx, scope)
	if err != nil {
		return nil, s.translate(ctx, "", err)
	}
	return rules, nil
}

// Effective returns the rule in force for scope on the day of at, or nil.
func (s *Service[P]) Effective(ctx context.Context, scope validity.ScopeKey, at time.Time) (*validity.Rule[P], error) {
	if err := s.checkScope(scope); err != nil {
		return nil, err
	}
	start := time.Now()
	rule, err := s.store.Resolve(ctx, scope, at)
	s.metrics.ObserveResolve(s.kind, time.Since(start))
	if err != nil {
		return nil, s.translate(s.logg.WithScope(ctx, s.kind, scope.Key()), "", err)
	}
	return rule, nil
}

// Audit reports overlapping rules in one scope. Violations are logged and counted
// but do not fail the call.
func (s *Service[P]) Audit(ctx context.Context, scope validity.ScopeKey) (validity.AuditReport[P], error) {
	if err := s.checkScope(scope); err != nil {
		return validity.AuditReport[P]{}, err
	}
	report, err := s.store.Audit(ctx, scope)
	if err != nil {
		return validity.AuditReport[P]{}, s.translate(ctx, "", err)
	}
	if !report.Healthy() {
		ctx = s.logg.WithScope(ctx, s.kind, scope.Key())
		for _, v := range report.Violations {
			s.metrics.IncViolation(s.kind)
			s.logg.Error(ctx, "rule.consistency_violation", v)
		}
	}
	return report, nil
}

// SweepReport summarizes one audit pass over every scope of a kind.
type SweepReport struct {
	Kind       string
	Scopes     int
	Unhealthy  []string
	Violations int
}

// Sweep audits every scope. A scope that cannot be audited does not stop the
// pass; those failures come back combined.
func (s *Service[P]) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Kind: s.kind}
	if s.scopes == nil {
		return report, pkgerrors.New(pkgerrors.CodeInternal, "scope listing is not configured")
	}
	scopes, err := s.scopes.Scopes(ctx)
	if err != nil {
		return report, s.translate(ctx, "", err)
	}

	var errs error
	for _, scope := range scopes {
		if ctx.Err() != nil {
			return report, multierr.Append(errs, s.translate(ctx, "", ctx.Err()))
		}
		audit, err := s.Audit(ctx, scope)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", scope.Key(), err))
			continue
		}
		report.Scopes++
		if !audit.Healthy() {
			report.Unhealthy = append(report.Unhealthy, scope.Key())
			report.Violations += len(audit.Violations)
		}
	}
	return report, errs
}

// EventPage is one page of a rule's audit trail.
type EventPage struct {
	Events     []models.RuleAuditEvent
	NextCursor string
}

func (s *Service[P]) Events(ctx context.Context, ruleID uuid.UUID, params pagination.Params) (EventPage, error) {
	if _, err := s.Get(ctx, ruleID); err != nil {
		return EventPage{}, err
	}
	if s.events == nil {
		return EventPage{Events: []models.RuleAuditEvent{}}, nil
	}
	events, next, err := s.events.Events(ctx, ruleID, params)
	if err != nil {
		return EventPage{}, s.translate(ctx, "", err)
	}
	return EventPage{Events: events, NextCursor: next}, nil
}

func (s *Service[P]) checkScope(scope validity.ScopeKey) error {
	if err := scope.Validate(); err != nil {
		return s.translate(context.Background(), "", err)
	}
	if s.requireDealer && scope.IsGlobal() {
		return pkgerrors.New(pkgerrors.CodeValidation, s.kind+" rules require a dealer_id")
	}
	return nil
}

func (s *Service[P]) translate(ctx context.Context, mode validity.Mode, err error) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}

	var (
		corrupt         *validity.CorruptRuleError
		invalidInterval *validity.IntervalInvalidError
		invalidScope    *validity.ScopeInvalidError
		immutable       *validity.ScopeImmutableError
		invalidIntent   *validity.IntentInvalidError
		locked          *validity.CorrectionLockedError
		conflict        *validity.ConflictError
		notFound        *validity.NotFoundError
		violation       *validity.ConsistencyViolation
	)
	switch {
	case errors.As(err, &corrupt):
		// A stored row that no longer decodes is a server-side fault, whatever
		// the decode error looked like.
		violation := corrupt.Violation()
		s.metrics.IncViolation(s.kind)
		s.logg.Error(s.logg.WithScope(ctx, s.kind, corrupt.Scope.Key()), "rule.corrupt_row", err)
		return pkgerrors.Wrap(pkgerrors.CodeConsistency, err, "stored rule is corrupt").
			WithDetails(violationDetails(violation))
	case errors.As(err, &invalidInterval):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, invalidInterval.Error()).
			WithDetails(map[string]any{"reason": invalidInterval.Reason})
	case errors.As(err, &invalidScope):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, invalidScope.Error())
	case errors.As(err, &immutable):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "scope cannot be changed by a correction").
			WithDetails(map[string]any{"current_scope": immutable.Current.Key(), "requested_scope": immutable.Requested.Key()})
	case errors.As(err, &invalidIntent):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, invalidIntent.Error())
	case errors.As(err, &locked):
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "corrections require unlock")
	case errors.As(err, &notFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, s.kind+" rule not found")
	case errors.As(err, &conflict):
		s.metrics.IncConflict(s.kind, string(mode))
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"rule_kind":   s.kind,
			"conflict_id": conflict.RuleID.String(),
			"candidate":   conflict.Candidate.String(),
		}), "rule.conflict")
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "validity interval overlaps an existing rule").
			WithDetails(conflictDetails(conflict))
	case errors.As(err, &violation):
		s.metrics.IncViolation(s.kind)
		s.logg.Error(ctx, "rule.consistency_violation", err)
		return pkgerrors.Wrap(pkgerrors.CodeConsistency, err, "stored rules overlap").
			WithDetails(violationDetails(violation))
	case errors.Is(err, repo.ErrScopeBusy):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scope is being modified, retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request cancelled")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rule storage failed")
}

func conflictDetails(c *validity.ConflictError) map[string]any {
	details := map[string]any{
		"conflicting_rule_id": c.RuleID.String(),
		"valid_from":          c.Interval.ValidFrom.Format(validity.DateLayout),
		"valid_to":            nil,
	}
	if c.Interval.ValidTo != nil {
		details["valid_to"] = c.Interval.ValidTo.Format(validity.DateLayout)
	}
	// Payload fields are flattened next to the interval for the admin UI.
	if raw, err := json.Marshal(c.Payload); err == nil {
		var fields map[string]any
		if json.Unmarshal(raw, &fields) == nil {
			for k, v := range fields {
				if _, taken := details[k]; !taken {
					details[k] = v
				}
			}
		}
	}
	return details
}

func violationDetails(v *validity.ConsistencyViolation) map[string]any {
	ids := make([]string, 0, len(v.RuleIDs))
	for _, id := range v.RuleIDs {
		ids = append(ids, id.String())
	}
	details := map[string]any{"scope": v.Scope.Key(), "rule_ids": ids}
	if v.Reason != "" {
		details["reason"] = v.Reason
	}
	if v.At != nil {
		details["at"] = v.At.Format(validity.DateLayout)
	}
	return details
}

func eventName(mode validity.Mode) string {
	switch mode {
	case validity.ModeCreate:
		return "rule.created"
	case validity.ModeAdjust:
		return "rule.adjusted"
	case validity.ModeCorrect:
		return "rule.corrected"
	case validity.ModeDeactivate:
		return "rule.deactivated"
	}
	return "rule.changed"
}
