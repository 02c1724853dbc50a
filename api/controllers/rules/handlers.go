package rules

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dealerhub/dealer-pricing/api/middleware"
	"github.com/dealerhub/dealer-pricing/api/responses"
	"github.com/dealerhub/dealer-pricing/api/validators"
	rulesvc "github.com/dealerhub/dealer-pricing/internal/rules"
	"github.com/dealerhub/dealer-pricing/internal/validity"
	pkgerrors "github.com/dealerhub/dealer-pricing/pkg/errors"
	"github.com/dealerhub/dealer-pricing/pkg/logger"
	"github.com/dealerhub/dealer-pricing/pkg/pagination"
)

// Controller serves the admin and lookup endpoints of one rule kind.
type Controller[P validity.Payload] struct {
	svc     *rulesvc.Service[P]
	binding Binding[P]
	clock   func() time.Time
	logg    *logger.Logger
}

func NewController[P validity.Payload](svc *rulesvc.Service[P], binding Binding[P], clock func() time.Time, logg *logger.Logger) *Controller[P] {
	if clock == nil {
		clock = time.Now
	}
	return &Controller[P]{svc: svc, binding: binding, clock: clock, logg: logg}
}

func (c *Controller[P]) fail(w http.ResponseWriter, r *http.Request, err error) {
	responses.WriteError(r.Context(), c.logg, w, err)
}

func (c *Controller[P]) ready(w http.ResponseWriter, r *http.Request) bool {
	if c == nil || c.svc == nil {
		responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeInternal, "rule service unavailable"))
		return false
	}
	return true
}

// List returns every rule of a scope ordered by valid_from.
func (c *Controller[P]) List(w http.ResponseWriter, r *http.Request) {
	if !c.ready(w, r) {
		return
	}
	scope, err := parseScope(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	list, err := c.svc.List(r.Context(), scope)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	responses.WriteSuccess(w, newRuleViews(c.svc.Kind(), list))
}

func (c *Controller[P]) Get(w http.ResponseWriter, r *http.Request) {
	if !c.ready(w, r) {
		return
	}
	id, err := parseRuleID(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	rule, err := c.svc.Get(r.Context(), id)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	responses.WriteSuccess(w, newRuleView(c.svc.Kind(), rule))
}

func (c *Controller[P]) Create(w http.ResponseWriter, r *http.Request) {
	if !c.ready(w, r) {
		return
	}
	body, err := validators.ReadJSONObject(r, allowed(createFields, c.binding.Fields())...)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	var req createRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		c.fail(w, r, err)
		return
	}
	var zero P
	payload, _, err := c.binding.Merge(zero, body)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	from, err := requireDate(req.ValidFrom, "valid_from")
	if err != nil {
		c.fail(w, r, err)
		return
	}
	to, err := validators.ParseOptionalDate(req.ValidTo, "valid_to")
	if err != nil {
		c.fail(w, r, err)
		return
	}

	res, err := c.svc.Create(actorContext(r), rulesvc.CreateInput[P]{
		Scope:     req.scope(),
		Payload:   payload,
		ValidFrom: from,
		ValidTo:   to,
	})
	if err != nil {
		c.fail(w, r, err)
		return
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, newMutationResponse(c.svc.Kind(), res))
}

// Adjust supersedes a rule from a future date. Payload fields left out of the
// body are carried over from the rule being adjusted.
func (c *Controller[P]) Adjust(w http.ResponseWriter, r *http.Request) {
	if !c.ready(w, r) {
		return
	}
	id, err := parseRuleID(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	body, err := validators.ReadJSONObject(r, allowed(adjustFields, c.binding.Fields())...)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	var req adjustRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		c.fail(w, r, err)
		return
	}
	d, err := parseDates(req.ValidFrom, req.ValidTo)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	payload, err := c.payloadPatch(r.Context(), id, body, nil)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	res, err := c.svc.Adjust(actorContext(r), rulesvc.AdjustInput[P]{
		RuleID:    id,
		Payload:   payload,
		ValidFrom: d.from,
		ValidTo:   d.to,
	})
	if err != nil {
		c.fail(w, r, err)
		return
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, newMutationResponse(c.svc.Kind(), res))
}

// Correct edits a rule in place. The route is admin-only and the body must carry unlock.
func (c *Controller[P]) Correct(w http.ResponseWriter, r *http.Request) {
	if !c.ready(w, r) {
		return
	}
	id, err := parseRuleID(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	body, err := validators.ReadJSONObject(r, allowed(correctFields, c.binding.Fields())...)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	var req correctRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		c.fail(w, r, err)
		return
	}
	d, err := parseDates(req.ValidFrom, req.ValidTo)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	var current *validity.Rule[P]
	payload, err := c.payloadPatch(r.Context(), id, body, &current)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	var scope *validity.ScopeKey
	if req.ProductID != nil || req.DealerID != nil {
		if current == nil {
			rule, err := c.svc.Get(r.Context(), id)
			if err != nil {
				c.fail(w, r, err)
				return
			}
			current = &rule
		}
		scope = req.identity(current.Scope)
	}

	res, err := c.svc.Correct(actorContext(r), rulesvc.CorrectInput[P]{
		RuleID:       id,
		Unlock:       req.Unlock,
		Payload:      payload,
		ValidFrom:    d.from,
		ValidTo:      d.to,
		ClearValidTo: req.ClearValidTo,
		Scope:        scope,
	})
	if err != nil {
		c.fail(w, r, err)
		return
	}
	responses.WriteSuccess(w, newMutationResponse(c.svc.Kind(), res))
}

func (c *Controller[P]) Deactivate(w http.ResponseWriter, r *http.Request) {
	if !c.ready(w, r) {
		return
	}
	id, err := parseRuleID(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	body, err := validators.ReadJSONObject(r, deactivateFields...)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	var req deactivateRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		c.fail(w, r, err)
		return
	}
	asOf, err := validators.ParseOptionalDate(req.AsOf, "as_of")
	if err != nil {
		c.fail(w, r, err)
		return
	}

	res, err := c.svc.Deactivate(actorContext(r), rulesvc.DeactivateInput{RuleID: id, AsOf: asOf})
	if err != nil {
		c.fail(w, r, err)
		return
	}
	responses.WriteSuccess(w, newMutationResponse(c.svc.Kind(), res))
}

// Audit re-checks a scope for overlapping rules.
func (c *Controller[P]) Audit(w http.ResponseWriter, r *http.Request) {
	if !c.ready(w, r) {
		return
	}
	scope, err := parseScope(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	report, err := c.svc.Audit(r.Context(), scope)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	responses.WriteSuccess(w, newAuditResponse(c.svc.Kind(), report))
}

func (c *Controller[P]) Events(w http.ResponseWriter, r *http.Request) {
	if !c.ready(w, r) {
		return
	}
	id, err := parseRuleID(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	page, err := c.svc.Events(r.Context(), id, pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	})
	if err != nil {
		c.fail(w, r, err)
		return
	}
	responses.WriteSuccess(w, newEventsResponse(page))
}

// Effective answers "which rule applies on as_of" for checkout. No rule is not an error.
func (c *Controller[P]) Effective(w http.ResponseWriter, r *http.Request) {
	if !c.ready(w, r) {
		return
	}
	scope, err := parseScope(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	asOf, err := validators.ParseQueryDate(r, "as_of", c.clock())
	if err != nil {
		c.fail(w, r, err)
		return
	}
	rule, err := c.svc.Effective(r.Context(), scope, asOf)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	out := effectiveResponse{
		Scope:  newScopeView(scope),
		AsOf:   asOf.Format(validity.DateLayout),
		Policy: string(c.svc.Policy()),
	}
	if rule != nil {
		out.Rule = newRuleView(c.svc.Kind(), *rule)
	}
	responses.WriteSuccess(w, out)
}

// payloadPatch returns the merged payload when body carries payload fields, nil otherwise.
// The rule it loads to merge onto is handed back through current when non-nil.
func (c *Controller[P]) payloadPatch(ctx context.Context, id uuid.UUID, body []byte, current **validity.Rule[P]) (*P, error) {
	var zero P
	if _, ok, err := c.binding.Merge(zero, body); err != nil || !ok {
		return nil, err
	}
	rule, err := c.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current != nil {
		*current = &rule
	}
	merged, _, err := c.binding.Merge(rule.Payload, body)
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

func actorContext(r *http.Request) context.Context {
	ctx := r.Context()
	return validity.WithActor(ctx, validity.Actor{
		ID:   middleware.ActorIDFromContext(ctx),
		Role: middleware.RoleFromContext(ctx),
	})
}

func parseRuleID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "ruleId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rule id").WithDetails(map[string]any{"field": "ruleId"})
	}
	return id, nil
}

func parseScope(r *http.Request) (validity.ScopeKey, error) {
	productID, err := validators.ParseQueryID(r, "product_id", true)
	if err != nil {
		return validity.ScopeKey{}, err
	}
	dealerID, err := validators.ParseQueryID(r, "dealer_id", false)
	if err != nil {
		return validity.ScopeKey{}, err
	}
	return validity.ScopeKey{ProductID: *productID, DealerID: dealerID}, nil
}
