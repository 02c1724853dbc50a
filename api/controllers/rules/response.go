package rules

import (
	"encoding/json"
	"time"

	"github.com/dealerhub/dealer-pricing/internal/rules"
	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/dealerhub/dealer-pricing/pkg/db/models"
)

// ruleView is the wire form of a rule: identity, interval and the payload fields side by side.
type ruleView map[string]any

func newRuleView[P validity.Payload](kind string, rule validity.Rule[P]) ruleView {
	view := ruleView{}
	if raw, err := json.Marshal(rule.Payload); err == nil {
		_ = json.Unmarshal(raw, &view)
	}
	view["id"] = rule.ID.String()
	view["kind"] = kind
	view["product_id"] = rule.Scope.ProductID
	view["dealer_id"] = rule.Scope.DealerID
	view["valid_from"] = rule.Interval.ValidFrom.Format(validity.DateLayout)
	view["valid_to"] = nil
	if rule.Interval.ValidTo != nil {
		view["valid_to"] = rule.Interval.ValidTo.Format(validity.DateLayout)
	}
	view["created_at"] = rule.CreatedAt
	view["updated_at"] = rule.UpdatedAt
	return view
}

func newRuleViews[P validity.Payload](kind string, list []validity.Rule[P]) []ruleView {
	views := make([]ruleView, 0, len(list))
	for _, rule := range list {
		views = append(views, newRuleView(kind, rule))
	}
	return views
}

type mutationResponse struct {
	Mode      string   `json:"mode"`
	Rule      ruleView `json:"rule"`
	Closed    ruleView `json:"closed_rule"`
	Unchanged bool     `json:"unchanged"`
}

func newMutationResponse[P validity.Payload](kind string, res validity.Result[P]) mutationResponse {
	out := mutationResponse{Mode: string(res.Mode), Rule: newRuleView(kind, res.Rule), Unchanged: res.Unchanged}
	if res.Closed != nil {
		out.Closed = newRuleView(kind, *res.Closed)
	}
	return out
}

type scopeView struct {
	Key       string `json:"key"`
	ProductID int64  `json:"product_id"`
	DealerID  *int64 `json:"dealer_id"`
}

func newScopeView(scope validity.ScopeKey) scopeView {
	return scopeView{Key: scope.Key(), ProductID: scope.ProductID, DealerID: scope.DealerID}
}

type effectiveResponse struct {
	Scope  scopeView `json:"scope"`
	AsOf   string    `json:"as_of"`
	Policy string    `json:"policy"`
	Rule   ruleView  `json:"rule"`
}

type violationView struct {
	RuleIDs []string `json:"rule_ids"`
	At      *string  `json:"at"`
	Message string   `json:"message"`
}

type auditResponse struct {
	Scope      scopeView       `json:"scope"`
	Healthy    bool            `json:"healthy"`
	Rules      []ruleView      `json:"rules"`
	Violations []violationView `json:"violations"`
}

func newAuditResponse[P validity.Payload](kind string, report validity.AuditReport[P]) auditResponse {
	out := auditResponse{
		Scope:      newScopeView(report.Scope),
		Healthy:    report.Healthy(),
		Rules:      newRuleViews(kind, report.Rules),
		Violations: make([]violationView, 0, len(report.Violations)),
	}
	for _, v := range report.Violations {
		ids := make([]string, 0, len(v.RuleIDs))
		for _, id := range v.RuleIDs {
			ids = append(ids, id.String())
		}
		view := violationView{RuleIDs: ids, Message: v.Error()}
		if v.At != nil {
			at := v.At.Format(validity.DateLayout)
			view.At = &at
		}
		out.Violations = append(out.Violations, view)
	}
	return out
}

type eventView struct {
	ID         string          `json:"id"`
	Mode       string          `json:"mode"`
	ActorID    string          `json:"actor_id,omitempty"`
	ActorRole  string          `json:"actor_role,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type eventsResponse struct {
	Events     []eventView `json:"events"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func newEventsResponse(page rules.EventPage) eventsResponse {
	out := eventsResponse{Events: make([]eventView, 0, len(page.Events)), NextCursor: page.NextCursor}
	for _, ev := range page.Events {
		out.Events = append(out.Events, newEventView(ev))
	}
	return out
}

func newEventView(ev models.RuleAuditEvent) eventView {
	return eventView{
		ID:         ev.ID.String(),
		Mode:       ev.Mode,
		ActorID:    ev.ActorID,
		ActorRole:  ev.ActorRole,
		Before:     ev.Before,
		After:      ev.After,
		OccurredAt: ev.OccurredAt,
	}
}
