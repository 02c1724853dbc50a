package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RuleAuditEvent is written in the same transaction as the rule change it describes.
type RuleAuditEvent struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RuleKind   string          `gorm:"column:rule_kind;not null" json:"rule_kind"`
	RuleID     uuid.UUID       `gorm:"column:rule_id;type:uuid;not null" json:"rule_id"`
	ProductID  int64           `gorm:"column:product_id;not null" json:"product_id"`
	DealerID   *int64          `gorm:"column:dealer_id" json:"dealer_id,omitempty"`
	Mode       string          `gorm:"column:mode;not null" json:"mode"`
	ActorID    string          `gorm:"column:actor_id" json:"actor_id,omitempty"`
	ActorRole  string          `gorm:"column:actor_role" json:"actor_role,omitempty"`
	Before     json.RawMessage `gorm:"column:before;type:jsonb" json:"before,omitempty"`
	After      json.RawMessage `gorm:"column:after;type:jsonb;not null" json:"after"`
	OccurredAt time.Time       `gorm:"column:occurred_at;not null" json:"occurred_at"`
}

func (RuleAuditEvent) TableName() string { return "rule_audit_events" }
