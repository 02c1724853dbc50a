package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingRule is one wholesale price on a product timeline. DealerID nil is the common price.
type PricingRule struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID int64           `gorm:"column:product_id;not null" json:"product_id"`
	DealerID  *int64          `gorm:"column:dealer_id" json:"dealer_id,omitempty"`
	Value     decimal.Decimal `gorm:"column:value;type:numeric(14,2);not null" json:"value"`
	ValidFrom time.Time       `gorm:"column:valid_from;type:date;not null" json:"valid_from"`
	ValidTo   *time.Time      `gorm:"column:valid_to;type:date" json:"valid_to,omitempty"`
	CreatedAt time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (PricingRule) TableName() string { return "pricing_rules" }
