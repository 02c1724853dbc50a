package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PromotionPolicy is a dealer discount on a product timeline.
type PromotionPolicy struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID       int64           `gorm:"column:product_id;not null" json:"product_id"`
	DealerID        int64           `gorm:"column:dealer_id;not null" json:"dealer_id"`
	Description     string          `gorm:"column:description;not null" json:"description"`
	DiscountPercent decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null" json:"discount_percent"`
	ValidFrom       time.Time       `gorm:"column:valid_from;type:date;not null" json:"valid_from"`
	ValidTo         *time.Time      `gorm:"column:valid_to;type:date" json:"valid_to,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (PromotionPolicy) TableName() string { return "promotion_policies" }
