package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem snapshots the listing price at insertion. Exactly one of Quantity
// and WeightGrams is set.
type OrderItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	TownProductID uuid.UUID       `gorm:"column:town_product_id;type:uuid;not null"`
	Quantity      *int            `gorm:"column:quantity"`
	WeightGrams   *int            `gorm:"column:weight_grams"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineTotal     decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	TownProduct   *TownProduct    `gorm:"foreignKey:TownProductID"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
