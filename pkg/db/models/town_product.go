package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/towndrop-backend/pkg/enums"
)

// TownProduct is a product's price and stock configuration inside one town.
// A nil stock counter means the listing is not stock tracked.
type TownProduct struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TownID           uuid.UUID           `gorm:"column:town_id;type:uuid;not null"`
	ProductID        uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	PricingModel     enums.PricingModel  `gorm:"column:pricing_model;type:text;not null"`
	PricePerUnit     decimal.NullDecimal `gorm:"column:price_per_unit;type:numeric(12,2)"`
	PricePerKg       decimal.NullDecimal `gorm:"column:price_per_kg;type:numeric(12,2)"`
	StockQty         *int                `gorm:"column:stock_qty"`
	StockWeightGrams *int                `gorm:"column:stock_weight_grams"`
	IsActive         bool                `gorm:"column:is_active;not null"`
	Town             *Town               `gorm:"foreignKey:TownID"`
	Product          *Product            `gorm:"foreignKey:ProductID"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
