package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/towndrop-backend/pkg/enums"
)

// Order is the aggregate root of the fulfillment lifecycle. The totals are
// cached projections of the items and fees and are always written together.
type Order struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TownID                uuid.UUID           `gorm:"column:town_id;type:uuid;not null"`
	Status                enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	CustomerEmail         *string             `gorm:"column:customer_email"`
	CustomerPhone         *string             `gorm:"column:customer_phone"`
	GoodsPaymentMethod    enums.PaymentMethod `gorm:"column:goods_payment_method;type:text;not null"`
	DeliveryCodeHash      *string             `gorm:"column:delivery_code_hash"`
	DeliveryCodeExpiresAt *time.Time          `gorm:"column:delivery_code_expires_at"`
	DeliveryFee           decimal.Decimal     `gorm:"column:delivery_fee;type:numeric(12,2);not null"`
	ServiceFee            decimal.Decimal     `gorm:"column:service_fee;type:numeric(12,2);not null"`
	ItemsSubtotal         decimal.Decimal     `gorm:"column:items_subtotal;type:numeric(12,2);not null"`
	Subtotal              decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	PayNowTotal           decimal.Decimal     `gorm:"column:pay_now_total;type:numeric(12,2);not null"`
	PayOnDeliveryTotal    decimal.Decimal     `gorm:"column:pay_on_delivery_total;type:numeric(12,2);not null"`
	Total                 decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	Town                  *Town               `gorm:"foreignKey:TownID"`
	Items                 []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments              []Payment           `gorm:"foreignKey:OrderID"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentFor returns the ledger entry for purpose, if loaded.
func (o *Order) PaymentFor(purpose enums.PaymentPurpose) *Payment {
	if o == nil {
		return nil
	}
	for i := range o.Payments {
		if o.Payments[i].Purpose == purpose {
			return &o.Payments[i]
		}
	}
	return nil
}
