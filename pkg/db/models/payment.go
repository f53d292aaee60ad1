package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/towndrop-backend/pkg/db/types"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
)

// Payment is the ledger entry for one (order, purpose) pair.
type Payment struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	Purpose               enums.PaymentPurpose `gorm:"column:purpose;type:text;not null"`
	Method                enums.PaymentMethod  `gorm:"column:method;type:text;not null"`
	Status                enums.PaymentStatus  `gorm:"column:status;type:text;not null"`
	Amount                decimal.Decimal      `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency              string               `gorm:"column:currency;not null"`
	Provider              string               `gorm:"column:provider;not null"`
	ClientReference       *string              `gorm:"column:client_reference"`
	ProviderTransactionID *string              `gorm:"column:provider_transaction_id"`
	ProviderPayload       dbtypes.JSONB        `gorm:"column:provider_payload;type:jsonb"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
