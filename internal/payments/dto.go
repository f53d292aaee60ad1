package payments

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/towndrop-backend/pkg/enums"
)

// PayGoodsInput optionally overrides the order phone.
type PayGoodsInput struct {
	MomoPhone *string
	Note      *string
}

// InitiationResult describes the goods payment after an initiation call.
// Processor flags are nil when no processor call was made.
type InitiationResult struct {
	OrderID             uuid.UUID
	PaymentID           uuid.UUID
	Status              enums.PaymentStatus
	Amount              decimal.Decimal
	Currency            string
	Provider            string
	ClientReference     string
	PayToPhone          string
	AlreadyInitiated    bool
	ProcessorConfigured *bool
	ProcessorOK         *bool
	Message             string
}

// StatusResult answers a lookup by correlation reference.
type StatusResult struct {
	Found                 bool
	ClientReference       string
	PaymentID             *uuid.UUID
	PaymentStatus         enums.PaymentStatus
	Method                enums.PaymentMethod
	Amount                *decimal.Decimal
	Currency              string
	ProviderTransactionID *string
	OrderID               *uuid.UUID
	OrderStatus           enums.OrderStatus
}
