package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/towndrop-backend/pkg/enums"
)

// OrderConfirmedEvent is emitted when a draft order is confirmed and a
// delivery code is issued.
type OrderConfirmedEvent struct {
	OrderID            uuid.UUID           `json:"order_id"`
	TownID             uuid.UUID           `json:"town_id"`
	GoodsPaymentMethod enums.PaymentMethod `json:"goods_payment_method"`
	GoodsTotal         string              `json:"goods_total"`
	TotalAmount        string              `json:"total_amount"`
}

// OrderFulfilledEvent is emitted once stock is reserved and the delivery code
// has been accepted.
type OrderFulfilledEvent struct {
	OrderID            uuid.UUID           `json:"order_id"`
	GoodsPaymentMethod enums.PaymentMethod `json:"goods_payment_method"`
	ItemCount          int                 `json:"item_count"`
}

// OrderSettledEvent marks goods money as received.
type OrderSettledEvent struct {
	OrderID   uuid.UUID           `json:"order_id"`
	PaymentID uuid.UUID           `json:"payment_id"`
	Method    enums.PaymentMethod `json:"method"`
	Amount    string              `json:"amount"`
}

type PaymentInitiatedEvent struct {
	PaymentID       uuid.UUID `json:"payment_id"`
	OrderID         uuid.UUID `json:"order_id"`
	ClientReference string    `json:"client_reference"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
}

type PaymentReconciledEvent struct {
	PaymentID             uuid.UUID           `json:"payment_id"`
	OrderID               uuid.UUID           `json:"order_id"`
	Status                enums.PaymentStatus `json:"status"`
	ProviderTransactionID *string             `json:"provider_transaction_id,omitempty"`
}

type CashCollectedEvent struct {
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Amount    string    `json:"amount"`
	Note      *string   `json:"note,omitempty"`
}
