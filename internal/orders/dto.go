package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	"github.com/angelmondragon/towndrop-backend/pkg/money"
)

// CreateOrderInput opens a DRAFT order in a town.
type CreateOrderInput struct {
	TownID             uuid.UUID
	CustomerEmail      *string
	CustomerPhone      *string
	GoodsPaymentMethod *enums.PaymentMethod
}

// AddItemInput carries exactly one of Quantity and WeightGrams.
type AddItemInput struct {
	TownProductID uuid.UUID
	Quantity      *int
	WeightGrams   *int
}

// UpdateOrderInput edits contact details and, while DRAFT, fees.
type UpdateOrderInput struct {
	CustomerEmail *string
	CustomerPhone *string
	DeliveryFee   *decimal.Decimal
	ServiceFee    *decimal.Decimal
}

func (in UpdateOrderInput) empty() bool {
	return in.CustomerEmail == nil && in.CustomerPhone == nil && in.DeliveryFee == nil && in.ServiceFee == nil
}

// CodCollectedInput records a cash hand-over.
type CodCollectedInput struct {
	Note *string
}

// ConfirmResult carries the only copy of the plaintext delivery code.
type ConfirmResult struct {
	Order                 *models.Order
	DeliveryCode          string
	DeliveryCodeExpiresAt time.Time
}

// CompleteResult reports AlreadyCompleted when the call was a replay.
type CompleteResult struct {
	Order            *models.Order
	AlreadyCompleted bool
}

// OrderView is the wire shape of an order. Money is rendered as fixed
// 2-decimal strings.
type OrderView struct {
	ID                    uuid.UUID           `json:"id"`
	TownID                uuid.UUID           `json:"townId"`
	Town                  *TownSummary        `json:"town,omitempty"`
	Status                enums.OrderStatus   `json:"status"`
	CustomerEmail         *string             `json:"customerEmail"`
	CustomerPhone         *string             `json:"customerPhone"`
	GoodsPaymentMethod    enums.PaymentMethod `json:"goodsPaymentMethod"`
	DeliveryCodeExpiresAt *time.Time          `json:"deliveryCodeExpiresAt"`
	DeliveryFee           string              `json:"deliveryFee"`
	ServiceFee            string              `json:"serviceFee"`
	ItemsSubtotal         string              `json:"itemsSubtotal"`
	Subtotal              string              `json:"subtotal"`
	PayNowTotal           string              `json:"payNowTotal"`
	PayOnDeliveryTotal    string              `json:"payOnDeliveryTotal"`
	Total                 string              `json:"total"`
	Items                 []OrderItemView     `json:"items"`
	Payments              []PaymentView       `json:"payments"`
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

type TownSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

type OrderItemView struct {
	ID            uuid.UUID          `json:"id"`
	TownProductID uuid.UUID          `json:"townProductId"`
	ProductName   string             `json:"productName,omitempty"`
	PricingModel  enums.PricingModel `json:"pricingModel,omitempty"`
	Quantity      *int               `json:"quantity"`
	WeightGrams   *int               `json:"weightGrams"`
	UnitPrice     string             `json:"unitPrice"`
	LineTotal     string             `json:"lineTotal"`
}

type PaymentView struct {
	ID                    uuid.UUID            `json:"id"`
	Purpose               enums.PaymentPurpose `json:"purpose"`
	Method                enums.PaymentMethod  `json:"method"`
	Status                enums.PaymentStatus  `json:"status"`
	Amount                string               `json:"amount"`
	Currency              string               `json:"currency"`
	Provider              string               `json:"provider"`
	ClientReference       *string              `json:"clientReference"`
	ProviderTransactionID *string              `json:"providerTransactionId"`
	UpdatedAt             time.Time            `json:"updatedAt"`
}

// ConfirmView adds the one-time delivery code to the order view.
type ConfirmView struct {
	OrderView
	DeliveryCode string `json:"deliveryCode"`
}

// CompleteView flags idempotent replays.
type CompleteView struct {
	OrderView
	AlreadyCompleted bool `json:"alreadyCompleted"`
}

// NewOrderView maps a loaded order to its wire shape.
func NewOrderView(order *models.Order) OrderView {
	view := OrderView{
		ID:                    order.ID,
		TownID:                order.TownID,
		Status:                order.Status,
		CustomerEmail:         order.CustomerEmail,
		CustomerPhone:         order.CustomerPhone,
		GoodsPaymentMethod:    order.GoodsPaymentMethod,
		DeliveryCodeExpiresAt: order.DeliveryCodeExpiresAt,
		DeliveryFee:           money.Format(order.DeliveryFee),
		ServiceFee:            money.Format(order.ServiceFee),
		ItemsSubtotal:         money.Format(order.ItemsSubtotal),
		Subtotal:              money.Format(order.Subtotal),
		PayNowTotal:           money.Format(order.PayNowTotal),
		PayOnDeliveryTotal:    money.Format(order.PayOnDeliveryTotal),
		Total:                 money.Format(order.Total),
		Items:                 make([]OrderItemView, 0, len(order.Items)),
		Payments:              make([]PaymentView, 0, len(order.Payments)),
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
	}
	if order.Town != nil {
		view.Town = &TownSummary{ID: order.Town.ID, Name: order.Town.Name, Slug: order.Town.Slug}
	}
	for _, item := range order.Items {
		itemView := OrderItemView{
			ID:            item.ID,
			TownProductID: item.TownProductID,
			Quantity:      item.Quantity,
			WeightGrams:   item.WeightGrams,
			UnitPrice:     money.Format(item.UnitPrice),
			LineTotal:     money.Format(item.LineTotal),
		}
		if item.TownProduct != nil {
			itemView.PricingModel = item.TownProduct.PricingModel
			if item.TownProduct.Product != nil {
				itemView.ProductName = item.TownProduct.Product.Name
			}
		}
		view.Items = append(view.Items, itemView)
	}
	for _, payment := range order.Payments {
		view.Payments = append(view.Payments, PaymentView{
			ID:                    payment.ID,
			Purpose:               payment.Purpose,
			Method:                payment.Method,
			Status:                payment.Status,
			Amount:                money.Format(payment.Amount),
			Currency:              payment.Currency,
			Provider:              payment.Provider,
			ClientReference:       payment.ClientReference,
			ProviderTransactionID: payment.ProviderTransactionID,
			UpdatedAt:             payment.UpdatedAt,
		})
	}
	return view
}
