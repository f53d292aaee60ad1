package enums

import "slices"

// OrderStatus tracks where an order sits in its lifecycle. PAID is only
// reached through an external channel.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusFulfilled OrderStatus = "FULFILLED"
	OrderStatusSettled   OrderStatus = "SETTLED"
)

var orderStatuses = []OrderStatus{
	OrderStatusDraft, OrderStatusConfirmed, OrderStatusPaid, OrderStatusFulfilled, OrderStatusSettled,
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return slices.Contains(orderStatuses, s) }

func ParseOrderStatus(value string) (OrderStatus, error) {
	return parseEnum("order status", orderStatuses, value)
}

// AcceptsFulfillment reports whether an order in this status may be completed.
func (s OrderStatus) AcceptsFulfillment() bool {
	return s == OrderStatusConfirmed || s == OrderStatusPaid
}

// IsDelivered reports whether the goods have already been handed over.
func (s OrderStatus) IsDelivered() bool {
	return s == OrderStatusFulfilled || s == OrderStatusSettled
}
