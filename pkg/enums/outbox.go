package enums

import "slices"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
)

// OutboxEventType identifies the domain event carried by an outbox row.
type OutboxEventType string

const (
	EventOrderConfirmed    OutboxEventType = "order.confirmed"
	EventOrderFulfilled    OutboxEventType = "order.fulfilled"
	EventOrderSettled      OutboxEventType = "order.settled"
	EventPaymentInitiated  OutboxEventType = "payment.initiated"
	EventPaymentReconciled OutboxEventType = "payment.reconciled"
	EventCashCollected     OutboxEventType = "payment.cash_collected"
)

var (
	aggregateTypes   = []OutboxAggregateType{AggregateOrder, AggregatePayment}
	outboxEventTypes = []OutboxEventType{
		EventOrderConfirmed,
		EventOrderFulfilled,
		EventOrderSettled,
		EventPaymentInitiated,
		EventPaymentReconciled,
		EventCashCollected,
	}
)

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseEnum("aggregate type", aggregateTypes, value)
}

func (e OutboxEventType) IsValid() bool { return slices.Contains(outboxEventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseEnum("event type", outboxEventTypes, value)
}
