package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("FULFILLED")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusFulfilled, status)

	_, err = ParseOrderStatus("fulfilled")
	require.Error(t, err)
}

func TestOrderStatusGuards(t *testing.T) {
	assert.True(t, OrderStatusConfirmed.AcceptsFulfillment())
	assert.True(t, OrderStatusPaid.AcceptsFulfillment())
	assert.False(t, OrderStatusDraft.AcceptsFulfillment())
	assert.False(t, OrderStatusFulfilled.AcceptsFulfillment())

	assert.True(t, OrderStatusFulfilled.IsDelivered())
	assert.True(t, OrderStatusSettled.IsDelivered())
	assert.False(t, OrderStatusPaid.IsDelivered())
}

func TestPaymentEnumsValidity(t *testing.T) {
	assert.True(t, PaymentMethodMOMO.IsValid())
	assert.False(t, PaymentMethod("CARD").IsValid())
	assert.True(t, PaymentStatusSuccess.IsValid())
	assert.True(t, PaymentPurposeCODGoods.IsValid())

	model, err := ParsePricingModel("WEIGHT")
	require.NoError(t, err)
	assert.Equal(t, PricingModelWeight, model)
}

func TestPaymentStatusTransitions(t *testing.T) {
	assert.True(t, PaymentStatusInitiated.CanTransitionTo(PaymentStatusSuccess))
	assert.True(t, PaymentStatusInitiated.CanTransitionTo(PaymentStatusFailed))
	assert.True(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusInitiated))
	assert.True(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusSuccess))
	assert.False(t, PaymentStatusSuccess.CanTransitionTo(PaymentStatusFailed))
	assert.False(t, PaymentStatusInitiated.CanTransitionTo(PaymentStatusInitiated))

	assert.True(t, PaymentStatusSuccess.IsFinal())
	assert.False(t, PaymentStatusFailed.IsFinal())

	_, err := ParsePaymentStatus("success")
	assert.Error(t, err)
	status, err := ParsePaymentStatus("FAILED")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFailed, status)
}

func TestOutboxEventTypes(t *testing.T) {
	eventType, err := ParseOutboxEventType("order.settled")
	require.NoError(t, err)
	assert.Equal(t, EventOrderSettled, eventType)

	_, err = ParseOutboxAggregateType("vendor_order")
	require.Error(t, err)
}

func TestParseErrorsNameTheKind(t *testing.T) {
	_, err := ParsePaymentMethod("CARD")
	require.EqualError(t, err, `invalid payment method "CARD"`)

	_, err = ParsePaymentPurpose("DELIVERY_FEE")
	require.EqualError(t, err, `invalid payment purpose "DELIVERY_FEE"`)

	_, err = ParsePricingModel(" UNIT")
	assert.Error(t, err)
}
