package momowebhook

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/towndrop-backend/internal/payments"
	"github.com/angelmondragon/towndrop-backend/pkg/db"
	"github.com/angelmondragon/towndrop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/fieldpath"
	"github.com/angelmondragon/towndrop-backend/pkg/metrics"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox"
)

type harness struct {
	conn     *gorm.DB
	svc      *Service
	registry *prometheus.Registry
}

func newHarness(t *testing.T) harness {
	t.Helper()
	conn := dbtest.Open(t)
	registry := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Ledger:            payments.NewRepository(conn),
		TransactionRunner: db.FromConn(conn),
		Outbox:            outbox.NewService(outbox.NewRepository(conn), nil),
		Metrics:           metrics.NewPaymentMetrics(registry),
	})
	require.NoError(t, err)
	return harness{conn: conn, svc: svc, registry: registry}
}

// seed creates a delivered order and its goods payment.
func (h harness) seed(t *testing.T, method enums.PaymentMethod, orderStatus enums.OrderStatus, paymentStatus enums.PaymentStatus) (models.Order, models.Payment) {
	t.Helper()
	town := dbtest.SeedTown(t, h.conn, "Ho")
	order := dbtest.SeedOrder(t, h.conn, models.Order{
		TownID:             town.ID,
		Status:             orderStatus,
		GoodsPaymentMethod: method,
		PayOnDeliveryTotal: decimal.RequireFromString("25.00"),
	})
	ref := "goods_1700000000000_" + uuid.NewString()[:12]
	payment := dbtest.SeedPayment(t, h.conn, models.Payment{
		OrderID:         order.ID,
		Method:          method,
		Status:          paymentStatus,
		Amount:          order.PayOnDeliveryTotal,
		ClientReference: &ref,
	})
	return order, payment
}

func (h harness) orderStatus(t *testing.T, id uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.Order
	require.NoError(t, h.conn.Where("id = ?", id).First(&order).Error)
	return order.Status
}

func (h harness) payment(t *testing.T, id uuid.UUID) models.Payment {
	t.Helper()
	var payment models.Payment
	require.NoError(t, h.conn.Where("id = ?", id).First(&payment).Error)
	return payment
}

func (h harness) outcomes(t *testing.T, outcome string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "payment_webhook_outcomes_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestReconcileSuccessSettlesOrderOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, payment := h.seed(t, enums.PaymentMethodMOMO, enums.OrderStatusFulfilled, enums.PaymentStatusInitiated)
	body := []byte(fmt.Sprintf(`{"ResponseCode":"0000","Data":{"ClientReference":%q,"TransactionId":"hub-778"}}`, *payment.ClientReference))

	first, err := h.svc.Reconcile(ctx, body)
	require.NoError(t, err)
	assert.False(t, first.Replay)
	assert.True(t, first.OrderSettled)
	assert.Equal(t, enums.PaymentStatusSuccess, first.PaymentStatus)
	assert.Equal(t, enums.OrderStatusSettled, first.OrderStatus)
	require.NotNil(t, first.ProviderTransactionID)
	assert.Equal(t, "hub-778", *first.ProviderTransactionID)

	second, err := h.svc.Reconcile(ctx, body)
	require.NoError(t, err)
	assert.True(t, second.Replay)
	assert.False(t, second.OrderSettled)
	assert.Equal(t, enums.OrderStatusSettled, h.orderStatus(t, order.ID))

	var settledEvents int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderSettled).Count(&settledEvents).Error)
	assert.EqualValues(t, 1, settledEvents)
	assert.Equal(t, float64(1), h.outcomes(t, metrics.WebhookOutcomeSuccess))
	assert.Equal(t, float64(1), h.outcomes(t, metrics.WebhookOutcomeReplay))
}

func TestReconcileSuccessIsStickyAgainstLaterFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, payment := h.seed(t, enums.PaymentMethodMOMO, enums.OrderStatusFulfilled, enums.PaymentStatusInitiated)

	_, err := h.svc.Reconcile(ctx, []byte(fmt.Sprintf(`{"clientReference":%q,"status":"succeeded"}`, *payment.ClientReference)))
	require.NoError(t, err)

	result, err := h.svc.Reconcile(ctx, []byte(fmt.Sprintf(`{"clientReference":%q,"status":"FAILED","responseCode":"2001"}`, *payment.ClientReference)))
	require.NoError(t, err)
	assert.True(t, result.Replay)
	assert.Equal(t, enums.PaymentStatusSuccess, h.payment(t, payment.ID).Status)
}

func TestReconcileFailureKeepsOrderFulfilled(t *testing.T) {
	h := newHarness(t)
	order, payment := h.seed(t, enums.PaymentMethodMOMO, enums.OrderStatusFulfilled, enums.PaymentStatusInitiated)

	result, err := h.svc.Reconcile(context.Background(),
		[]byte(fmt.Sprintf(`{"Data":{"ClientReference":%q,"Status":"Declined","ResponseCode":"2001"}}`, *payment.ClientReference)))
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusFailed, result.PaymentStatus)
	assert.False(t, result.OrderSettled)
	assert.Equal(t, enums.OrderStatusFulfilled, h.orderStatus(t, order.ID))
	assert.Contains(t, string(h.payment(t, payment.ID).ProviderPayload), "Declined")
	assert.Equal(t, float64(1), h.outcomes(t, metrics.WebhookOutcomeFailed))
}

func TestReconcileMatchesByTransactionIDWithoutOverwriting(t *testing.T) {
	h := newHarness(t)
	_, payment := h.seed(t, enums.PaymentMethodMOMO, enums.OrderStatusFulfilled, enums.PaymentStatusInitiated)
	require.NoError(t, h.conn.Model(&models.Payment{}).Where("id = ?", payment.ID).
		Update("provider_transaction_id", "hub-known").Error)

	result, err := h.svc.Reconcile(context.Background(), []byte(`{"transactionId":"hub-known","status":"SUCCESS"}`))
	require.NoError(t, err)
	assert.Equal(t, payment.ID, result.PaymentID)
	require.NotNil(t, result.ProviderTransactionID)
	assert.Equal(t, "hub-known", *result.ProviderTransactionID)
}

func TestReconcileLeavesOtherOrderStatesAlone(t *testing.T) {
	h := newHarness(t)
	order, payment := h.seed(t, enums.PaymentMethodMOMO, enums.OrderStatusConfirmed, enums.PaymentStatusInitiated)

	result, err := h.svc.Reconcile(context.Background(), []byte(fmt.Sprintf(`{"ClientReference":%q,"ResponseCode":"0000"}`, *payment.ClientReference)))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusSuccess, result.PaymentStatus)
	assert.False(t, result.OrderSettled)
	assert.Equal(t, enums.OrderStatusConfirmed, h.orderStatus(t, order.ID))
}

func TestReconcileRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, cash := h.seed(t, enums.PaymentMethodCOD, enums.OrderStatusFulfilled, enums.PaymentStatusInitiated)

	_, err := h.svc.Reconcile(ctx, []byte(`[1,2,3]`))
	assert.Equal(t, RuleMalformedPayload, pkgerrors.RuleOf(err))

	_, err = h.svc.Reconcile(ctx, []byte(`{"ResponseCode":"0000"}`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, RuleMissingReference, pkgerrors.RuleOf(err))

	_, err = h.svc.Reconcile(ctx, []byte(`{"ClientReference":"goods_unknown"}`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.Reconcile(ctx, []byte(fmt.Sprintf(`{"ClientReference":%q,"ResponseCode":"0000"}`, *cash.ClientReference)))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotApplicable))
	assert.Equal(t, enums.PaymentStatusInitiated, h.payment(t, cash.ID).Status)

	assert.Equal(t, float64(4), h.outcomes(t, metrics.WebhookOutcomeRejected))
}

func TestSucceeded(t *testing.T) {
	cases := map[string]bool{
		`{"ResponseCode":"0000"}`:               true,
		`{"data":{"responseCode":"0000"}}`:      true,
		`{"Status":"Success"}`:                  true,
		`{"status":"SUCCEEDED"}`:                true,
		`{"ResponseCode":"2001","Status":"x"}`:  false,
		`{"ResponseCode":"","Status":"Failed"}`: false,
		`{}`:                                    false,
	}
	for body, want := range cases {
		doc, err := fieldpath.Decode([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, want, succeeded(doc), body)
	}
}
