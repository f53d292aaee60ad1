package payments

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/towndrop-backend/pkg/db"
	"github.com/angelmondragon/towndrop-backend/pkg/db/dbtest"
	dbtypes "github.com/angelmondragon/towndrop-backend/pkg/db/types"
	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/momo"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox"
)

type fakeProcessor struct {
	mu       sync.Mutex
	requests []momo.ReceiveMoneyRequest
	result   momo.ReceiveMoneyResult
	onCall   func(req momo.ReceiveMoneyRequest)
}

func (f *fakeProcessor) ReceiveMoney(_ context.Context, req momo.ReceiveMoneyRequest) momo.ReceiveMoneyResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.onCall != nil {
		f.onCall(req)
	}
	result := f.result
	result.ClientReference = req.ClientReference
	return result
}

func (f *fakeProcessor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type harness struct {
	conn      *gorm.DB
	svc       Service
	processor *fakeProcessor
}

func newHarness(t *testing.T, result momo.ReceiveMoneyResult) harness {
	t.Helper()
	conn := dbtest.Open(t)
	processor := &fakeProcessor{result: result}
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	svc, err := NewService(NewRepository(conn), db.FromConn(conn), emitter, processor, nil, Options{
		CallbackURL: "https://api.example.test/api/v1/webhooks/momo",
	})
	require.NoError(t, err)
	return harness{conn: conn, svc: svc, processor: processor}
}

func acceptedResult() momo.ReceiveMoneyResult {
	return momo.ReceiveMoneyResult{Configured: true, OK: true, HTTPStatus: 200, TransactionID: "txn-1"}
}

func seedFulfilledMomoOrder(t *testing.T, conn *gorm.DB, phone *string) models.Order {
	t.Helper()
	town := dbtest.SeedTown(t, conn, "Kumasi")
	return dbtest.SeedOrder(t, conn, models.Order{
		TownID:             town.ID,
		Status:             enums.OrderStatusFulfilled,
		GoodsPaymentMethod: enums.PaymentMethodMOMO,
		CustomerPhone:      phone,
		ItemsSubtotal:      decimal.RequireFromString("40"),
		Subtotal:           decimal.RequireFromString("45"),
		DeliveryFee:        decimal.RequireFromString("5"),
		PayNowTotal:        decimal.RequireFromString("5"),
		PayOnDeliveryTotal: decimal.RequireFromString("40"),
		Total:              decimal.RequireFromString("45"),
	})
}

func countRows(t *testing.T, conn *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(model).Where(query, args...).Count(&count).Error)
	return count
}

func TestInitiateGoodsPaymentCreatesLedgerRowAndCallsProcessor(t *testing.T) {
	h := newHarness(t, acceptedResult())
	order := seedFulfilledMomoOrder(t, h.conn, dbtest.Ptr("0240000000"))

	result, err := h.svc.InitiateGoodsPayment(context.Background(), order.ID, PayGoodsInput{})
	require.NoError(t, err)

	assert.False(t, result.AlreadyInitiated)
	assert.Equal(t, enums.PaymentStatusInitiated, result.Status)
	assert.Equal(t, "0240000000", result.PayToPhone)
	assert.True(t, strings.HasPrefix(result.ClientReference, "goods_"))
	assert.True(t, decimal.RequireFromString("40").Equal(result.Amount))
	require.NotNil(t, result.ProcessorOK)
	assert.True(t, *result.ProcessorOK)
	assert.Equal(t, messageRequestSent, result.Message)

	require.Equal(t, 1, h.processor.calls())
	req := h.processor.requests[0]
	assert.Equal(t, "40.00", req.Amount)
	assert.Equal(t, result.ClientReference, req.ClientReference)
	assert.Equal(t, "https://api.example.test/api/v1/webhooks/momo", req.CallbackURL)

	stored, err := NewRepository(h.conn).FindByReference(context.Background(), result.ClientReference)
	require.NoError(t, err)
	assert.Equal(t, result.PaymentID, stored.ID)
	assert.Equal(t, "GHS", stored.Currency)
	assert.Equal(t, "HUBTEL", stored.Provider)
	require.NotNil(t, stored.ProviderTransactionID)
	assert.Equal(t, "txn-1", *stored.ProviderTransactionID)

	assert.EqualValues(t, 1, countRows(t, h.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentInitiated))
}

func TestInitiateGoodsPaymentTwiceKeepsOneRow(t *testing.T) {
	h := newHarness(t, acceptedResult())
	order := seedFulfilledMomoOrder(t, h.conn, dbtest.Ptr("0240000000"))
	ctx := context.Background()

	first, err := h.svc.InitiateGoodsPayment(ctx, order.ID, PayGoodsInput{})
	require.NoError(t, err)
	second, err := h.svc.InitiateGoodsPayment(ctx, order.ID, PayGoodsInput{})
	require.NoError(t, err)

	assert.True(t, second.AlreadyInitiated)
	assert.Equal(t, messageAlreadyInitiated, second.Message)
	assert.Equal(t, first.ClientReference, second.ClientReference)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Nil(t, second.ProcessorOK)
	assert.Equal(t, 1, h.processor.calls())
	assert.EqualValues(t, 1, countRows(t, h.conn, &models.Payment{}, "order_id = ?", order.ID))
}

func TestInitiateGoodsPaymentRetriesFailedAttemptWithSameReference(t *testing.T) {
	h := newHarness(t, acceptedResult())
	order := seedFulfilledMomoOrder(t, h.conn, dbtest.Ptr("0240000000"))
	failed := dbtest.SeedPayment(t, h.conn, models.Payment{
		OrderID:         order.ID,
		Method:          enums.PaymentMethodMOMO,
		Status:          enums.PaymentStatusFailed,
		Amount:          decimal.RequireFromString("40"),
		ClientReference: dbtest.Ptr("goods_1700000000000_abcdefabcdef"),
	})

	result, err := h.svc.InitiateGoodsPayment(context.Background(), order.ID, PayGoodsInput{MomoPhone: dbtest.Ptr("0551111111")})
	require.NoError(t, err)

	assert.False(t, result.AlreadyInitiated)
	assert.Equal(t, failed.ID, result.PaymentID)
	assert.Equal(t, "goods_1700000000000_abcdefabcdef", result.ClientReference)
	assert.Equal(t, "0551111111", result.PayToPhone)

	stored, err := NewRepository(h.conn).FindByID(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusInitiated, stored.Status)
	assert.EqualValues(t, 1, countRows(t, h.conn, &models.Payment{}, "order_id = ?", order.ID))
}

func TestInitiateGoodsPaymentRetryTracksNewTransactionID(t *testing.T) {
	h := newHarness(t, momo.ReceiveMoneyResult{Configured: true, OK: true, HTTPStatus: 200, TransactionID: "txn-2"})
	order := seedFulfilledMomoOrder(t, h.conn, dbtest.Ptr("0240000000"))
	failed := dbtest.SeedPayment(t, h.conn, models.Payment{
		OrderID:               order.ID,
		Method:                enums.PaymentMethodMOMO,
		Status:                enums.PaymentStatusFailed,
		Amount:                decimal.RequireFromString("40"),
		ClientReference:       dbtest.Ptr("goods_1700000000000_abcdefabcdef"),
		ProviderTransactionID: dbtest.Ptr("txn-1"),
	})
	ctx := context.Background()

	_, err := h.svc.InitiateGoodsPayment(ctx, order.ID, PayGoodsInput{})
	require.NoError(t, err)

	repo := NewRepository(h.conn)
	stored, err := repo.FindByID(ctx, failed.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ProviderTransactionID)
	assert.Equal(t, "txn-2", *stored.ProviderTransactionID)

	found, err := repo.FindForWebhook(ctx, "", "txn-2")
	require.NoError(t, err)
	assert.Equal(t, failed.ID, found.ID)

	_, err = repo.FindForWebhook(ctx, "", "txn-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestInitiateGoodsPaymentKeepsLateProcessorResult(t *testing.T) {
	h := newHarness(t, acceptedResult())
	order := seedFulfilledMomoOrder(t, h.conn, dbtest.Ptr("0240000000"))
	h.processor.onCall = func(req momo.ReceiveMoneyRequest) {
		err := h.conn.Model(&models.Payment{}).
			Where("client_reference = ?", req.ClientReference).
			Updates(map[string]any{
				"status":           enums.PaymentStatusSuccess,
				"provider_payload": `{"ResponseCode":"0000"}`,
			}).Error
		require.NoError(t, err)
	}
	ctx := context.Background()

	result, err := h.svc.InitiateGoodsPayment(ctx, order.ID, PayGoodsInput{})
	require.NoError(t, err)

	stored, err := NewRepository(h.conn).FindByID(ctx, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusSuccess, stored.Status)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(stored.ProviderPayload, &payload))
	assert.Equal(t, "0000", payload["ResponseCode"])
	require.Contains(t, payload, processorResponseKey)
	assert.Equal(t, "txn-1", payload[processorResponseKey].(map[string]any)["transactionId"])
	require.NotNil(t, stored.ProviderTransactionID)
	assert.Equal(t, "txn-1", *stored.ProviderTransactionID)
}

func TestNestPayloadWrapsNonObjectDocuments(t *testing.T) {
	merged, err := nestPayload(dbtypes.JSONB(`"raw"`), "k", dbtypes.JSONB(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"payload":"raw","k":{"a":1}}`, string(merged))

	merged, err = nestPayload(nil, "k", dbtypes.JSONB(`1`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":1}`, string(merged))
}

func TestInitiateGoodsPaymentWithoutProcessorStillRecordsAttempt(t *testing.T) {
	h := newHarness(t, momo.ReceiveMoneyResult{Configured: false, Error: "processor not configured"})
	order := seedFulfilledMomoOrder(t, h.conn, dbtest.Ptr("0240000000"))

	result, err := h.svc.InitiateGoodsPayment(context.Background(), order.ID, PayGoodsInput{})
	require.NoError(t, err)

	require.NotNil(t, result.ProcessorConfigured)
	assert.False(t, *result.ProcessorConfigured)
	assert.Equal(t, messageRequestNotSent, result.Message)

	stored, err := NewRepository(h.conn).FindByID(context.Background(), result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusInitiated, stored.Status)
	assert.Nil(t, stored.ProviderTransactionID)
	assert.Contains(t, string(stored.ProviderPayload), "processor not configured")
}

func TestInitiateGoodsPaymentGuards(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(order *models.Order)
		seed   *enums.PaymentStatus
		code   pkgerrors.Code
		rule   string
	}{
		{
			name:   "settled order",
			mutate: func(o *models.Order) { o.Status = enums.OrderStatusSettled },
			code:   pkgerrors.CodeConflict,
			rule:   RuleOrderSettled,
		},
		{
			name:   "not yet delivered",
			mutate: func(o *models.Order) { o.Status = enums.OrderStatusConfirmed },
			code:   pkgerrors.CodeStateConflict,
			rule:   RuleOrderNotFulfilled,
		},
		{
			name:   "cash order",
			mutate: func(o *models.Order) { o.GoodsPaymentMethod = enums.PaymentMethodCOD },
			code:   pkgerrors.CodeValidation,
			rule:   RuleMethodNotMomo,
		},
		{
			name:   "no phone",
			mutate: func(o *models.Order) { o.CustomerPhone = nil },
			code:   pkgerrors.CodeValidation,
			rule:   RulePhoneRequired,
		},
		{
			name:   "already paid",
			mutate: func(*models.Order) {},
			seed:   statusPtr(enums.PaymentStatusSuccess),
			code:   pkgerrors.CodeConflict,
			rule:   RulePaymentAlreadyPaid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, acceptedResult())
			town := dbtest.SeedTown(t, h.conn, "Tamale")
			order := models.Order{
				TownID:             town.ID,
				Status:             enums.OrderStatusFulfilled,
				GoodsPaymentMethod: enums.PaymentMethodMOMO,
				CustomerPhone:      dbtest.Ptr("0240000000"),
				PayOnDeliveryTotal: decimal.RequireFromString("12.50"),
			}
			tc.mutate(&order)
			order = dbtest.SeedOrder(t, h.conn, order)
			if tc.seed != nil {
				dbtest.SeedPayment(t, h.conn, models.Payment{
					OrderID: order.ID,
					Method:  enums.PaymentMethodMOMO,
					Status:  *tc.seed,
					Amount:  order.PayOnDeliveryTotal,
				})
			}

			_, err := h.svc.InitiateGoodsPayment(context.Background(), order.ID, PayGoodsInput{})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
			assert.Equal(t, tc.rule, pkgerrors.RuleOf(err))
			assert.Zero(t, h.processor.calls())
		})
	}
}

func TestStatusByReference(t *testing.T) {
	h := newHarness(t, acceptedResult())
	order := seedFulfilledMomoOrder(t, h.conn, dbtest.Ptr("0240000000"))
	ctx := context.Background()

	initiated, err := h.svc.InitiateGoodsPayment(ctx, order.ID, PayGoodsInput{})
	require.NoError(t, err)

	found, err := h.svc.StatusByReference(ctx, initiated.ClientReference)
	require.NoError(t, err)
	assert.True(t, found.Found)
	assert.Equal(t, enums.PaymentStatusInitiated, found.PaymentStatus)
	assert.Equal(t, enums.OrderStatusFulfilled, found.OrderStatus)
	require.NotNil(t, found.OrderID)
	assert.Equal(t, order.ID, *found.OrderID)

	missing, err := h.svc.StatusByReference(ctx, "goods_0_000000000000")
	require.NoError(t, err)
	assert.False(t, missing.Found)

	_, err = h.svc.StatusByReference(ctx, "  ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGenerateReferenceFormat(t *testing.T) {
	svc, err := NewService(NewRepository(nil), db.FromConn(nil), outbox.NewService(nil, nil), &fakeProcessor{}, nil, Options{})
	require.NoError(t, err)

	ref, err := svc.(*service).generateReference()
	require.NoError(t, err)
	parts := strings.Split(ref, "_")
	require.Len(t, parts, 3)
	assert.Equal(t, "goods", parts[0])
	assert.Len(t, parts[2], 12)
}

func statusPtr(status enums.PaymentStatus) *enums.PaymentStatus {
	return &status
}
