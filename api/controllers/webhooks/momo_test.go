package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	momowebhook "github.com/angelmondragon/towndrop-backend/internal/webhooks/momo"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
)

type reconcilerFunc func(context.Context, []byte) (*momowebhook.Result, error)

func (f reconcilerFunc) Reconcile(ctx context.Context, payload []byte) (*momowebhook.Result, error) {
	return f(ctx, payload)
}

func TestMomoWebhookPassesRawPayload(t *testing.T) {
	var got []byte
	svc := reconcilerFunc(func(_ context.Context, payload []byte) (*momowebhook.Result, error) {
		got = payload
		return &momowebhook.Result{
			PaymentID:     uuid.New(),
			OrderID:       uuid.New(),
			PaymentStatus: enums.PaymentStatusSuccess,
			OrderStatus:   enums.OrderStatusSettled,
			OrderSettled:  true,
		}, nil
	})

	payload := `{"ResponseCode":"0000","Data":{"ClientReference":"goods_1_a"}}`
	rec := httptest.NewRecorder()
	MomoWebhook(svc, nil)(rec, httptest.NewRequest(http.MethodPost, "/webhooks/momo", strings.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, payload, string(got))
	assert.Contains(t, rec.Body.String(), `"orderSettled":true`)
}

func TestMomoWebhookMapsReconcileErrors(t *testing.T) {
	svc := reconcilerFunc(func(context.Context, []byte) (*momowebhook.Result, error) {
		return nil, pkgerrors.Rule(pkgerrors.CodeNotFound, "payment_not_found", "payment not found")
	})

	rec := httptest.NewRecorder()
	MomoWebhook(svc, nil)(rec, httptest.NewRequest(http.MethodPost, "/webhooks/momo", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMomoWebhookWithoutService(t *testing.T) {
	rec := httptest.NewRecorder()
	MomoWebhook(nil, nil)(rec, httptest.NewRequest(http.MethodPost, "/webhooks/momo", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
