package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalpayments "github.com/angelmondragon/towndrop-backend/internal/payments"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
)

type stubService struct {
	gotOrder uuid.UUID
	gotInput internalpayments.PayGoodsInput
	gotRef   string
	initErr  error
}

func (s *stubService) InitiateGoodsPayment(_ context.Context, orderID uuid.UUID, input internalpayments.PayGoodsInput) (*internalpayments.InitiationResult, error) {
	s.gotOrder, s.gotInput = orderID, input
	if s.initErr != nil {
		return nil, s.initErr
	}
	configured, ok := true, false
	return &internalpayments.InitiationResult{
		OrderID:             orderID,
		PaymentID:           uuid.New(),
		Status:              enums.PaymentStatusInitiated,
		Amount:              decimal.RequireFromString("42.5"),
		Currency:            "GHS",
		ClientReference:     "goods_1700000000000_abcdef123456",
		ProcessorConfigured: &configured,
		ProcessorOK:         &ok,
	}, nil
}

func (s *stubService) StatusByReference(_ context.Context, ref string) (*internalpayments.StatusResult, error) {
	s.gotRef = ref
	return &internalpayments.StatusResult{Found: false, ClientReference: ref}, nil
}

func newRouter(svc internalpayments.Service) http.Handler {
	r := chi.NewRouter()
	r.Post("/orders/{orderId}/pay-goods", PayGoods(svc, nil))
	r.Post("/payments/status", Status(svc, nil))
	return r
}

func post(h http.Handler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPayGoodsRendersProcessorFlags(t *testing.T) {
	svc := &stubService{}
	orderID := uuid.New()

	rec := post(newRouter(svc), "/orders/"+orderID.String()+"/pay-goods", `{"momoPhone":" 024\t555 0101 ","note":"gate"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, orderID, svc.gotOrder)
	require.NotNil(t, svc.gotInput.MomoPhone)
	assert.Equal(t, "024 555 0101", *svc.gotInput.MomoPhone)

	var body struct {
		Data struct {
			Amount    string `json:"amount"`
			Status    string `json:"status"`
			Processor struct {
				Configured bool `json:"configured"`
				OK         bool `json:"ok"`
			} `json:"processor"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "42.50", body.Data.Amount)
	assert.Equal(t, "INITIATED", body.Data.Status)
	assert.True(t, body.Data.Processor.Configured)
	assert.False(t, body.Data.Processor.OK)
}

func TestPayGoodsAcceptsEmptyBodyAndMapsErrors(t *testing.T) {
	svc := &stubService{initErr: pkgerrors.Rule(pkgerrors.CodeStateConflict, "order_not_fulfilled", "order must be fulfilled")}

	rec := post(newRouter(svc), "/orders/"+uuid.NewString()+"/pay-goods", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "order_not_fulfilled")
	assert.Nil(t, svc.gotInput.MomoPhone)

	rec = post(newRouter(svc), "/orders/not-a-uuid/pay-goods", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusRequiresReference(t *testing.T) {
	svc := &stubService{}
	h := newRouter(svc)

	rec := post(h, "/payments/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h, "/payments/status", `{"clientReference":"goods_1_x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "goods_1_x", svc.gotRef)
	assert.JSONEq(t, `{"data":{"found":false,"clientReference":"goods_1_x"}}`, rec.Body.String())
}
