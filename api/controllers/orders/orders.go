// Package orders exposes the order lifecycle over HTTP.
package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/towndrop-backend/api/responses"
	"github.com/angelmondragon/towndrop-backend/api/validators"
	internalorders "github.com/angelmondragon/towndrop-backend/internal/orders"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
)

// OrderIDParam is the chi URL parameter carrying the order id.
const OrderIDParam = "orderId"

const maxNoteLength = 500

type createOrderRequest struct {
	TownID             uuid.UUID `json:"townId" validate:"required"`
	CustomerEmail      *string   `json:"customerEmail" validate:"omitempty,email|len=0"`
	CustomerPhone      *string   `json:"customerPhone" validate:"omitempty,max=32"`
	GoodsPaymentMethod *string   `json:"goodsPaymentMethod"`
}

type addItemRequest struct {
	TownProductID uuid.UUID `json:"townProductId" validate:"required"`
	Quantity      *int      `json:"quantity" validate:"omitempty,gte=1"`
	WeightGrams   *int      `json:"weightGrams" validate:"omitempty,gte=1"`
}

type updateOrderRequest struct {
	CustomerEmail *string            `json:"customerEmail" validate:"omitempty,email|len=0"`
	CustomerPhone *string            `json:"customerPhone" validate:"omitempty,max=32"`
	DeliveryFee   *validators.Amount `json:"deliveryFee"`
	ServiceFee    *validators.Amount `json:"serviceFee"`
}

type completeOrderRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type codCollectedRequest struct {
	Note *string `json:"note"`
}

func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalorders.CreateOrderInput{
			TownID:        req.TownID,
			CustomerEmail: req.CustomerEmail,
			CustomerPhone: req.CustomerPhone,
		}
		if req.GoodsPaymentMethod != nil {
			method := enums.PaymentMethod(*req.GoodsPaymentMethod)
			input.GoodsPaymentMethod = &method
		}

		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderView(order))
	}
}

func Get(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, OrderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

func AddItem(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, OrderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req addItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.AddItem(r.Context(), orderID, internalorders.AddItemInput{
			TownProductID: req.TownProductID,
			Quantity:      req.Quantity,
			WeightGrams:   req.WeightGrams,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderView(order))
	}
}

// Update edits contact details at any stage and fees while the order is DRAFT.
func Update(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, OrderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deliveryFee, err := validators.ParseMoney("deliveryFee", req.DeliveryFee)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		serviceFee, err := validators.ParseMoney("serviceFee", req.ServiceFee)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Update(r.Context(), orderID, internalorders.UpdateOrderInput{
			CustomerEmail: req.CustomerEmail,
			CustomerPhone: req.CustomerPhone,
			DeliveryFee:   deliveryFee,
			ServiceFee:    serviceFee,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// Confirm returns the plaintext delivery code; it is never readable again.
func Confirm(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, OrderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Confirm(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccess(w, internalorders.ConfirmView{
			OrderView:    internalorders.NewOrderView(result.Order),
			DeliveryCode: result.DeliveryCode,
		})
	}
}

func Complete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, OrderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req completeOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Complete(r.Context(), orderID, req.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.CompleteView{
			OrderView:        internalorders.NewOrderView(result.Order),
			AlreadyCompleted: result.AlreadyCompleted,
		})
	}
}

func CodCollected(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, OrderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req codCollectedRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internalorders.CodCollectedInput{}
		if req.Note != nil {
			note := validators.SanitizeString(*req.Note, maxNoteLength)
			input.Note = &note
		}
		order, err := svc.MarkCodCollected(r.Context(), orderID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}
