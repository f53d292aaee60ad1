// Package payments exposes goods payment initiation and status lookups.
package payments

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/towndrop-backend/api/responses"
	"github.com/angelmondragon/towndrop-backend/api/validators"
	internalpayments "github.com/angelmondragon/towndrop-backend/internal/payments"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
	"github.com/angelmondragon/towndrop-backend/pkg/money"
)

const (
	orderIDParam   = "orderId"
	maxNoteLength  = 500
	maxPhoneLength = 32
)

type payGoodsRequest struct {
	MomoPhone *string `json:"momoPhone" validate:"omitempty,max=32"`
	Note      *string `json:"note"`
}

type statusRequest struct {
	ClientReference string `json:"clientReference" validate:"required,max=128"`
}

type processorView struct {
	Configured bool `json:"configured"`
	OK         bool `json:"ok"`
}

type initiationView struct {
	OrderID          uuid.UUID           `json:"orderId"`
	PaymentID        uuid.UUID           `json:"paymentId"`
	Status           enums.PaymentStatus `json:"status"`
	Amount           string              `json:"amount"`
	Currency         string              `json:"currency"`
	Provider         string              `json:"provider"`
	ClientReference  string              `json:"clientReference"`
	PayToPhone       string              `json:"payToPhone"`
	AlreadyInitiated bool                `json:"alreadyInitiated"`
	Processor        *processorView      `json:"processor,omitempty"`
	Message          string              `json:"message"`
}

type statusView struct {
	Found                 bool                `json:"found"`
	ClientReference       string              `json:"clientReference"`
	PaymentID             *uuid.UUID          `json:"paymentId,omitempty"`
	PaymentStatus         enums.PaymentStatus `json:"paymentStatus,omitempty"`
	Method                enums.PaymentMethod `json:"method,omitempty"`
	Amount                *string             `json:"amount,omitempty"`
	Currency              string              `json:"currency,omitempty"`
	ProviderTransactionID *string             `json:"providerTransactionId,omitempty"`
	OrderID               *uuid.UUID          `json:"orderId,omitempty"`
	OrderStatus           enums.OrderStatus   `json:"orderStatus,omitempty"`
}

// PayGoods starts (or returns the already started) mobile-money goods payment
// for a fulfilled MOMO order.
func PayGoods(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req payGoodsRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalpayments.PayGoodsInput{}
		if req.MomoPhone != nil {
			phone := validators.SanitizeString(*req.MomoPhone, maxPhoneLength)
			input.MomoPhone = &phone
		}
		if req.Note != nil {
			note := validators.SanitizeString(*req.Note, maxNoteLength)
			input.Note = &note
		}

		result, err := svc.InitiateGoodsPayment(r.Context(), orderID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newInitiationView(result))
	}
}

// Status looks a payment up by the reference handed to the processor.
func Status(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.StatusByReference(r.Context(), req.ClientReference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newStatusView(result))
	}
}

func newInitiationView(result *internalpayments.InitiationResult) initiationView {
	view := initiationView{
		OrderID:          result.OrderID,
		PaymentID:        result.PaymentID,
		Status:           result.Status,
		Amount:           money.Format(result.Amount),
		Currency:         result.Currency,
		Provider:         result.Provider,
		ClientReference:  result.ClientReference,
		PayToPhone:       result.PayToPhone,
		AlreadyInitiated: result.AlreadyInitiated,
		Message:          result.Message,
	}
	if result.ProcessorConfigured != nil {
		view.Processor = &processorView{Configured: *result.ProcessorConfigured}
		if result.ProcessorOK != nil {
			view.Processor.OK = *result.ProcessorOK
		}
	}
	return view
}

func newStatusView(result *internalpayments.StatusResult) statusView {
	view := statusView{
		Found:                 result.Found,
		ClientReference:       result.ClientReference,
		PaymentID:             result.PaymentID,
		PaymentStatus:         result.PaymentStatus,
		Method:                result.Method,
		Currency:              result.Currency,
		ProviderTransactionID: result.ProviderTransactionID,
		OrderID:               result.OrderID,
		OrderStatus:           result.OrderStatus,
	}
	if result.Amount != nil {
		amount := money.Format(*result.Amount)
		view.Amount = &amount
	}
	return view
}
