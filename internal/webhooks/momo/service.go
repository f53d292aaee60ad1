// Package momowebhook reconciles processor payment notifications against the
// goods payment ledger and settles the order on success.
package momowebhook

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/towndrop-backend/internal/payments"
	dbtypes "github.com/angelmondragon/towndrop-backend/pkg/db/types"
	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/fieldpath"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
	"github.com/angelmondragon/towndrop-backend/pkg/metrics"
	"github.com/angelmondragon/towndrop-backend/pkg/money"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox/payloads"
)

// ResponseCodeOK is the processor's documented success code.
const ResponseCodeOK = "0000"

// Rule identifiers reported in error details.
const (
	RuleMalformedPayload = "webhook_payload_malformed"
	RuleMissingReference = "webhook_reference_missing"
	RuleNotApplicable    = "webhook_not_applicable"
	eventSource          = "momo-webhook"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	Ledger            payments.Repository
	TransactionRunner txRunner
	Outbox            outboxPublisher
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
}

type Service struct {
	ledger   payments.Repository
	txRunner txRunner
	outbox   outboxPublisher
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

// Result describes the ledger and order after a notification. Replay is set
// when the payment was already SUCCESS and nothing changed.
type Result struct {
	PaymentID             uuid.UUID           `json:"paymentId"`
	OrderID               uuid.UUID           `json:"orderId"`
	ClientReference       *string             `json:"clientReference"`
	ProviderTransactionID *string             `json:"providerTransactionId"`
	PaymentStatus         enums.PaymentStatus `json:"paymentStatus"`
	OrderStatus           enums.OrderStatus   `json:"orderStatus"`
	OrderSettled          bool                `json:"orderSettled"`
	Replay                bool                `json:"idempotentReplay"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	return &Service{
		ledger:   params.Ledger,
		txRunner: params.TransactionRunner,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Reconcile applies one notification. Field names are probed through the
// alias tables in fieldpath.
func (s *Service) Reconcile(ctx context.Context, payload []byte) (*Result, error) {
	doc, err := fieldpath.Decode(payload)
	if err != nil {
		s.metrics.IncWebhookOutcome(metrics.WebhookOutcomeRejected)
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleMalformedPayload, "Webhook payload must be a JSON object")
	}

	clientReference, _ := doc.String(fieldpath.ClientReference)
	transactionID, _ := doc.String(fieldpath.TransactionID)
	if clientReference == "" && transactionID == "" {
		s.metrics.IncWebhookOutcome(metrics.WebhookOutcomeRejected)
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleMissingReference, "Webhook payload missing clientReference/transactionId")
	}

	payment, err := s.ledger.FindForWebhook(ctx, clientReference, transactionID)
	if err != nil {
		s.metrics.IncWebhookOutcome(metrics.WebhookOutcomeRejected)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Payment not found for webhook").
				WithDetails(map[string]any{"clientReference": clientReference, "transactionId": transactionID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	if payment.Method != enums.PaymentMethodMOMO || payment.Purpose != enums.PaymentPurposeCODGoods {
		s.metrics.IncWebhookOutcome(metrics.WebhookOutcomeRejected)
		return nil, pkgerrors.Rule(pkgerrors.CodeNotApplicable, RuleNotApplicable, "Webhook is not applicable to this payment")
	}

	if payment.Status.IsFinal() {
		return s.replay(ctx, payment.ID)
	}

	status := enums.PaymentStatusFailed
	if succeeded(doc) {
		status = enums.PaymentStatusSuccess
	}
	var txIDPtr *string
	if transactionID != "" {
		txIDPtr = &transactionID
	}

	applied := false
	settled := false
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		ok, err := ledger.ApplyOutcome(ctx, payment.ID, status, dbtypes.JSONB(payload), txIDPtr)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment outcome")
		}
		if !ok {
			return nil
		}
		applied = true

		stored, err := ledger.FindByID(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentReconciled,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Source:        eventSource,
			Data: payloads.PaymentReconciledEvent{
				PaymentID:             payment.ID,
				OrderID:               payment.OrderID,
				Status:                status,
				ProviderTransactionID: stored.ProviderTransactionID,
			},
		}); err != nil {
			return err
		}
		if status != enums.PaymentStatusSuccess {
			return nil
		}

		settled, err = ledger.SettleOrder(ctx, payment.OrderID, enums.PaymentMethodMOMO)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle order")
		}
		if !settled {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   payment.OrderID,
			Source:        eventSource,
			Data: payloads.OrderSettledEvent{
				OrderID:   payment.OrderID,
				PaymentID: payment.ID,
				Method:    enums.PaymentMethodMOMO,
				Amount:    money.Format(stored.Amount),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// a concurrent delivery already recorded SUCCESS
		return s.replay(ctx, payment.ID)
	}

	outcome := metrics.WebhookOutcomeFailed
	if status == enums.PaymentStatusSuccess {
		outcome = metrics.WebhookOutcomeSuccess
	}
	s.metrics.IncWebhookOutcome(outcome)

	result, err := s.snapshot(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	result.OrderSettled = settled
	s.logReconciled(ctx, result)
	return result, nil
}

func (s *Service) replay(ctx context.Context, paymentID uuid.UUID) (*Result, error) {
	s.metrics.IncWebhookOutcome(metrics.WebhookOutcomeReplay)
	result, err := s.snapshot(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	result.Replay = true
	return result, nil
}

func (s *Service) snapshot(ctx context.Context, paymentID uuid.UUID) (*Result, error) {
	payment, err := s.ledger.FindByID(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	order, err := s.ledger.FindOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	return resultFor(payment, order), nil
}

func (s *Service) logReconciled(ctx context.Context, result *Result) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithPaymentID(ctx, result.PaymentID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"order_id":       result.OrderID.String(),
		"payment_status": result.PaymentStatus,
		"order_status":   result.OrderStatus,
		"order_settled":  result.OrderSettled,
	})
	s.logg.Info(logCtx, "payment.reconciled")
}

func resultFor(payment *models.Payment, order *models.Order) *Result {
	return &Result{
		PaymentID:             payment.ID,
		OrderID:               payment.OrderID,
		ClientReference:       payment.ClientReference,
		ProviderTransactionID: payment.ProviderTransactionID,
		PaymentStatus:         payment.Status,
		OrderStatus:           order.Status,
	}
}

// succeeded reports whether the processor signalled success through either
// the response code or the status text.
func succeeded(doc fieldpath.Document) bool {
	if code, ok := doc.String(fieldpath.ResponseCode); ok && code == ResponseCodeOK {
		return true
	}
	status, ok := doc.String(fieldpath.Status)
	if !ok {
		return false
	}
	return strings.EqualFold(status, "SUCCESS") || strings.EqualFold(status, "SUCCEEDED")
}
