// Package payments owns the goods payment ledger: idempotent initiation
// against the mobile-money processor and status lookups by reference.
package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/towndrop-backend/pkg/db/types"
	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
	"github.com/angelmondragon/towndrop-backend/pkg/momo"
	"github.com/angelmondragon/towndrop-backend/pkg/money"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox/payloads"
)

// Rule identifiers reported in error details.
const (
	RuleOrderSettled        = "order_already_settled"
	RuleOrderNotFulfilled   = "order_not_fulfilled"
	RuleMethodNotMomo       = "goods_method_not_momo"
	RulePhoneRequired       = "momo_phone_required"
	RulePaymentAlreadyPaid  = "payment_already_succeeded"
	RuleReferenceRequired   = "client_reference_required"
	stageInitiatedLocal     = "INITIATED_LOCAL"
	defaultProvider         = "HUBTEL"
	defaultCurrency         = "GHS"
	referencePrefix         = "goods"
	referenceRandomBytes    = 6
	messageAlreadyInitiated = "Goods payment already initiated"
	messageRequestSent      = "Goods payment initiated (processor request sent)"
	messageRequestNotSent   = "Goods payment initiated (processor not configured / request not sent)"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Processor is the outbound receive-money capability.
type Processor interface {
	ReceiveMoney(ctx context.Context, req momo.ReceiveMoneyRequest) momo.ReceiveMoneyResult
}

// Service defines goods payment operations.
type Service interface {
	InitiateGoodsPayment(ctx context.Context, orderID uuid.UUID, input PayGoodsInput) (*InitiationResult, error)
	StatusByReference(ctx context.Context, clientReference string) (*StatusResult, error)
}

// Options carries ledger defaults.
type Options struct {
	Currency    string
	Provider    string
	CallbackURL string
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	processor Processor
	logg      *logger.Logger
	opts      Options
	now       func() time.Time
	newRef    func() (string, error)
}

// NewService builds the payments service.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, processor Processor, logg *logger.Logger, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	if strings.TrimSpace(opts.Currency) == "" {
		opts.Currency = defaultCurrency
	}
	if strings.TrimSpace(opts.Provider) == "" {
		opts.Provider = defaultProvider
	}
	s := &service{
		repo:      repo,
		tx:        tx,
		outbox:    outbox,
		processor: processor,
		logg:      logg,
		opts:      opts,
		now:       time.Now,
	}
	s.newRef = s.generateReference
	return s, nil
}

func (s *service) InitiateGoodsPayment(ctx context.Context, orderID uuid.UUID, input PayGoodsInput) (*InitiationResult, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("Order not found: %s", orderID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if order.Status == enums.OrderStatusSettled {
		return nil, pkgerrors.Rule(pkgerrors.CodeConflict, RuleOrderSettled, "Order is already settled")
	}
	if order.Status != enums.OrderStatusFulfilled {
		return nil, pkgerrors.Rule(pkgerrors.CodeStateConflict, RuleOrderNotFulfilled, "Goods payment can only be initiated after delivery (FULFILLED)")
	}
	if order.GoodsPaymentMethod != enums.PaymentMethodMOMO {
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleMethodNotMomo, "This order is set to COD for goods. Use /cod-collected instead.")
	}

	payToPhone := payablePhone(input.MomoPhone, order.CustomerPhone)
	if payToPhone == "" {
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RulePhoneRequired,
			"MoMo payment requires a phone number (provide momoPhone or set customerPhone on the order)")
	}

	existing := order.PaymentFor(enums.PaymentPurposeCODGoods)
	if existing != nil {
		switch existing.Status {
		case enums.PaymentStatusSuccess:
			return nil, pkgerrors.Rule(pkgerrors.CodeConflict, RulePaymentAlreadyPaid, "Goods payment is already marked as paid")
		case enums.PaymentStatusInitiated:
			return alreadyInitiated(existing, payToPhone), nil
		}
	}

	clientReference, err := s.referenceFor(existing)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate client reference")
	}

	payment := &models.Payment{
		ID:              uuid.New(),
		OrderID:         order.ID,
		Purpose:         enums.PaymentPurposeCODGoods,
		Method:          enums.PaymentMethodMOMO,
		Status:          enums.PaymentStatusInitiated,
		Amount:          order.PayOnDeliveryTotal,
		Currency:        s.opts.Currency,
		Provider:        s.opts.Provider,
		ClientReference: &clientReference,
		ProviderPayload: dbtypes.MustJSONB(map[string]any{
			"stage":      stageInitiatedLocal,
			"payToPhone": payToPhone,
			"note":       input.Note,
		}),
	}

	applied := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpsertInitiated(ctx, payment)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert goods payment")
		}
		if !ok {
			return nil
		}
		stored, err := repo.FindByOrderPurpose(ctx, order.ID, enums.PaymentPurposeCODGoods)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload goods payment")
		}
		payment = stored
		applied = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentInitiated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Source:        "payments",
			Data: payloads.PaymentInitiatedEvent{
				PaymentID:       payment.ID,
				OrderID:         order.ID,
				ClientReference: clientReference,
				Amount:          money.Format(payment.Amount),
				Currency:        payment.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if !applied {
		// a concurrent caller initiated first
		current, err := s.repo.FindByOrderPurpose(ctx, order.ID, enums.PaymentPurposeCODGoods)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload goods payment")
		}
		if current.Status.IsFinal() {
			return nil, pkgerrors.Rule(pkgerrors.CodeConflict, RulePaymentAlreadyPaid, "Goods payment is already marked as paid")
		}
		return alreadyInitiated(current, payToPhone), nil
	}

	processorResult := s.processor.ReceiveMoney(ctx, momo.ReceiveMoneyRequest{
		Destination:     payToPhone,
		Amount:          money.Format(order.PayOnDeliveryTotal),
		ClientReference: clientReference,
		CallbackURL:     s.opts.CallbackURL,
		Description:     derefOr(input.Note, ""),
	})

	var transactionID *string
	if processorResult.TransactionID != "" {
		transactionID = &processorResult.TransactionID
	}
	// the ledger write survives even if the processor was unreachable
	processorPayload := dbtypes.MustJSONB(processorResult)
	recorded, err := s.repo.RecordProcessorResult(ctx, payment.ID, processorPayload, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record processor result")
	}
	if !recorded {
		// the webhook settled the attempt before the processor answered
		s.logg.Warn(s.logg.WithPaymentID(ctx, payment.ID.String()), "payment.processor_result_late")
		if err := s.repo.AttachProcessorResult(ctx, payment.ID, processorPayload, transactionID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach processor result")
		}
	}

	s.logPaymentInitiated(ctx, payment, processorResult)

	message := messageRequestNotSent
	if processorResult.OK {
		message = messageRequestSent
	}
	configured := processorResult.Configured
	ok := processorResult.OK
	return &InitiationResult{
		OrderID:             order.ID,
		PaymentID:           payment.ID,
		Status:              payment.Status,
		Amount:              payment.Amount,
		Currency:            payment.Currency,
		Provider:            payment.Provider,
		ClientReference:     clientReference,
		PayToPhone:          payToPhone,
		ProcessorConfigured: &configured,
		ProcessorOK:         &ok,
		Message:             message,
	}, nil
}

func (s *service) StatusByReference(ctx context.Context, clientReference string) (*StatusResult, error) {
	ref := strings.TrimSpace(clientReference)
	if ref == "" {
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleReferenceRequired, "clientReference is required")
	}

	payment, err := s.repo.FindByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &StatusResult{Found: false, ClientReference: ref}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	result := &StatusResult{
		Found:                 true,
		ClientReference:       ref,
		PaymentID:             &payment.ID,
		PaymentStatus:         payment.Status,
		Method:                payment.Method,
		Amount:                &payment.Amount,
		Currency:              payment.Currency,
		ProviderTransactionID: payment.ProviderTransactionID,
		OrderID:               &payment.OrderID,
	}
	order, err := s.repo.FindOrder(ctx, payment.OrderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order != nil {
		result.OrderStatus = order.Status
	}
	return result, nil
}

func (s *service) referenceFor(existing *models.Payment) (string, error) {
	if existing != nil && existing.ClientReference != nil && *existing.ClientReference != "" {
		return *existing.ClientReference, nil
	}
	return s.newRef()
}

// generateReference returns goods_<unix ms>_<12 hex chars>.
func (s *service) generateReference() (string, error) {
	buf := make([]byte, referenceRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%d_%s", referencePrefix, s.now().UnixMilli(), hex.EncodeToString(buf)), nil
}

func (s *service) logPaymentInitiated(ctx context.Context, payment *models.Payment, result momo.ReceiveMoneyResult) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"order_id":             payment.OrderID.String(),
		"processor_configured": result.Configured,
		"processor_ok":         result.OK,
		"processor_status":     result.HTTPStatus,
	})
	if result.Error != "" {
		logCtx = s.logg.WithField(logCtx, "processor_error", result.Error)
		s.logg.Warn(logCtx, "payment.initiated")
		return
	}
	s.logg.Info(logCtx, "payment.initiated")
}

func alreadyInitiated(payment *models.Payment, payToPhone string) *InitiationResult {
	return &InitiationResult{
		OrderID:          payment.OrderID,
		PaymentID:        payment.ID,
		Status:           payment.Status,
		Amount:           payment.Amount,
		Currency:         payment.Currency,
		Provider:         payment.Provider,
		ClientReference:  derefOr(payment.ClientReference, ""),
		PayToPhone:       payToPhone,
		AlreadyInitiated: true,
		Message:          messageAlreadyInitiated,
	}
}

func payablePhone(override, stored *string) string {
	if phone := strings.TrimSpace(derefOr(override, "")); phone != "" {
		return phone
	}
	return strings.TrimSpace(derefOr(stored, ""))
}

func derefOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}
