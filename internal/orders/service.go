// Package orders drives an order through DRAFT, CONFIRMED, FULFILLED and
// SETTLED. Every transition is a conditional write so concurrent callers on
// the same order resolve in the database.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/towndrop-backend/internal/deliverycode"
	"github.com/angelmondragon/towndrop-backend/internal/inventory"
	"github.com/angelmondragon/towndrop-backend/internal/payments"
	"github.com/angelmondragon/towndrop-backend/internal/pricing"
	dbtypes "github.com/angelmondragon/towndrop-backend/pkg/db/types"
	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
	"github.com/angelmondragon/towndrop-backend/pkg/metrics"
	"github.com/angelmondragon/towndrop-backend/pkg/money"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox/payloads"
)

// Rule identifiers reported in error details.
const (
	RuleOrderNotDraft        = "order_not_draft"
	RuleOrderNotEditable     = "order_not_editable"
	RuleFeesLocked           = "fees_locked_after_confirmation"
	RuleUpdateFieldsRequired = "update_fields_required"
	RuleNegativeFee          = "fee_must_not_be_negative"
	RuleEmptyOrder           = "order_has_no_items"
	RuleContactRequired      = "contact_required"
	RuleInvalidMethod        = "invalid_goods_payment_method"
	RuleNotAwaitingDelivery  = "order_not_awaiting_delivery"
	RuleOrderSettled         = "order_already_settled"
	RuleCodAlreadyCollected  = "cod_already_collected"
	RuleOrderNotFulfilled    = "order_not_fulfilled"
	RuleMethodNotCOD         = "goods_method_not_cod"
	codProvider              = "COD"
	eventSource              = "orders"
)

var errFulfillmentLost = errors.New("order fulfilled concurrently")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines the order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	AddItem(ctx context.Context, orderID uuid.UUID, input AddItemInput) (*models.Order, error)
	Update(ctx context.Context, orderID uuid.UUID, input UpdateOrderInput) (*models.Order, error)
	Confirm(ctx context.Context, orderID uuid.UUID) (*ConfirmResult, error)
	Complete(ctx context.Context, orderID uuid.UUID, code string) (*CompleteResult, error)
	MarkCodCollected(ctx context.Context, orderID uuid.UUID, input CodCollectedInput) (*models.Order, error)
}

type service struct {
	repo     Repository
	ledger   payments.Repository
	tx       txRunner
	outbox   outboxPublisher
	codes    *deliverycode.Authority
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	currency string
}

// NewService builds the order lifecycle service with the required dependencies.
func NewService(repo Repository, ledger payments.Repository, tx txRunner, outbox outboxPublisher, codes *deliverycode.Authority, paymentMetrics *metrics.PaymentMetrics, logg *logger.Logger, currency string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if codes == nil {
		return nil, fmt.Errorf("delivery code authority required")
	}
	if strings.TrimSpace(currency) == "" {
		currency = "GHS"
	}
	return &service{
		repo:     repo,
		ledger:   ledger,
		tx:       tx,
		outbox:   outbox,
		codes:    codes,
		metrics:  paymentMetrics,
		logg:     logg,
		currency: currency,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	method := enums.PaymentMethodCOD
	if input.GoodsPaymentMethod != nil {
		method = *input.GoodsPaymentMethod
	}
	if !method.IsValid() {
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleInvalidMethod, "goodsPaymentMethod must be COD or MOMO")
	}

	exists, err := s.repo.TownExists(ctx, input.TownID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup town")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("Town not found: %s", input.TownID))
	}

	order := &models.Order{
		ID:                 uuid.New(),
		TownID:             input.TownID,
		Status:             enums.OrderStatusDraft,
		CustomerEmail:      normalizeContact(input.CustomerEmail),
		CustomerPhone:      normalizeContact(input.CustomerPhone),
		GoodsPaymentMethod: method,
	}
	applyTotals(order, ComputeTotals(nil, decimal.Zero, decimal.Zero))
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return s.Get(ctx, order.ID)
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrderDetail(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, orderID, "load order")
	}
	return order, nil
}

func (s *service) AddItem(ctx context.Context, orderID uuid.UUID, input AddItemInput) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, orderID, "load order")
	}
	if order.Status != enums.OrderStatusDraft {
		return nil, errNotDraft("You can only add items to a DRAFT order")
	}

	listing, err := s.repo.FindTownProduct(ctx, input.TownProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("TownProduct not found: %s", input.TownProductID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load town product")
	}

	quote, err := pricing.PriceItem(*listing, pricing.Request{
		TownID:      order.TownID,
		Quantity:    input.Quantity,
		WeightGrams: input.WeightGrams,
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item := &models.OrderItem{
			ID:            uuid.New(),
			OrderID:       order.ID,
			TownProductID: listing.ID,
			Quantity:      quote.Quantity,
			WeightGrams:   quote.WeightGrams,
			UnitPrice:     quote.UnitPrice,
			LineTotal:     quote.LineTotal,
		}
		if err := repo.CreateItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order item")
		}
		current, items, err := loadWithItems(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		totals := TotalsForItems(items, current.DeliveryFee, current.ServiceFee)
		ok, err := repo.UpdateWhereStatus(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusDraft}, totals.Columns())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute totals")
		}
		if !ok {
			return errNotDraft("You can only add items to a DRAFT order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, order.ID)
}

func (s *service) Update(ctx context.Context, orderID uuid.UUID, input UpdateOrderInput) (*models.Order, error) {
	if input.empty() {
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleUpdateFieldsRequired,
			"Provide customerEmail, customerPhone, deliveryFee and/or serviceFee")
	}
	for _, fee := range []*decimal.Decimal{input.DeliveryFee, input.ServiceFee} {
		if fee != nil && fee.IsNegative() {
			return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleNegativeFee, "Fees must not be negative")
		}
	}

	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, orderID, "load order")
	}
	if order.Status != enums.OrderStatusDraft && order.Status != enums.OrderStatusConfirmed {
		return nil, pkgerrors.Rule(pkgerrors.CodeStateConflict, RuleOrderNotEditable, "Only DRAFT or CONFIRMED orders can be updated")
	}
	feesChanged := input.DeliveryFee != nil || input.ServiceFee != nil
	if feesChanged && order.Status != enums.OrderStatusDraft {
		return nil, errFeesLocked()
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{}
		if input.CustomerEmail != nil {
			updates["customer_email"] = normalizeContact(input.CustomerEmail)
		}
		if input.CustomerPhone != nil {
			updates["customer_phone"] = normalizeContact(input.CustomerPhone)
		}

		if input.CustomerEmail != nil || input.CustomerPhone != nil {
			current, err := repo.FindOrder(ctx, order.ID)
			if err != nil {
				return notFoundOr(err, order.ID, "load order")
			}
			email := contactOr(input.CustomerEmail, current.CustomerEmail)
			phone := contactOr(input.CustomerPhone, current.CustomerPhone)
			if current.Status != enums.OrderStatusDraft && email == nil && phone == nil {
				return pkgerrors.Rule(pkgerrors.CodeValidation, RuleContactRequired,
					"A confirmed order must keep an email or phone number")
			}
		}

		allowed := []enums.OrderStatus{enums.OrderStatusDraft, enums.OrderStatusConfirmed}
		if feesChanged {
			allowed = []enums.OrderStatus{enums.OrderStatusDraft}
			current, items, err := loadWithItems(ctx, repo, order.ID)
			if err != nil {
				return err
			}
			deliveryFee := feeOr(input.DeliveryFee, current.DeliveryFee)
			serviceFee := feeOr(input.ServiceFee, current.ServiceFee)
			updates["delivery_fee"] = deliveryFee
			updates["service_fee"] = serviceFee
			for column, value := range TotalsForItems(items, deliveryFee, serviceFee).Columns() {
				updates[column] = value
			}
		}

		ok, err := repo.UpdateWhereStatus(ctx, order.ID, allowed, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		if !ok {
			if feesChanged {
				return errFeesLocked()
			}
			return pkgerrors.Rule(pkgerrors.CodeStateConflict, RuleOrderNotEditable, "Only DRAFT or CONFIRMED orders can be updated")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, order.ID)
}

func (s *service) Confirm(ctx context.Context, orderID uuid.UUID) (*ConfirmResult, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, orderID, "load order")
	}
	if order.Status != enums.OrderStatusDraft {
		return nil, errNotDraft("Only DRAFT orders can be confirmed")
	}

	code, err := s.codes.Generate()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint delivery code")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, items, err := loadWithItems(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return pkgerrors.Rule(pkgerrors.CodeValidation, RuleEmptyOrder, "Cannot confirm an empty order")
		}
		if current.CustomerEmail == nil && current.CustomerPhone == nil {
			return pkgerrors.Rule(pkgerrors.CodeValidation, RuleContactRequired, "Order confirmation requires at least an email or phone number")
		}

		totals := TotalsForItems(items, current.DeliveryFee, current.ServiceFee)
		updates := totals.Columns()
		updates["status"] = enums.OrderStatusConfirmed
		updates["delivery_code_hash"] = code.Hash
		updates["delivery_code_expires_at"] = code.ExpiresAt

		ok, err := repo.UpdateWhereStatus(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusDraft}, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
		}
		if !ok {
			return errNotDraft("Only DRAFT orders can be confirmed")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Source:        eventSource,
			Data: payloads.OrderConfirmedEvent{
				OrderID:            order.ID,
				TownID:             current.TownID,
				GoodsPaymentMethod: current.GoodsPaymentMethod,
				GoodsTotal:         money.Format(totals.PayOnDeliveryTotal),
				TotalAmount:        money.Format(totals.Total),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order.ID, "order.confirmed", nil)

	confirmed, err := s.Get(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{
		Order:                 confirmed,
		DeliveryCode:          code.Plain,
		DeliveryCodeExpiresAt: code.ExpiresAt,
	}, nil
}

func (s *service) Complete(ctx context.Context, orderID uuid.UUID, code string) (*CompleteResult, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, orderID, "load order")
	}
	if order.Status.IsDelivered() {
		return s.alreadyCompleted(ctx, order.ID)
	}
	if !order.Status.AcceptsFulfillment() {
		return nil, pkgerrors.Rule(pkgerrors.CodeStateConflict, RuleNotAwaitingDelivery, "Order can only be completed from CONFIRMED or PAID")
	}

	verifyErr := s.codes.Verify(order.DeliveryCodeHash, order.DeliveryCodeExpiresAt, code)
	s.metrics.IncCodeVerification(verificationResult(verifyErr))
	if verifyErr != nil {
		return nil, verifyErr
	}

	itemCount := 0
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.MarkFulfilled(ctx, order.ID, *order.DeliveryCodeHash, s.codes.Now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfill order")
		}
		if !ok {
			return errFulfillmentLost
		}
		items, err := repo.ListItems(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		itemCount = len(items)
		if err := inventory.Reserve(ctx, tx, inventory.LinesFromItems(items)); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFulfilled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Source:        eventSource,
			Data: payloads.OrderFulfilledEvent{
				OrderID:            order.ID,
				GoodsPaymentMethod: order.GoodsPaymentMethod,
				ItemCount:          itemCount,
			},
		})
	})
	if errors.Is(err, errFulfillmentLost) {
		current, findErr := s.repo.FindOrder(ctx, order.ID)
		if findErr != nil {
			return nil, notFoundOr(findErr, order.ID, "reload order")
		}
		if current.Status.IsDelivered() {
			return s.alreadyCompleted(ctx, order.ID)
		}
		// the code expired or was replaced after the first check
		if err := s.codes.Verify(current.DeliveryCodeHash, current.DeliveryCodeExpiresAt, code); err != nil {
			return nil, err
		}
		return nil, deliverycode.ErrNotSet
	}
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order.ID, "order.fulfilled", map[string]any{"item_count": itemCount})

	fulfilled, err := s.Get(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &CompleteResult{Order: fulfilled}, nil
}

func (s *service) MarkCodCollected(ctx context.Context, orderID uuid.UUID, input CodCollectedInput) (*models.Order, error) {
	order, err := s.ledger.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, orderID, "load order")
	}
	if order.Status == enums.OrderStatusSettled {
		return nil, pkgerrors.Rule(pkgerrors.CodeConflict, RuleOrderSettled, "Order is already settled")
	}
	if existing := order.PaymentFor(enums.PaymentPurposeCODGoods); existing != nil && existing.Status.IsFinal() {
		return nil, errCodCollected()
	}
	if order.Status != enums.OrderStatusFulfilled {
		return nil, pkgerrors.Rule(pkgerrors.CodeStateConflict, RuleOrderNotFulfilled, "COD can only be collected after delivery (FULFILLED)")
	}
	if order.GoodsPaymentMethod != enums.PaymentMethodCOD {
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleMethodNotCOD, "This order is set to MOMO on delivery. Cash collection is not allowed.")
	}

	var paymentID uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		payment := &models.Payment{
			ID:       uuid.New(),
			OrderID:  order.ID,
			Purpose:  enums.PaymentPurposeCODGoods,
			Method:   enums.PaymentMethodCOD,
			Status:   enums.PaymentStatusSuccess,
			Amount:   order.PayOnDeliveryTotal,
			Currency: s.currency,
			Provider: codProvider,
			ProviderPayload: dbtypes.MustJSONB(map[string]any{
				"stage":       "COD_COLLECTED",
				"note":        input.Note,
				"collectedAt": time.Now().UTC().Format(time.RFC3339),
			}),
		}
		ok, err := ledger.UpsertCollected(ctx, payment)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cash collection")
		}
		if !ok {
			return errCodCollected()
		}
		stored, err := ledger.FindByOrderPurpose(ctx, order.ID, enums.PaymentPurposeCODGoods)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
		}
		paymentID = stored.ID

		settled, err := ledger.SettleOrder(ctx, order.ID, enums.PaymentMethodCOD)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle order")
		}
		if !settled {
			return pkgerrors.Rule(pkgerrors.CodeStateConflict, RuleOrderNotFulfilled, "COD can only be collected after delivery (FULFILLED)")
		}

		amount := money.Format(order.PayOnDeliveryTotal)
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCashCollected,
			AggregateType: enums.AggregatePayment,
			AggregateID:   stored.ID,
			Source:        eventSource,
			Data: payloads.CashCollectedEvent{
				PaymentID: stored.ID,
				OrderID:   order.ID,
				Amount:    amount,
				Note:      input.Note,
			},
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Source:        eventSource,
			Data: payloads.OrderSettledEvent{
				OrderID:   order.ID,
				PaymentID: stored.ID,
				Method:    enums.PaymentMethodCOD,
				Amount:    amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order.ID, "order.settled", map[string]any{
		"payment_id": paymentID.String(),
		"method":     enums.PaymentMethodCOD,
	})
	return s.Get(ctx, order.ID)
}

func (s *service) alreadyCompleted(ctx context.Context, orderID uuid.UUID) (*CompleteResult, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &CompleteResult{Order: order, AlreadyCompleted: true}, nil
}

func (s *service) logTransition(ctx context.Context, orderID uuid.UUID, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	if len(fields) > 0 {
		logCtx = s.logg.WithFields(logCtx, fields)
	}
	s.logg.Info(logCtx, msg)
}

func loadWithItems(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, []models.OrderItem, error) {
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, nil, notFoundOr(err, orderID, "load order")
	}
	items, err := repo.ListItems(ctx, orderID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	return order, items, nil
}

func applyTotals(order *models.Order, totals Totals) {
	order.ItemsSubtotal = totals.ItemsSubtotal
	order.Subtotal = totals.Subtotal
	order.PayNowTotal = totals.PayNowTotal
	order.PayOnDeliveryTotal = totals.PayOnDeliveryTotal
	order.Total = totals.Total
}

func verificationResult(err error) string {
	switch {
	case err == nil:
		return metrics.CodeResultVerified
	case errors.Is(err, deliverycode.ErrExpired):
		return metrics.CodeResultExpired
	case errors.Is(err, deliverycode.ErrNotSet):
		return metrics.CodeResultNotSet
	default:
		return metrics.CodeResultInvalid
	}
}

func notFoundOr(err error, orderID uuid.UUID, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("Order not found: %s", orderID))
	}
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func errNotDraft(msg string) error {
	return pkgerrors.Rule(pkgerrors.CodeStateConflict, RuleOrderNotDraft, msg)
}

func errFeesLocked() error {
	return pkgerrors.Rule(pkgerrors.CodeStateConflict, RuleFeesLocked, "Fees cannot be changed after order confirmation")
}

func errCodCollected() error {
	return pkgerrors.Rule(pkgerrors.CodeConflict, RuleCodAlreadyCollected, "COD already marked as collected")
}

// normalizeContact trims value; an empty result clears the field.
func normalizeContact(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// contactOr applies an update to a stored contact. An empty update clears it.
func contactOr(update, stored *string) *string {
	if update == nil {
		return stored
	}
	return normalizeContact(update)
}

func feeOr(value *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if value == nil {
		return fallback
	}
	return money.ToCurrency(*value)
}
