package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbtypes "github.com/angelmondragon/towndrop-backend/pkg/db/types"
	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
)

// Repository is the payment ledger. Every write is conditional so concurrent
// callers resolve through the database instead of in-process locks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByOrderPurpose(ctx context.Context, orderID uuid.UUID, purpose enums.PaymentPurpose) (*models.Payment, error)
	FindByReference(ctx context.Context, clientReference string) (*models.Payment, error)
	FindForWebhook(ctx context.Context, clientReference, transactionID string) (*models.Payment, error)
	UpsertInitiated(ctx context.Context, payment *models.Payment) (bool, error)
	UpsertCollected(ctx context.Context, payment *models.Payment) (bool, error)
	RecordProcessorResult(ctx context.Context, id uuid.UUID, payload dbtypes.JSONB, transactionID *string) (bool, error)
	AttachProcessorResult(ctx context.Context, id uuid.UUID, payload dbtypes.JSONB, transactionID *string) error
	ApplyOutcome(ctx context.Context, id uuid.UUID, status enums.PaymentStatus, payload dbtypes.JSONB, transactionID *string) (bool, error)
	SettleOrder(ctx context.Context, orderID uuid.UUID, method enums.PaymentMethod) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Payments").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByOrderPurpose(ctx context.Context, orderID uuid.UUID, purpose enums.PaymentPurpose) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND purpose = ?", orderID, purpose).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByReference(ctx context.Context, clientReference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("client_reference = ?", clientReference).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindForWebhook matches on the correlation reference first, then on the
// provider transaction id. Empty values are ignored.
func (r *repository) FindForWebhook(ctx context.Context, clientReference, transactionID string) (*models.Payment, error) {
	clientReference = strings.TrimSpace(clientReference)
	transactionID = strings.TrimSpace(transactionID)
	if clientReference == "" && transactionID == "" {
		return nil, errors.New("client reference or transaction id required")
	}

	if clientReference != "" {
		payment, err := r.FindByReference(ctx, clientReference)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) || transactionID == "" {
			return nil, err
		}
	}

	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("provider_transaction_id = ?", transactionID).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpsertInitiated inserts the goods payment or takes over a FAILED attempt.
// A takeover forgets the old processor transaction id.
// It reports false when an INITIATED or SUCCESS row already owns the purpose.
func (r *repository) UpsertInitiated(ctx context.Context, payment *models.Payment) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: purposeConflictColumns(),
			DoUpdates: clause.Assignments(map[string]any{
				"method":                  payment.Method,
				"status":                  enums.PaymentStatusInitiated,
				"amount":                  payment.Amount,
				"provider":                payment.Provider,
				"client_reference":        payment.ClientReference,
				"provider_payload":        payment.ProviderPayload,
				"provider_transaction_id": nil,
				"updated_at":              now,
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "payments.status = ?", Vars: []any{enums.PaymentStatusFailed}},
			}},
		}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertCollected records a cash collection as SUCCESS unless the purpose is
// already SUCCESS.
func (r *repository) UpsertCollected(ctx context.Context, payment *models.Payment) (bool, error) {
	updates := map[string]any{
		"method":     payment.Method,
		"status":     enums.PaymentStatusSuccess,
		"provider":   payment.Provider,
		"updated_at": time.Now().UTC(),
	}
	if len(payment.ProviderPayload) > 0 {
		updates["provider_payload"] = payment.ProviderPayload
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   purposeConflictColumns(),
			DoUpdates: clause.Assignments(updates),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "payments.status <> ?", Vars: []any{enums.PaymentStatusSuccess}},
			}},
		}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecordProcessorResult stores the processor response on an attempt that is
// still INITIATED. A known transaction id is never overwritten. It reports
// false when the row already moved on.
func (r *repository) RecordProcessorResult(ctx context.Context, id uuid.UUID, payload dbtypes.JSONB, transactionID *string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusInitiated).
		Updates(map[string]any{
			"provider_payload":        payload,
			"provider_transaction_id": coalesceExpr(transactionID),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AttachProcessorResult nests a late processor response under
// processorResponse, leaving the payload written by the webhook in place.
func (r *repository) AttachProcessorResult(ctx context.Context, id uuid.UUID, payload dbtypes.JSONB, transactionID *string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&payment).Error
		if err != nil {
			return err
		}
		merged, err := nestPayload(payment.ProviderPayload, processorResponseKey, payload)
		if err != nil {
			return err
		}
		return tx.Model(&models.Payment{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"provider_payload":        merged,
				"provider_transaction_id": coalesceExpr(transactionID),
			}).Error
	})
}

// ApplyOutcome moves a non-SUCCESS payment to status. It reports false when
// the row is already SUCCESS.
func (r *repository) ApplyOutcome(ctx context.Context, id uuid.UUID, status enums.PaymentStatus, payload dbtypes.JSONB, transactionID *string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status <> ?", id, enums.PaymentStatusSuccess).
		Updates(map[string]any{
			"status":                  status,
			"provider_payload":        payload,
			"provider_transaction_id": coalesceExpr(transactionID),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SettleOrder moves a FULFILLED order paid by method to SETTLED.
func (r *repository) SettleOrder(ctx context.Context, orderID uuid.UUID, method enums.PaymentMethod) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND goods_payment_method = ?", orderID, enums.OrderStatusFulfilled, method).
		Updates(map[string]any{
			"status": enums.OrderStatusSettled,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func purposeConflictColumns() []clause.Column {
	return []clause.Column{{Name: "order_id"}, {Name: "purpose"}}
}

func coalesceExpr(value *string) clause.Expr {
	var arg any
	if value != nil && strings.TrimSpace(*value) != "" {
		arg = strings.TrimSpace(*value)
	}
	return gorm.Expr("COALESCE(provider_transaction_id, ?)", arg)
}

const processorResponseKey = "processorResponse"

// nestPayload sets key on the stored document. A stored value that is not a
// JSON object is kept under "payload".
func nestPayload(stored dbtypes.JSONB, key string, value dbtypes.JSONB) (dbtypes.JSONB, error) {
	doc := map[string]json.RawMessage{}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &doc); err != nil || doc == nil {
			doc = map[string]json.RawMessage{"payload": json.RawMessage(stored)}
		}
	}
	doc[key] = json.RawMessage(value)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return dbtypes.JSONB(raw), nil
}
