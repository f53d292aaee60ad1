package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
)

// Repository defines persistence operations for orders and their items.
// Status changes go through conditional writes that report whether they won.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	TownExists(ctx context.Context, townID uuid.UUID) (bool, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderDetail(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindTownProduct(ctx context.Context, townProductID uuid.UUID) (*models.TownProduct, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	CreateItem(ctx context.Context, item *models.OrderItem) error
	UpdateWhereStatus(ctx context.Context, orderID uuid.UUID, allowed []enums.OrderStatus, updates map[string]any) (bool, error)
	MarkFulfilled(ctx context.Context, orderID uuid.UUID, codeHash string, now time.Time) (bool, error)
}
