package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
)

// TownProductFilters narrows the listing index. Nil fields are ignored.
type TownProductFilters struct {
	TownID    *uuid.UUID
	ProductID *uuid.UUID
	IsActive  *bool
}

// Repository persists towns, products and town listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListTowns(ctx context.Context) ([]models.Town, error)
	CreateTown(ctx context.Context, town *models.Town) error
	FindTown(ctx context.Context, id uuid.UUID) (*models.Town, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListTownProducts(ctx context.Context, filters TownProductFilters) ([]models.TownProduct, error)
	FindTownProduct(ctx context.Context, id uuid.UUID) (*models.TownProduct, error)
	CreateTownProduct(ctx context.Context, listing *models.TownProduct) error
	UpdateTownProduct(ctx context.Context, id uuid.UUID, updates map[string]any) error
	DeleteTownProduct(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListTowns(ctx context.Context) ([]models.Town, error) {
	var towns []models.Town
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&towns).Error; err != nil {
		return nil, err
	}
	return towns, nil
}

func (r *repository) CreateTown(ctx context.Context, town *models.Town) error {
	return r.db.WithContext(ctx).Create(town).Error
}

func (r *repository) FindTown(ctx context.Context, id uuid.UUID) (*models.Town, error) {
	var town models.Town
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&town).Error; err != nil {
		return nil, err
	}
	return &town, nil
}

func (r *repository) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListTownProducts(ctx context.Context, filters TownProductFilters) ([]models.TownProduct, error) {
	query := r.db.WithContext(ctx).
		Preload("Town").
		Preload("Product")
	if filters.TownID != nil {
		query = query.Where("town_id = ?", *filters.TownID)
	}
	if filters.ProductID != nil {
		query = query.Where("product_id = ?", *filters.ProductID)
	}
	if filters.IsActive != nil {
		query = query.Where("is_active = ?", *filters.IsActive)
	}

	var listings []models.TownProduct
	if err := query.Order("created_at DESC, id ASC").Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *repository) FindTownProduct(ctx context.Context, id uuid.UUID) (*models.TownProduct, error) {
	var listing models.TownProduct
	err := r.db.WithContext(ctx).
		Preload("Town").
		Preload("Product").
		Where("id = ?", id).
		First(&listing).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) CreateTownProduct(ctx context.Context, listing *models.TownProduct) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) UpdateTownProduct(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.TownProduct{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) DeleteTownProduct(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.TownProduct{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
