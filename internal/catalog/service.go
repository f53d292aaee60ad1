// Package catalog manages towns, products and the per-town listings that
// price and stock them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/towndrop-backend/pkg/db"
	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/money"
)

// Rule identifiers reported in error details.
const (
	RuleNameRequired       = "name_required"
	RuleInvalidTownName    = "invalid_town_name"
	RuleInvalidModel       = "invalid_pricing_model"
	RuleUnitRequiresPrice  = "unit_requires_price_per_unit"
	RuleUnitForbidsKg      = "unit_forbids_price_per_kg"
	RuleWeightRequiresKg   = "weight_requires_price_per_kg"
	RuleWeightForbidsUnit  = "weight_forbids_price_per_unit"
	RuleNegativeAmount     = "amount_must_not_be_negative"
	RuleDuplicateTown      = "duplicate_town"
	RuleDuplicateListing   = "duplicate_town_product"
)

// Service defines catalog operations.
type Service interface {
	ListTowns(ctx context.Context) ([]models.Town, error)
	CreateTown(ctx context.Context, input CreateTownInput) (*models.Town, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error)
	CreateTownProduct(ctx context.Context, input CreateTownProductInput) (*models.TownProduct, error)
	ListTownProducts(ctx context.Context, filters TownProductFilters) ([]models.TownProduct, error)
	GetTownProduct(ctx context.Context, id uuid.UUID) (*models.TownProduct, error)
	UpdateTownProduct(ctx context.Context, id uuid.UUID, input UpdateTownProductInput) (*models.TownProduct, error)
	DeleteTownProduct(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
}

// NewService builds the catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListTowns(ctx context.Context) ([]models.Town, error) {
	towns, err := s.repo.ListTowns(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list towns")
	}
	return towns, nil
}

func (s *service) CreateTown(ctx context.Context, input CreateTownInput) (*models.Town, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleNameRequired, "Town name is required")
	}
	slug := Slugify(name)
	if slug == "" {
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleInvalidTownName, "Invalid town name")
	}

	town := &models.Town{ID: uuid.New(), Name: name, Slug: slug}
	if err := s.repo.CreateTown(ctx, town); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Rule(pkgerrors.CodeConflict, RuleDuplicateTown, "A town with this name already exists").
				WithDetails(map[string]any{"rule": RuleDuplicateTown, "slug": slug})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create town")
	}
	return town, nil
}

func (s *service) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return products, nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleNameRequired, "Product name is required")
	}
	product := &models.Product{ID: uuid.New(), Name: name}
	if input.Description != nil {
		if description := strings.TrimSpace(*input.Description); description != "" {
			product.Description = &description
		}
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return product, nil
}

func (s *service) CreateTownProduct(ctx context.Context, input CreateTownProductInput) (*models.TownProduct, error) {
	if !input.PricingModel.IsValid() {
		return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleInvalidModel, "pricingModel must be UNIT or WEIGHT")
	}
	if err := s.lookupTownAndProduct(ctx, input.TownID, input.ProductID); err != nil {
		return nil, err
	}

	unit := nullDecimal(input.PricePerUnit)
	kg := nullDecimal(input.PricePerKg)
	if err := enforcePricing(input.PricingModel, unit, kg); err != nil {
		return nil, err
	}
	if err := nonNegativeStock(input.StockQty, input.StockWeightGrams); err != nil {
		return nil, err
	}

	listing := &models.TownProduct{
		ID:               uuid.New(),
		TownID:           input.TownID,
		ProductID:        input.ProductID,
		PricingModel:     input.PricingModel,
		PricePerUnit:     unit,
		PricePerKg:       kg,
		StockQty:         input.StockQty,
		StockWeightGrams: input.StockWeightGrams,
		IsActive:         true,
	}
	if input.IsActive != nil {
		listing.IsActive = *input.IsActive
	}
	if err := s.repo.CreateTownProduct(ctx, listing); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Rule(pkgerrors.CodeConflict, RuleDuplicateListing, "This product is already listed for this town")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create town product")
	}
	return s.GetTownProduct(ctx, listing.ID)
}

// lookupTownAndProduct resolves both references concurrently.
func (s *service) lookupTownAndProduct(ctx context.Context, townID, productID uuid.UUID) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.repo.FindTown(gctx, townID); err != nil {
			return notFoundOr(err, fmt.Sprintf("Town not found: %s", townID), "load town")
		}
		return nil
	})
	g.Go(func() error {
		if _, err := s.repo.FindProduct(gctx, productID); err != nil {
			return notFoundOr(err, fmt.Sprintf("Product not found: %s", productID), "load product")
		}
		return nil
	})
	return g.Wait()
}

func (s *service) ListTownProducts(ctx context.Context, filters TownProductFilters) ([]models.TownProduct, error) {
	listings, err := s.repo.ListTownProducts(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list town products")
	}
	return listings, nil
}

func (s *service) GetTownProduct(ctx context.Context, id uuid.UUID) (*models.TownProduct, error) {
	listing, err := s.repo.FindTownProduct(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("TownProduct not found: %s", id), "load town product")
	}
	return listing, nil
}

func (s *service) UpdateTownProduct(ctx context.Context, id uuid.UUID, input UpdateTownProductInput) (*models.TownProduct, error) {
	existing, err := s.GetTownProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	model := existing.PricingModel
	if input.PricingModel != nil {
		if !input.PricingModel.IsValid() {
			return nil, pkgerrors.Rule(pkgerrors.CodeValidation, RuleInvalidModel, "pricingModel must be UNIT or WEIGHT")
		}
		model = *input.PricingModel
	}

	unit, kg := existing.PricePerUnit, existing.PricePerKg
	if model != existing.PricingModel {
		// switching models drops the stored price of the old model
		unit, kg = decimal.NullDecimal{}, decimal.NullDecimal{}
	}
	if input.PricePerUnit != nil {
		unit = nullDecimal(input.PricePerUnit)
	}
	if input.PricePerKg != nil {
		kg = nullDecimal(input.PricePerKg)
	}
	if err := enforcePricing(model, unit, kg); err != nil {
		return nil, err
	}
	if err := nonNegativeStock(input.StockQty, input.StockWeightGrams); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"pricing_model":  model,
		"price_per_unit": unit,
		"price_per_kg":   kg,
	}
	if input.StockQty != nil {
		updates["stock_qty"] = *input.StockQty
	}
	if input.StockWeightGrams != nil {
		updates["stock_weight_grams"] = *input.StockWeightGrams
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if err := s.repo.UpdateTownProduct(ctx, id, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update town product")
	}
	return s.GetTownProduct(ctx, id)
}

func (s *service) DeleteTownProduct(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.DeleteTownProduct(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete town product")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("TownProduct not found: %s", id))
	}
	return nil
}

// enforcePricing requires the price of the listing's model and forbids the
// other one.
func enforcePricing(model enums.PricingModel, unit, kg decimal.NullDecimal) error {
	for _, price := range []decimal.NullDecimal{unit, kg} {
		if price.Valid && price.Decimal.IsNegative() {
			return pkgerrors.Rule(pkgerrors.CodeValidation, RuleNegativeAmount, "Prices must not be negative")
		}
	}
	switch model {
	case enums.PricingModelUnit:
		if !unit.Valid {
			return pkgerrors.Rule(pkgerrors.CodeValidation, RuleUnitRequiresPrice, "pricingModel=UNIT requires pricePerUnit")
		}
		if kg.Valid {
			return pkgerrors.Rule(pkgerrors.CodeValidation, RuleUnitForbidsKg, "pricingModel=UNIT must not include pricePerKg")
		}
	case enums.PricingModelWeight:
		if !kg.Valid {
			return pkgerrors.Rule(pkgerrors.CodeValidation, RuleWeightRequiresKg, "pricingModel=WEIGHT requires pricePerKg")
		}
		if unit.Valid {
			return pkgerrors.Rule(pkgerrors.CodeValidation, RuleWeightForbidsUnit, "pricingModel=WEIGHT must not include pricePerUnit")
		}
	default:
		return pkgerrors.Rule(pkgerrors.CodeValidation, RuleInvalidModel, "pricingModel must be UNIT or WEIGHT")
	}
	return nil
}

func nonNegativeStock(values ...*int) error {
	for _, v := range values {
		if v != nil && *v < 0 {
			return pkgerrors.Rule(pkgerrors.CodeValidation, RuleNegativeAmount, "Stock must not be negative")
		}
	}
	return nil
}

func nullDecimal(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(money.ToCurrency(*value))
}

func notFoundOr(err error, message, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
