package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	"github.com/angelmondragon/towndrop-backend/pkg/money"
)

type CreateTownInput struct {
	Name string
}

type CreateProductInput struct {
	Name        string
	Description *string
}

// CreateTownProductInput lists a product in a town. Nil stock counters leave
// the listing untracked.
type CreateTownProductInput struct {
	TownID           uuid.UUID
	ProductID        uuid.UUID
	PricingModel     enums.PricingModel
	PricePerUnit     *decimal.Decimal
	PricePerKg       *decimal.Decimal
	StockQty         *int
	StockWeightGrams *int
	IsActive         *bool
}

// UpdateTownProductInput merges into the stored listing; nil fields keep
// their current value.
type UpdateTownProductInput struct {
	PricingModel     *enums.PricingModel
	PricePerUnit     *decimal.Decimal
	PricePerKg       *decimal.Decimal
	StockQty         *int
	StockWeightGrams *int
	IsActive         *bool
}

type TownView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

type ProductView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type TownProductView struct {
	ID               uuid.UUID          `json:"id"`
	TownID           uuid.UUID          `json:"townId"`
	ProductID        uuid.UUID          `json:"productId"`
	PricingModel     enums.PricingModel `json:"pricingModel"`
	PricePerUnit     *string            `json:"pricePerUnit"`
	PricePerKg       *string            `json:"pricePerKg"`
	StockQty         *int               `json:"stockQty"`
	StockWeightGrams *int               `json:"stockWeightGrams"`
	IsActive         bool               `json:"isActive"`
	Town             *TownView          `json:"town,omitempty"`
	Product          *ProductView       `json:"product,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

func NewTownView(town models.Town) TownView {
	return TownView{ID: town.ID, Name: town.Name, Slug: town.Slug, CreatedAt: town.CreatedAt}
}

func NewProductView(product models.Product) ProductView {
	return ProductView{ID: product.ID, Name: product.Name, Description: product.Description, CreatedAt: product.CreatedAt}
}

func NewTownProductView(listing models.TownProduct) TownProductView {
	view := TownProductView{
		ID:               listing.ID,
		TownID:           listing.TownID,
		ProductID:        listing.ProductID,
		PricingModel:     listing.PricingModel,
		PricePerUnit:     formatNull(listing.PricePerUnit),
		PricePerKg:       formatNull(listing.PricePerKg),
		StockQty:         listing.StockQty,
		StockWeightGrams: listing.StockWeightGrams,
		IsActive:         listing.IsActive,
		CreatedAt:        listing.CreatedAt,
		UpdatedAt:        listing.UpdatedAt,
	}
	if listing.Town != nil {
		town := NewTownView(*listing.Town)
		view.Town = &town
	}
	if listing.Product != nil {
		product := NewProductView(*listing.Product)
		view.Product = &product
	}
	return view
}

func formatNull(value decimal.NullDecimal) *string {
	if !value.Valid {
		return nil
	}
	formatted := money.Format(value.Decimal)
	return &formatted
}
