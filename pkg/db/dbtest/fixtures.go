package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
)

// SeedTown inserts a town with a slug derived from its id.
func SeedTown(t testing.TB, db *gorm.DB, name string) models.Town {
	t.Helper()
	town := models.Town{ID: uuid.New(), Name: name}
	town.Slug = "town-" + town.ID.String()
	if err := db.Create(&town).Error; err != nil {
		t.Fatalf("seed town: %v", err)
	}
	return town
}

// SeedUnitListing lists a new product in town priced per unit. A nil stock
// leaves the listing untracked.
func SeedUnitListing(t testing.TB, db *gorm.DB, townID uuid.UUID, price string, stock *int) models.TownProduct {
	t.Helper()
	return seedListing(t, db, models.TownProduct{
		TownID:       townID,
		PricingModel: enums.PricingModelUnit,
		PricePerUnit: decimal.NewNullDecimal(decimal.RequireFromString(price)),
		StockQty:     stock,
	})
}

// SeedWeightListing lists a new product in town priced per kilogram.
func SeedWeightListing(t testing.TB, db *gorm.DB, townID uuid.UUID, perKg string, stockGrams *int) models.TownProduct {
	t.Helper()
	return seedListing(t, db, models.TownProduct{
		TownID:           townID,
		PricingModel:     enums.PricingModelWeight,
		PricePerKg:       decimal.NewNullDecimal(decimal.RequireFromString(perKg)),
		StockWeightGrams: stockGrams,
	})
}

func seedListing(t testing.TB, db *gorm.DB, listing models.TownProduct) models.TownProduct {
	t.Helper()
	product := models.Product{ID: uuid.New(), Name: "product-" + uuid.NewString()[:8]}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	listing.ID = uuid.New()
	listing.ProductID = product.ID
	listing.IsActive = true
	if err := db.Create(&listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// SeedOrder inserts order as given, filling in an id and zero totals. Status
// and method default to DRAFT and COD.
func SeedOrder(t testing.TB, db *gorm.DB, order models.Order) models.Order {
	t.Helper()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = enums.OrderStatusDraft
	}
	if order.GoodsPaymentMethod == "" {
		order.GoodsPaymentMethod = enums.PaymentMethodCOD
	}
	order.Town = nil
	order.Items = nil
	order.Payments = nil
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// SeedPayment inserts a ledger row for order.
func SeedPayment(t testing.TB, db *gorm.DB, payment models.Payment) models.Payment {
	t.Helper()
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.Purpose == "" {
		payment.Purpose = enums.PaymentPurposeCODGoods
	}
	if payment.Currency == "" {
		payment.Currency = "GHS"
	}
	if payment.Provider == "" {
		payment.Provider = "HUBTEL"
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}
