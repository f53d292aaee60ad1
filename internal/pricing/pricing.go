// Package pricing quotes order lines against a town listing.
package pricing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/money"
)

// Rule identifiers reported in error details.
const (
	RuleListingInactive       = "listing_inactive"
	RuleListingTownMismatch   = "listing_town_mismatch"
	RuleUnitRequiresQuantity  = "unit_requires_quantity"
	RuleUnitForbidsWeight     = "unit_forbids_weight"
	RuleWeightRequiresGrams   = "weight_requires_grams"
	RuleWeightForbidsQuantity = "weight_forbids_quantity"
	RuleListingMissingUnit    = "listing_missing_unit_price"
	RuleListingMissingKg      = "listing_missing_kg_price"
	RuleUnsupportedModel      = "unsupported_pricing_model"
)

// Request is the quantity or weight a caller wants to add.
type Request struct {
	TownID      uuid.UUID
	Quantity    *int
	WeightGrams *int
}

// Quote is the priced line. UnitPrice is the per-unit or per-kg price.
type Quote struct {
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	Quantity    *int
	WeightGrams *int
}

// PriceItem validates req against listing and computes the line total.
func PriceItem(listing models.TownProduct, req Request) (Quote, error) {
	if !listing.IsActive {
		return Quote{}, pkgerrors.Rule(pkgerrors.CodeValidation, RuleListingInactive, "This product is not currently available in this town")
	}
	if listing.TownID != req.TownID {
		return Quote{}, pkgerrors.Rule(pkgerrors.CodeValidation, RuleListingTownMismatch, "This product is not listed for the order's town")
	}

	switch listing.PricingModel {
	case enums.PricingModelUnit:
		return priceUnit(listing, req)
	case enums.PricingModelWeight:
		return priceWeight(listing, req)
	default:
		return Quote{}, pkgerrors.Rule(pkgerrors.CodeConfiguration, RuleUnsupportedModel,
			fmt.Sprintf("Unsupported pricing model %q", listing.PricingModel))
	}
}

func priceUnit(listing models.TownProduct, req Request) (Quote, error) {
	if req.Quantity == nil || *req.Quantity < 1 {
		return Quote{}, fieldError(RuleUnitRequiresQuantity, "quantity", "UNIT items require quantity (>= 1)")
	}
	if req.WeightGrams != nil {
		return Quote{}, fieldError(RuleUnitForbidsWeight, "weightGrams", "UNIT items must not include weightGrams")
	}
	if !listing.PricePerUnit.Valid {
		return Quote{}, pkgerrors.Rule(pkgerrors.CodeConfiguration, RuleListingMissingUnit, "TownProduct is missing pricePerUnit")
	}

	unitPrice := listing.PricePerUnit.Decimal
	qty := *req.Quantity
	return Quote{
		UnitPrice: unitPrice,
		LineTotal: money.ToCurrency(unitPrice.Mul(decimal.NewFromInt(int64(qty)))),
		Quantity:  &qty,
	}, nil
}

func priceWeight(listing models.TownProduct, req Request) (Quote, error) {
	if req.WeightGrams == nil || *req.WeightGrams < 1 {
		return Quote{}, fieldError(RuleWeightRequiresGrams, "weightGrams", "WEIGHT items require weightGrams (>= 1)")
	}
	if req.Quantity != nil {
		return Quote{}, fieldError(RuleWeightForbidsQuantity, "quantity", "WEIGHT items must not include quantity")
	}
	if !listing.PricePerKg.Valid {
		return Quote{}, pkgerrors.Rule(pkgerrors.CodeConfiguration, RuleListingMissingKg, "TownProduct is missing pricePerKg")
	}

	perKg := listing.PricePerKg.Decimal
	grams := *req.WeightGrams
	return Quote{
		UnitPrice:   perKg,
		LineTotal:   money.ToCurrency(perKg.Mul(money.GramsToKg(grams))),
		WeightGrams: &grams,
	}, nil
}

func fieldError(rule, field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{
		"rule":  rule,
		"field": field,
	})
}
