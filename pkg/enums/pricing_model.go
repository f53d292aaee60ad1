package enums

import "slices"

// PricingModel decides how a town listing is quantified and priced: UNIT
// listings take integer quantities, WEIGHT listings take kilograms.
type PricingModel string

const (
	PricingModelUnit   PricingModel = "UNIT"
	PricingModelWeight PricingModel = "WEIGHT"
)

var pricingModels = []PricingModel{PricingModelUnit, PricingModelWeight}

func (m PricingModel) String() string { return string(m) }

func (m PricingModel) IsValid() bool { return slices.Contains(pricingModels, m) }

func ParsePricingModel(value string) (PricingModel, error) {
	return parseEnum("pricing model", pricingModels, value)
}
