// Package money holds the fixed-point helpers used for prices and totals.
// Amounts never pass through float64.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of fractional digits stored for every amount.
const CurrencyPlaces = 2

var gramsPerKg = decimal.NewFromInt(1000)

// Parse reads a decimal amount from its string form.
func Parse(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a decimal number", value)
	}
	return d, nil
}

// ParseNonNegative parses value and rejects negatives or sub-cent precision.
func ParseNonNegative(value string) (decimal.Decimal, error) {
	d, err := Parse(value)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q must not be negative", value)
	}
	if !d.Equal(d.Truncate(CurrencyPlaces)) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d decimal places", value, CurrencyPlaces)
	}
	return d, nil
}

// ToCurrency rounds d half away from zero to currency precision.
func ToCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// Format renders d with exactly two decimals, e.g. "120.00".
func Format(d decimal.Decimal) string {
	return d.StringFixed(CurrencyPlaces)
}

// Sum adds the given amounts; an empty input sums to zero.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// GramsToKg converts an integer weight to kilograms exactly.
func GramsToKg(grams int) decimal.Decimal {
	return decimal.NewFromInt(int64(grams)).Div(gramsPerKg)
}
