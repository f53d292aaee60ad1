package orders

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/money"
)

// Totals are the cached order amounts derived from item line totals and fees.
type Totals struct {
	ItemsSubtotal      decimal.Decimal
	Subtotal           decimal.Decimal
	PayNowTotal        decimal.Decimal
	PayOnDeliveryTotal decimal.Decimal
	Total              decimal.Decimal
}

// ComputeTotals derives every cached amount at once. Fees are paid up front
// and goods on delivery, so Total always equals PayNowTotal + PayOnDeliveryTotal.
func ComputeTotals(lineTotals []decimal.Decimal, deliveryFee, serviceFee decimal.Decimal) Totals {
	items := money.ToCurrency(money.Sum(lineTotals...))
	payNow := money.ToCurrency(deliveryFee.Add(serviceFee))
	return Totals{
		ItemsSubtotal:      items,
		Subtotal:           items,
		PayNowTotal:        payNow,
		PayOnDeliveryTotal: items,
		Total:              items.Add(payNow),
	}
}

// TotalsForItems computes totals from persisted items.
func TotalsForItems(items []models.OrderItem, deliveryFee, serviceFee decimal.Decimal) Totals {
	lineTotals := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		lineTotals = append(lineTotals, item.LineTotal)
	}
	return ComputeTotals(lineTotals, deliveryFee, serviceFee)
}

// Columns returns the update set for the order row.
func (t Totals) Columns() map[string]any {
	return map[string]any{
		"items_subtotal":        t.ItemsSubtotal,
		"subtotal":              t.Subtotal,
		"pay_now_total":         t.PayNowTotal,
		"pay_on_delivery_total": t.PayOnDeliveryTotal,
		"total":                 t.Total,
	}
}
