// Package inventory decrements town listing stock when an order is handed over.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
)

const (
	RuleNoItems           = "order_has_no_items"
	RuleInsufficientStock = "insufficient_stock"
)

// Line is the stock consumed by one order item. Exactly one of Quantity and
// WeightGrams is set.
type Line struct {
	TownProductID uuid.UUID
	Quantity      *int
	WeightGrams   *int
}

// LinesFromItems maps order items to reservation lines.
func LinesFromItems(items []models.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{
			TownProductID: item.TownProductID,
			Quantity:      item.Quantity,
			WeightGrams:   item.WeightGrams,
		})
	}
	return lines
}

// Reserve applies one conditional decrement per line on tx. Untracked (NULL)
// counters are left alone. The first decrement that cannot be satisfied aborts
// with CodeInsufficientStock; callers must roll back tx so earlier decrements
// are discarded.
func Reserve(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if len(lines) == 0 {
		return pkgerrors.Rule(pkgerrors.CodeValidation, RuleNoItems, "Cannot fulfil an order with no items")
	}

	for _, line := range lines {
		column, amount, err := counterFor(line)
		if err != nil {
			return err
		}
		if err := decrement(ctx, tx, line.TownProductID, column, amount); err != nil {
			return err
		}
	}
	return nil
}

func counterFor(line Line) (string, int, error) {
	switch {
	case line.Quantity != nil && line.WeightGrams == nil:
		return "stock_qty", *line.Quantity, nil
	case line.WeightGrams != nil && line.Quantity == nil:
		return "stock_weight_grams", *line.WeightGrams, nil
	default:
		return "", 0, pkgerrors.New(pkgerrors.CodeValidation, "order item must carry exactly one of quantity or weightGrams").
			WithDetails(map[string]any{"townProductId": line.TownProductID.String()})
	}
}

func decrement(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, column string, amount int) error {
	var listing models.TownProduct
	err := tx.WithContext(ctx).
		Select("id", "stock_qty", "stock_weight_grams").
		Where("id = ?", listingID).
		Take(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("TownProduct not found: %s", listingID))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing stock")
	}
	if !tracked(listing, column) {
		return nil
	}

	res := tx.WithContext(ctx).
		Model(&models.TownProduct{}).
		Where("id = ? AND "+column+" IS NOT NULL AND "+column+" >= ?", listingID, amount).
		UpdateColumn(column, gorm.Expr(column+" - ?", amount))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement listing stock")
	}
	if res.RowsAffected != 1 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("Insufficient stock for townProduct %s", listingID)).
			WithDetails(map[string]any{
				"rule":          RuleInsufficientStock,
				"townProductId": listingID.String(),
			})
	}
	return nil
}

func tracked(listing models.TownProduct, column string) bool {
	if column == "stock_qty" {
		return listing.StockQty != nil
	}
	return listing.StockWeightGrams != nil
}
