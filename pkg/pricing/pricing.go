// Package pricing computes effective line prices and cart totals. Inputs are
// assumed already validated by the cart aggregator; there are no error states.
package pricing

import "github.com/example/tableserve/pkg/models"

// Rules are the configured totals rules. Tax is computed on the subtotal only;
// the delivery fee and discount are excluded from the tax base.
type Rules struct {
	DeliveryFee float64
	TaxRate     float64
}

type Totals struct {
	Subtotal    float64 `json:"subtotal"`
	DeliveryFee float64 `json:"delivery_fee"`
	Tax         float64 `json:"tax"`
	Discount    float64 `json:"discount"`
	Total       float64 `json:"total"`
}

// UnitPrice is the variant price when a variant is selected (it replaces the
// base price, it does not add to it) plus the sum of addon prices.
func UnitPrice(item *models.MenuItem, variant *models.Variant, addons []models.Addon) float64 {
	price := item.BasePrice
	if variant != nil {
		price = variant.Price
	}
	for _, addon := range addons {
		price += addon.Price
	}
	return price
}

func LineTotal(line models.CartLine) float64 {
	return line.UnitPrice * float64(line.Quantity)
}

// CartTotals folds the lines into totals. discount is a non-positive
// adjustment; the grand total is floored at zero.
func CartTotals(lines []models.CartLine, rules Rules, discount float64) Totals {
	var subtotal float64
	for _, line := range lines {
		subtotal += LineTotal(line)
	}
	if discount > 0 {
		discount = -discount
	}

	t := Totals{
		Subtotal:    subtotal,
		DeliveryFee: rules.DeliveryFee,
		Tax:         subtotal * rules.TaxRate,
		Discount:    discount,
	}
	t.Total = t.Subtotal + t.DeliveryFee + t.Tax + t.Discount
	if t.Total < 0 {
		t.Total = 0
	}
	return t
}
