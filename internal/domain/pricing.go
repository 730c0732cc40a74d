package domain

import "github.com/shopspring/decimal"

// PricingBreakdown captures the monetary results of pricing a cart against live catalog prices.
type PricingBreakdown struct {
	Currency     string
	Subtotal     decimal.Decimal
	DiscountBase decimal.Decimal
	Discount     decimal.Decimal
	DeliveryFee  decimal.Decimal
	Total        decimal.Decimal
	Items        []ItemPricingBreakdown
	Promotion    *Promotion
}

// Totals projects the breakdown onto the snapshot stored on an order.
func (b PricingBreakdown) Totals() OrderTotals {
	return OrderTotals{
		Subtotal:    b.Subtotal,
		Discount:    b.Discount,
		DeliveryFee: b.DeliveryFee,
		Total:       b.Total,
	}
}

// ItemPricingBreakdown stores per-line pricing computed from the server-side price.
type ItemPricingBreakdown struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
	Discounted  bool
}
