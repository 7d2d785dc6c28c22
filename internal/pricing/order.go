package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/izahid19/ekart/internal/domain"
)

// DefaultCurrency is the currency the storefront quotes orders in.
const DefaultCurrency = "INR"

// OrderLine is one product/quantity pair of an order request.
type OrderLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderDraft is the payload the storefront submits to create an order:
// the cart lines plus the priced amounts shown to the shopper.
type OrderDraft struct {
	Products []OrderLine     `json:"products"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// BuildOrderDraft prices items and packages them as an order request.
func (c *Calculator) BuildOrderDraft(items []domain.LineItem, currency string) OrderDraft {
	if currency == "" {
		currency = DefaultCurrency
	}
	b := c.Compute(items)

	lines := make([]OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	return OrderDraft{
		Products: lines,
		Tax:      b.Tax,
		Shipping: b.Shipping,
		Amount:   b.Total,
		Currency: currency,
	}
}
