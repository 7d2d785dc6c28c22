package domain

import (
	"github.com/shopspring/decimal"
)

// Product is the catalogue snapshot a shopper adds to the cart.
type Product struct {
	ID       string          `json:"id" validate:"required"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url,omitempty"`
}

// LineItem is one product reference plus a quantity. Quantity is always at
// least 1; a line that would drop to zero is removed instead.
type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	// UnitPrice is denormalized for guest items and may be absent on server
	// items the backend returned unpopulated.
	UnitPrice decimal.NullDecimal `json:"unit_price"`
	Name      string              `json:"name,omitempty"`
	ImageURL  string              `json:"image_url,omitempty"`
}

// NewLineItem builds a line item for the given product snapshot.
func NewLineItem(p Product, quantity int) LineItem {
	return LineItem{
		ProductID: p.ID,
		Quantity:  quantity,
		UnitPrice: decimal.NewNullDecimal(p.Price),
		Name:      p.Name,
		ImageURL:  p.ImageURL,
	}
}

// LineTotal returns unitPrice * quantity, or zero when the price is unknown.
func (li LineItem) LineTotal() decimal.Decimal {
	if !li.UnitPrice.Valid {
		return decimal.Zero
	}
	return li.UnitPrice.Decimal.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Cart is an ordered list of line items with unique product references.
// TotalPrice is a cached derivation of Items; Recalculate refreshes it.
type Cart struct {
	Items      []LineItem      `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// NewCart returns a cart over a copy of items with TotalPrice computed.
func NewCart(items []LineItem) Cart {
	c := Cart{Items: CloneItems(items)}
	c.Recalculate()
	return c
}

// Recalculate recomputes TotalPrice from the current items.
func (c *Cart) Recalculate() {
	c.TotalPrice = Subtotal(c.Items)
}

// ItemCount returns the total number of units in the cart.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// FindItemIndex returns the index of the line item for productID, or -1.
func (c *Cart) FindItemIndex(productID string) int {
	return IndexOf(c.Items, productID)
}

// Clone returns a deep copy so callers can hold a view that later
// mutations cannot reach.
func (c Cart) Clone() Cart {
	return Cart{Items: CloneItems(c.Items), TotalPrice: c.TotalPrice}
}

// IsEmpty reports whether the cart holds no line items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Subtotal sums unitPrice * quantity over items.
func Subtotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// IndexOf returns the index of the first item for productID, or -1.
func IndexOf(items []LineItem, productID string) int {
	for i := range items {
		if items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// CloneItems copies items into a fresh slice; nil stays an empty slice so
// JSON renders [] rather than null.
func CloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

// Breakdown is the derived pricing of a cart. It is never persisted.
type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Direction is the step applied by a quantity update.
type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Increase || d == Decrease
}
