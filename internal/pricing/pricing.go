// Package pricing derives subtotal, shipping, tax and total for a cart.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/izahid19/ekart/internal/domain"
)

// Default policy values used by the storefront.
var (
	DefaultFreeShippingThreshold = decimal.NewFromInt(50)
	DefaultFlatShippingFee       = decimal.NewFromInt(10)
	DefaultTaxRate               = decimal.RequireFromString("0.05")
)

// taxPlaces is the number of decimal places tax is rounded to.
const taxPlaces = 2

// Policy holds the fixed rates a Calculator applies.
type Policy struct {
	// FreeShippingThreshold: shipping is waived when the subtotal is strictly
	// greater than this amount.
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	TaxRate               decimal.Decimal
}

// DefaultPolicy returns free shipping over 50, a flat fee of 10 and 5% tax.
func DefaultPolicy() Policy {
	return Policy{
		FreeShippingThreshold: DefaultFreeShippingThreshold,
		FlatShippingFee:       DefaultFlatShippingFee,
		TaxRate:               DefaultTaxRate,
	}
}

// Validate rejects negative rates.
func (p Policy) Validate() error {
	if p.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("free shipping threshold must not be negative: %s", p.FreeShippingThreshold)
	}
	if p.FlatShippingFee.IsNegative() {
		return fmt.Errorf("flat shipping fee must not be negative: %s", p.FlatShippingFee)
	}
	if p.TaxRate.IsNegative() {
		return fmt.Errorf("tax rate must not be negative: %s", p.TaxRate)
	}
	return nil
}

// Calculator computes pricing breakdowns under a fixed policy.
type Calculator struct {
	policy Policy
}

// NewCalculator creates a calculator for the given policy.
func NewCalculator(policy Policy) *Calculator {
	return &Calculator{policy: policy}
}

// Policy returns the policy the calculator applies.
func (c *Calculator) Policy() Policy {
	return c.policy
}

// Compute derives the breakdown for items. An empty cart still pays the flat
// shipping fee.
func (c *Calculator) Compute(items []domain.LineItem) domain.Breakdown {
	subtotal := domain.Subtotal(items)
	shipping := c.Shipping(subtotal)
	tax := c.Tax(subtotal)

	return domain.Breakdown{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}
}

// Shipping returns zero above the free-shipping threshold and the flat fee
// otherwise. The threshold itself is not free.
func (c *Calculator) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(c.policy.FreeShippingThreshold) {
		return decimal.Zero
	}
	return c.policy.FlatShippingFee
}

// Tax returns subtotal * rate rounded half-up to two places. Money is never
// negative here, so Round's half-away-from-zero is half-up.
func (c *Calculator) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(c.policy.TaxRate).Round(taxPlaces)
}
