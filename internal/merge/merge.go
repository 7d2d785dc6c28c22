// Package merge folds a guest cart into a server cart.
package merge

import (
	"github.com/izahid19/ekart/internal/domain"
)

// Create is one remote "add item" call the plan requires. POST /cart/add
// increments an existing line, so the same call serves both new and shared
// products.
type Create struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Plan is the set of remote mutations needed to fold a guest cart into a
// server cart plus the unified item list that should result.
type Plan struct {
	ToCreate []Create
	Result   []domain.LineItem
}

// IsNoop reports whether applying the plan changes nothing remotely.
func (p Plan) IsNoop() bool {
	return len(p.ToCreate) == 0
}

// Merge folds guest into server. Quantities for a product on both sides are
// summed, guest-only products are appended after the server items in guest
// order, and server-only items pass through unchanged. Neither input is
// modified.
func Merge(server, guest []domain.LineItem) Plan {
	guest = Coalesce(guest)
	if len(guest) == 0 {
		return Plan{ToCreate: []Create{}, Result: domain.CloneItems(server)}
	}

	result := domain.CloneItems(server)
	toCreate := make([]Create, 0, len(guest))

	for _, g := range guest {
		toCreate = append(toCreate, Create{ProductID: g.ProductID, Quantity: g.Quantity})

		if i := domain.IndexOf(result, g.ProductID); i >= 0 {
			result[i].Quantity += g.Quantity
			if !result[i].UnitPrice.Valid && g.UnitPrice.Valid {
				result[i].UnitPrice = g.UnitPrice
			}
			if result[i].Name == "" {
				result[i].Name = g.Name
			}
			continue
		}
		result = append(result, g)
	}

	return Plan{ToCreate: toCreate, Result: result}
}

// Coalesce sums quantities of duplicate product entries, keeping each
// product at the position of its first occurrence. Entries with a quantity
// below one or an empty product ID are dropped.
func Coalesce(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 {
			continue
		}
		if i := domain.IndexOf(out, item.ProductID); i >= 0 {
			out[i].Quantity += item.Quantity
			if !out[i].UnitPrice.Valid {
				out[i].UnitPrice = item.UnitPrice
			}
			continue
		}
		out = append(out, item)
	}
	return out
}
