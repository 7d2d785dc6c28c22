package remote

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/izahid19/ekart/internal/domain"
)

// cartEnvelope is the body every cart endpoint answers with.
type cartEnvelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Cart    *wireCart `json:"cart"`
}

type wireCart struct {
	Items      []wireItem          `json:"items"`
	TotalPrice decimal.NullDecimal `json:"totalPrice"`
}

type wireItem struct {
	ProductID productRef          `json:"productId"`
	Quantity  int                 `json:"quantity"`
	Price     decimal.NullDecimal `json:"price"`
}

// productRef decodes a cart item's productId, which the backend sends either
// as a bare id or as the populated product document.
type productRef struct {
	ID       string
	Name     string
	Price    decimal.NullDecimal
	ImageURL string
}

type productDoc struct {
	ID     string              `json:"_id"`
	Name   string              `json:"productName"`
	Price  decimal.NullDecimal `json:"productPrice"`
	Images []struct {
		URL string `json:"url"`
	} `json:"productImg"`
}

func (p *productRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = productRef{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*p = productRef{ID: id}
		return nil
	case len(data) > 0 && data[0] == '{':
		var doc productDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		*p = productRef{ID: doc.ID, Name: doc.Name, Price: doc.Price}
		if len(doc.Images) > 0 {
			p.ImageURL = doc.Images[0].URL
		}
		return nil
	default:
		return fmt.Errorf("productId: unexpected JSON %q", string(data))
	}
}

// toCart converts the wire cart into a domain cart. Lines whose product was
// deleted upstream (null productId) or carry no quantity are dropped; the
// first occurrence wins when the backend repeats a product.
func (w *wireCart) toCart() (domain.Cart, int) {
	if w == nil {
		return domain.NewCart(nil), 0
	}

	items := make([]domain.LineItem, 0, len(w.Items))
	var dropped int
	for _, wi := range w.Items {
		if wi.ProductID.ID == "" || wi.Quantity < 1 || domain.IndexOf(items, wi.ProductID.ID) >= 0 {
			dropped++
			continue
		}
		item := domain.LineItem{
			ProductID: wi.ProductID.ID,
			Quantity:  wi.Quantity,
			UnitPrice: wi.Price,
			Name:      wi.ProductID.Name,
			ImageURL:  wi.ProductID.ImageURL,
		}
		if !item.UnitPrice.Valid {
			item.UnitPrice = wi.ProductID.Price
		}
		items = append(items, item)
	}

	cart := domain.Cart{Items: items}
	cart.Recalculate()
	return cart, dropped
}

type addRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateRequest struct {
	ProductID string           `json:"productId"`
	Type      domain.Direction `json:"type"`
}

type removeRequest struct {
	ProductID string `json:"productId"`
}
