// Package guestcart persists an anonymous shopper's cart under a single
// storage key.
package guestcart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/izahid19/ekart/internal/domain"
	apperrors "github.com/izahid19/ekart/pkg/errors"
)

// KeyPrefix namespaces guest cart keys in shared storage.
const KeyPrefix = "guestcart:"

// SessionKey returns the storage key for a browsing session's guest cart.
func SessionKey(sessionID string) string {
	return KeyPrefix + sessionID
}

// Backend is raw key-value storage. Get returns an error wrapping
// apperrors.ErrNotFound when the key is absent.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// storedItem is the persisted shape of one guest line:
// { "productId", "quantity", "product" }.
type storedItem struct {
	ProductID string         `json:"productId"`
	Quantity  int            `json:"quantity"`
	Product   *storedProduct `json:"product,omitempty"`
}

type storedProduct struct {
	ID     string           `json:"_id"`
	Name   string           `json:"productName,omitempty"`
	Price  *decimal.Decimal `json:"productPrice,omitempty"`
	Images []storedImage    `json:"productImg,omitempty"`
}

type storedImage struct {
	URL string `json:"url"`
}

// Store reads and writes one guest cart.
type Store struct {
	backend Backend
	key     string
	logger  *slog.Logger
}

// NewStore creates a store bound to key.
func NewStore(backend Backend, key string, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		key:     key,
		logger:  logger,
	}
}

// Key returns the storage key this store is bound to.
func (s *Store) Key() string {
	return s.key
}

// Load returns the persisted guest cart. A missing key or a record that does
// not parse yields an empty cart and a nil error; the corrupt record is
// logged and left for the next Save to overwrite. A non-nil error means the
// backend itself could not be read.
func (s *Store) Load(ctx context.Context) ([]domain.LineItem, error) {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return []domain.LineItem{}, nil
		}
		return nil, fmt.Errorf("read guest cart: %w", err)
	}

	items, err := decode(data)
	if err != nil {
		s.logger.WarnContext(ctx, "guest cart record is corrupt, treating as empty",
			slog.String("key", s.key),
			slog.String("error", apperrors.StorageCorrupt(s.key, err).Error()),
		)
		return []domain.LineItem{}, nil
	}

	return items, nil
}

// Save overwrites the persisted guest cart with items.
func (s *Store) Save(ctx context.Context, items []domain.LineItem) error {
	data, err := encode(items)
	if err != nil {
		return fmt.Errorf("marshal guest cart: %w", err)
	}

	if err := s.backend.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("write guest cart: %w", err)
	}

	return nil
}

// Clear removes the persisted guest cart entirely.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("delete guest cart: %w", err)
	}
	return nil
}

func encode(items []domain.LineItem) ([]byte, error) {
	stored := make([]storedItem, 0, len(items))
	for _, item := range items {
		si := storedItem{ProductID: item.ProductID, Quantity: item.Quantity}
		if item.UnitPrice.Valid || item.Name != "" || item.ImageURL != "" {
			p := &storedProduct{ID: item.ProductID, Name: item.Name}
			if item.UnitPrice.Valid {
				price := item.UnitPrice.Decimal
				p.Price = &price
			}
			if item.ImageURL != "" {
				p.Images = []storedImage{{URL: item.ImageURL}}
			}
			si.Product = p
		}
		stored = append(stored, si)
	}
	return json.Marshal(stored)
}

// decode parses a stored record. Lines that cannot exist (no product or a
// quantity below one) are skipped rather than failing the whole record.
func decode(data []byte) ([]domain.LineItem, error) {
	var stored []storedItem
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	items := make([]domain.LineItem, 0, len(stored))
	for _, si := range stored {
		if si.ProductID == "" || si.Quantity < 1 {
			continue
		}
		item := domain.LineItem{ProductID: si.ProductID, Quantity: si.Quantity}
		if p := si.Product; p != nil {
			item.Name = p.Name
			if p.Price != nil {
				item.UnitPrice = decimal.NewNullDecimal(*p.Price)
			}
			if len(p.Images) > 0 {
				item.ImageURL = p.Images[0].URL
			}
		}
		items = append(items, item)
	}
	return items, nil
}
