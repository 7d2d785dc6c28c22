package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/izahid19/ekart/internal/cartsync"
	"github.com/izahid19/ekart/internal/domain"
	"github.com/izahid19/ekart/internal/session"
	apperrors "github.com/izahid19/ekart/pkg/errors"
	"github.com/izahid19/ekart/pkg/httputil"
	"github.com/izahid19/ekart/pkg/logger"
	"github.com/izahid19/ekart/pkg/middleware"
	"github.com/izahid19/ekart/pkg/validator"
)

// CartHandler handles HTTP requests for the storefront cart endpoints.
type CartHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(sessions *session.Manager, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding one unit of a product.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
	Name      string `json:"name" validate:"required,max=500"`
	Price     string `json:"price" validate:"required,money"`
	ImageURL  string `json:"image_url" validate:"omitempty,url"`
}

// UpdateQuantityRequest is the JSON request body for stepping a quantity.
type UpdateQuantityRequest struct {
	Type string `json:"type" validate:"required,oneof=increase decrease"`
}

// --- Response DTOs ---

// CartResponse is the cart view rendered to the storefront.
type CartResponse struct {
	SessionID string           `json:"session_id"`
	State     cartsync.State   `json:"state"`
	Cart      domain.Cart      `json:"cart"`
	ItemCount int              `json:"item_count"`
	Breakdown domain.Breakdown `json:"breakdown"`
}

func newCartResponse(sessionID string, v cartsync.View) CartResponse {
	return CartResponse{
		SessionID: sessionID,
		State:     v.State,
		Cart:      v.Cart,
		ItemCount: v.Cart.ItemCount(),
		Breakdown: v.Breakdown,
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, ctrl, sid := h.controller(r)
	v, err := ctrl.Refresh(ctx)
	h.respond(w, r, sid, v, err)
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("price must be a decimal amount"), h.logger)
		return
	}

	ctx, ctrl, sid := h.controller(r)
	v, err := ctrl.AddItem(ctx, domain.Product{
		ID:       req.ProductID,
		Name:     req.Name,
		Price:    price,
		ImageURL: req.ImageURL,
	})
	h.respond(w, r, sid, v, err)
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("productId is required"), h.logger)
		return
	}

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	ctx, ctrl, sid := h.controller(r)
	v, err := ctrl.UpdateQuantity(ctx, productID, domain.Direction(req.Type))
	h.respond(w, r, sid, v, err)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("productId is required"), h.logger)
		return
	}

	ctx, ctrl, sid := h.controller(r)
	v, err := ctrl.RemoveItem(ctx, productID)
	h.respond(w, r, sid, v, err)
}

// Checkout handles GET /api/v1/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, ctrl, _ := h.controller(r)
	draft, err := ctrl.Checkout(ctx)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, draft)
}

// OrderPlaced handles POST /api/v1/cart/order-placed
func (h *CartHandler) OrderPlaced(w http.ResponseWriter, r *http.Request) {
	ctx, ctrl, sid := h.controller(r)
	v, err := ctrl.OrderPlaced(ctx)
	h.respond(w, r, sid, v, err)
}

// --- Helpers ---

// controller returns the session's controller and a context carrying the
// bearer token of this request. The session middleware has already
// validated the ID.
func (h *CartHandler) controller(r *http.Request) (context.Context, *cartsync.Controller, string) {
	ctx := cartsync.WithCredential(r.Context(), middleware.CredentialFromContext(r.Context()))
	sid := logger.SessionIDFromContext(ctx)
	return ctx, h.sessions.Get(sid), sid
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, sid string, v cartsync.View, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.Header().Set(middleware.SessionHeader, sid)
	httputil.WriteData(w, http.StatusOK, newCartResponse(sid, v))
}
