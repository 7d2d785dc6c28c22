// Package remote is the storefront's client for the cart REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/izahid19/ekart/internal/domain"
	apperrors "github.com/izahid19/ekart/pkg/errors"
	"github.com/izahid19/ekart/pkg/httpclient"
)

const serviceName = "cart-api"

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "storefront_cart_api_request_duration_seconds",
		Help:    "Latency of calls to the cart API by operation and outcome.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation", "outcome"},
)

func init() {
	prometheus.MustRegister(requestDuration)
}

// Client calls the cart API on behalf of an authenticated shopper. It is
// safe for concurrent use; the credential travels with each call.
type Client struct {
	baseURL string
	http    *httpclient.CircuitBreakerClient
	logger  *slog.Logger
}

// NewClient creates a cart API client rooted at baseURL
// (for example http://localhost:8000/api/v1).
func NewClient(baseURL string, hc *httpclient.CircuitBreakerClient, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		logger:  logger,
	}
}

// GetCart fetches the shopper's server cart.
func (c *Client) GetCart(ctx context.Context, credential string) (domain.Cart, error) {
	return c.call(ctx, "get", http.MethodGet, "/cart", credential, nil)
}

// AddItem increments productID by quantity, creating the line when absent.
func (c *Client) AddItem(ctx context.Context, credential, productID string, quantity int) (domain.Cart, error) {
	return c.call(ctx, "add", http.MethodPost, "/cart/add", credential, addRequest{ProductID: productID, Quantity: quantity})
}

// UpdateQuantity moves productID's quantity one step in direction.
func (c *Client) UpdateQuantity(ctx context.Context, credential, productID string, direction domain.Direction) (domain.Cart, error) {
	return c.call(ctx, "update", http.MethodPut, "/cart/update", credential, updateRequest{ProductID: productID, Type: direction})
}

// RemoveItem deletes productID's line from the server cart.
func (c *Client) RemoveItem(ctx context.Context, credential, productID string) (domain.Cart, error) {
	return c.call(ctx, "remove", http.MethodDelete, "/cart/remove", credential, removeRequest{ProductID: productID})
}

func (c *Client) call(ctx context.Context, op, method, path, credential string, payload any) (cart domain.Cart, err error) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(op, outcome(err)).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return domain.Cart{}, httpclient.TransportError(ctx, err, serviceName)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Cart{}, httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	var env cartEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil {
		return domain.Cart{}, apperrors.ServiceUnavailable(serviceName+": malformed cart response", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request rejected"
		}
		return domain.Cart{}, apperrors.InvalidInput(serviceName + ": " + msg)
	}

	cart, dropped := env.Cart.toCart()
	if dropped > 0 {
		c.logger.WarnContext(ctx, "dropped unusable server cart lines",
			slog.String("operation", op),
			slog.Int("dropped", dropped),
		)
	}
	return cart, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperrors.ErrServiceUnavail):
		return "unavailable"
	default:
		return "error"
	}
}
