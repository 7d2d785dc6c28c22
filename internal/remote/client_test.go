package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/izahid19/ekart/internal/domain"
	"github.com/izahid19/ekart/internal/remote/remotetest"
	apperrors "github.com/izahid19/ekart/pkg/errors"
	"github.com/izahid19/ekart/pkg/httpclient"
	"github.com/izahid19/ekart/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	hc := httpclient.New(httpclient.Config{
		Timeout:         2 * time.Second,
		MaxRetries:      1,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    2 * time.Millisecond,
		MaxConnsPerHost: 10,
	})
	cbCfg := httpclient.DefaultCircuitBreakerConfig("cart-api-" + t.Name())
	cbCfg.MinRequests = 100
	return NewClient(baseURL, httpclient.NewCircuitBreakerClient(hc, cbCfg, logger.Discard()), logger.Discard())
}

func newFakeServer(t *testing.T) *remotetest.Server {
	t.Helper()
	srv := remotetest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddProduct(
		remotetest.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(20), ImageURL: "https://img/a.png"},
		remotetest.Product{ID: "B", Name: "Mug", Price: decimal.RequireFromString("7.50")},
	)
	return srv
}

func TestGetCart_PopulatedProducts(t *testing.T) {
	srv := newFakeServer(t)
	srv.SetLines(remotetest.Line{ProductID: "A", Quantity: 2}, remotetest.Line{ProductID: "B", Quantity: 1})
	client := newTestClient(t, srv.BaseURL())

	cart, err := client.GetCart(context.Background(), remotetest.DefaultToken)

	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, "A", cart.Items[0].ProductID)
	assert.Equal(t, "Kettle", cart.Items[0].Name)
	assert.Equal(t, "https://img/a.png", cart.Items[0].ImageURL)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(20).Equal(cart.Items[0].UnitPrice.Decimal))
	assert.True(t, decimal.RequireFromString("47.50").Equal(cart.TotalPrice))
}

func TestGetCart_BareProductIDs(t *testing.T) {
	srv := newFakeServer(t)
	srv.SetPopulate(false)
	srv.SetLines(remotetest.Line{ProductID: "A", Quantity: 1}, remotetest.Line{ProductID: "unknown", Quantity: 3})
	client := newTestClient(t, srv.BaseURL())

	cart, err := client.GetCart(context.Background(), remotetest.DefaultToken)

	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.True(t, cart.Items[0].UnitPrice.Valid)
	assert.Equal(t, "unknown", cart.Items[1].ProductID)
	assert.False(t, cart.Items[1].UnitPrice.Valid)
}

func TestGetCart_EmptyAndNullCart(t *testing.T) {
	srv := newFakeServer(t)
	client := newTestClient(t, srv.BaseURL())

	cart, err := client.GetCart(context.Background(), remotetest.DefaultToken)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	nullCart := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"cart":null}`))
	}))
	defer nullCart.Close()

	cart, err = newTestClient(t, nullCart.URL).GetCart(context.Background(), "tok")
	require.NoError(t, err)
	assert.NotNil(t, cart.Items)
	assert.Empty(t, cart.Items)
}

func TestGetCart_SendsBearerCredential(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"success":true,"cart":{"items":[],"totalPrice":0}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL+"/api/v1/").GetCart(context.Background(), "opaque.token.value")

	require.NoError(t, err)
	assert.Equal(t, "Bearer opaque.token.value", gotAuth)
	assert.Equal(t, "/api/v1/cart", gotPath)
}

func TestAddItem_IncrementsExistingLine(t *testing.T) {
	srv := newFakeServer(t)
	srv.SetLines(remotetest.Line{ProductID: "A", Quantity: 1})
	client := newTestClient(t, srv.BaseURL())

	cart, err := client.AddItem(context.Background(), remotetest.DefaultToken, "A", 2)

	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)

	calls := srv.CallsTo(http.MethodPost, "/cart/add")
	require.Len(t, calls, 1)
	assert.Equal(t, "A", calls[0].ProductID)
	assert.Equal(t, 2, calls[0].Quantity)
}

func TestUpdateQuantity_SendsDirection(t *testing.T) {
	srv := newFakeServer(t)
	srv.SetLines(remotetest.Line{ProductID: "B", Quantity: 2})
	client := newTestClient(t, srv.BaseURL())

	cart, err := client.UpdateQuantity(context.Background(), remotetest.DefaultToken, "B", domain.Decrease)

	require.NoError(t, err)
	assert.Equal(t, 1, cart.Items[0].Quantity)
	calls := srv.CallsTo(http.MethodPut, "/cart/update")
	require.Len(t, calls, 1)
	assert.Equal(t, "decrease", calls[0].Type)
}

func TestRemoveItem(t *testing.T) {
	srv := newFakeServer(t)
	srv.SetLines(remotetest.Line{ProductID: "A", Quantity: 1}, remotetest.Line{ProductID: "B", Quantity: 1})
	client := newTestClient(t, srv.BaseURL())

	cart, err := client.RemoveItem(context.Background(), remotetest.DefaultToken, "A")

	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "B", cart.Items[0].ProductID)
}

func TestClient_Unauthorized(t *testing.T) {
	srv := newFakeServer(t)
	client := newTestClient(t, srv.BaseURL())

	_, err := client.GetCart(context.Background(), "wrong")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestClient_ServerErrorIsUnavailable(t *testing.T) {
	srv := newFakeServer(t)
	srv.SetUnhealthy(true)
	client := newTestClient(t, srv.BaseURL())

	_, err := client.AddItem(context.Background(), remotetest.DefaultToken, "A", 1)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Len(t, srv.CallsTo(http.MethodPost, "/cart/add"), 1, "mutations are not retried")
}

func TestClient_GetIsRetried(t *testing.T) {
	srv := newFakeServer(t)
	srv.FailNext(http.MethodGet, "/cart", "", http.StatusBadGateway, 1)
	client := newTestClient(t, srv.BaseURL())

	_, err := client.GetCart(context.Background(), remotetest.DefaultToken)

	require.NoError(t, err)
	assert.Len(t, srv.CallsTo(http.MethodGet, "/cart"), 2)
}

func TestClient_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).GetCart(context.Background(), "tok")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
}

func TestClient_SuccessFalseIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"Product not found"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).AddItem(context.Background(), "tok", "zzz", 1)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Contains(t, err.Error(), "Product not found")
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).GetCart(context.Background(), "tok")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
}

func TestClient_ContextCanceled(t *testing.T) {
	srv := newFakeServer(t)
	client := newTestClient(t, srv.BaseURL())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetCart(ctx, remotetest.DefaultToken)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, apperrors.ErrServiceUnavail))
}
