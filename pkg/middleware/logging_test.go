package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/izahid19/ekart/pkg/logger"
)

func TestRequestLogging_EchoesCorrelationID(t *testing.T) {
	var seen string
	handler := RequestLogging(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(CorrelationHeader, "corr-from-browser")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "corr-from-browser", seen)
	assert.Equal(t, "corr-from-browser", rr.Header().Get(CorrelationHeader))
}

func TestRequestLogging_GeneratesCorrelationID(t *testing.T) {
	handler := RequestLogging(logger.Discard())(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	assert.Len(t, rr.Header().Get(CorrelationHeader), 36)
}

func TestRequestLogging_WritesAccessLine(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogging(logger.NewWithWriter("storefront", "debug", &buf))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"data":{}}`))
		}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	req.Header.Set(SessionHeader, "sess-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "http request", out["msg"])
	assert.Equal(t, "INFO", out["level"])
	assert.EqualValues(t, 201, out["status"])
	assert.EqualValues(t, 11, out["bytes"])
	assert.Equal(t, "sess-1", out["session_id"])
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/v1/cart", http.StatusOK, slog.LevelInfo},
		{"/api/v1/cart", http.StatusUnauthorized, slog.LevelWarn},
		{"/api/v1/cart", http.StatusServiceUnavailable, slog.LevelError},
		{"/health/ready", http.StatusOK, slog.LevelDebug},
		{"/health/ready", http.StatusServiceUnavailable, slog.LevelError},
		{"/metrics", http.StatusOK, slog.LevelDebug},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levelFor(tt.path, tt.status), "%s %d", tt.path, tt.status)
	}
}

func TestRecovery_WritesErrorEnvelope(t *testing.T) {
	var buf bytes.Buffer
	handler := Recovery(logger.NewWithWriter("storefront", "info", &buf))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("nil cart")
		}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rr))
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "nil cart")
}

func TestRecovery_RepanicsOnAbortHandler(t *testing.T) {
	handler := Recovery(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestNoStore(t *testing.T) {
	rr := httptest.NewRecorder()
	NoStore(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	assert.Equal(t, "no-store, private", rr.Header().Get("Cache-Control"))
	assert.ElementsMatch(t, []string{"Authorization", SessionHeader}, rr.Header().Values("Vary"))
}
