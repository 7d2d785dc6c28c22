package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/izahid19/ekart/pkg/logger"
)

func sessionRequest(session, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.RemoteAddr = remoteAddr
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	return req
}

func TestRateLimit_WithinBurst_Passes(t *testing.T) {
	rl := NewRateLimiter("test", 10, 10, time.Minute, logger.Discard())
	handler := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, sessionRequest("s-1", "10.0.0.1:1234"))
		assert.Equal(t, http.StatusOK, rr.Code, "request %d should pass", i+1)
	}
}

func TestRateLimit_ExceedingBurst_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter("test", 0.001, 2, time.Minute, logger.Discard())
	handler := rl.Middleware(okHandler())

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, sessionRequest("s-1", "10.0.0.1:1234"))
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "5", last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), "RATE_LIMITED")
}

func TestRateLimit_SessionsAreIndependent(t *testing.T) {
	rl := NewRateLimiter("test", 0.001, 1, time.Minute, logger.Discard())
	handler := rl.Middleware(okHandler())

	// Same IP, two storefront sessions behind one NAT.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionRequest("s-1", "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionRequest("s-2", "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionRequest("s-1", "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRateLimit_NoSession_KeysByIP(t *testing.T) {
	rl := NewRateLimiter("test", 0.001, 1, time.Minute, logger.Discard())
	handler := rl.Middleware(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionRequest("", "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionRequest("", "10.0.0.2:1234"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionRequest("", "10.0.0.1:9999"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "port must not be part of the key")
}

func TestRateLimiter_CleanupEvictsIdleKeys(t *testing.T) {
	rl := NewRateLimiter("test", 10, 10, time.Minute, logger.Discard())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.nowFunc = func() time.Time { return now }

	rl.limiter("session:a")
	now = now.Add(30 * time.Second)
	rl.limiter("session:b")
	assert.Equal(t, 2, rl.Len())

	now = now.Add(45 * time.Second)
	rl.cleanup()
	assert.Equal(t, 1, rl.Len(), "only the key idle for over a minute should go")

	now = now.Add(2 * time.Minute)
	rl.cleanup()
	assert.Equal(t, 0, rl.Len())
}

func TestRateLimiter_RunStopsWithContext(t *testing.T) {
	rl := NewRateLimiter("test", 10, 10, time.Millisecond, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"remote addr", nil, "192.168.1.7:5555", "192.168.1.7"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.1:80", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.1:80", "198.51.100.4"},
		{"garbage forwarded", map[string]string{"X-Forwarded-For": "unknown"}, "10.0.0.3:80", "10.0.0.3"},
		{"no port", nil, "10.0.0.4", "10.0.0.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
