package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(retries int) Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxRetries:      retries,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    5 * time.Millisecond,
		MaxConnsPerHost: 10,
		UserAgent:       DefaultUserAgent,
	}
}

// statusSequence answers each request with the next status, repeating the
// last one, and counts attempts.
func statusSequence(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(attempts.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.WriteHeader(statuses[n])
	}))
	t.Cleanup(srv.Close)
	return srv, &attempts
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 50, cfg.MaxConnsPerHost)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
}

func TestDo_RetryPolicy(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		statuses     []int
		wantStatus   int
		wantAttempts int32
	}{
		{"get recovers after 503s", http.MethodGet, []int{503, 503, 200}, 200, 3},
		{"get gives up after max retries", http.MethodGet, []int{502}, 502, 3},
		{"get does not retry 501", http.MethodGet, []int{501, 200}, 501, 1},
		{"get does not retry 4xx", http.MethodGet, []int{401, 200}, 401, 1},
		{"post is never replayed", http.MethodPost, []int{503, 200}, 503, 1},
		{"put is never replayed", http.MethodPut, []int{503, 200}, 503, 1},
		{"delete is never replayed", http.MethodDelete, []int{503, 200}, 503, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, attempts := statusSequence(t, tt.statuses...)
			client := New(fastRetryConfig(2))

			req, err := http.NewRequest(tt.method, srv.URL+"/cart", strings.NewReader(`{"productId":"p-1"}`))
			require.NoError(t, err)

			resp, err := client.Do(context.Background(), req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantAttempts, attempts.Load())
		})
	}
}

func TestDo_SetsUserAgent(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.UserAgent())
	}))
	defer srv.Close()

	client := New(fastRetryConfig(0))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, http.NoBody)
	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, DefaultUserAgent, got.Load())

	req, _ = http.NewRequest(http.MethodGet, srv.URL, http.NoBody)
	req.Header.Set("User-Agent", "custom")
	resp, err = client.Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "custom", got.Load())
}

func TestDo_ContextEndsRetryWait(t *testing.T) {
	srv, _ := statusSequence(t, http.StatusServiceUnavailable)
	client := New(Config{
		Timeout:         5 * time.Second,
		MaxRetries:      10,
		RetryWaitMin:    100 * time.Millisecond,
		RetryWaitMax:    500 * time.Millisecond,
		MaxConnsPerHost: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, http.NoBody)
	start := time.Now()
	_, err := client.Do(ctx, req)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(fastRetryConfig(1))
	req, _ := http.NewRequest(http.MethodGet, url+"/cart", http.NoBody)
	_, err := client.Do(context.Background(), req)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GET /cart failed after 2 attempts")
}

func TestBackoff_DoublesUpToCap(t *testing.T) {
	c := New(Config{RetryWaitMin: 100 * time.Millisecond, RetryWaitMax: 350 * time.Millisecond})

	assert.Equal(t, 100*time.Millisecond, c.backoff(1))
	assert.Equal(t, 200*time.Millisecond, c.backoff(2))
	assert.Equal(t, 350*time.Millisecond, c.backoff(3))
	assert.Equal(t, 350*time.Millisecond, c.backoff(40))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(context.Canceled))
	// context.DeadlineExceeded implements net.Error.
	assert.True(t, isRetryableError(context.DeadlineExceeded))
}

func TestAddJitter_Bounds(t *testing.T) {
	const base = time.Second
	var minVal, maxVal time.Duration
	for i := 0; i < 200; i++ {
		d := addJitter(base)
		if i == 0 || d < minVal {
			minVal = d
		}
		if i == 0 || d > maxVal {
			maxVal = d
		}
		require.GreaterOrEqual(t, d, 750*time.Millisecond)
		require.LessOrEqual(t, d, 1250*time.Millisecond)
	}
	assert.Greater(t, maxVal-minVal, 50*time.Millisecond, "jitter should vary")
	assert.Zero(t, addJitter(0))
}
