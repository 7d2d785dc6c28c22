package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultUserAgent identifies the storefront to the cart service.
const DefaultUserAgent = "ekart-storefront/1"

// Config holds HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
	// UserAgent is sent on every request that does not set its own.
	UserAgent string
}

// DefaultConfig returns the transport settings used for the cart API.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 50,
		UserAgent:       DefaultUserAgent,
	}
}

var retriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_client_retries_total",
		Help: "Retried outbound HTTP requests by method and reason",
	},
	[]string{"method", "reason"},
)

// Client wraps http.Client with retry logic and pooled connections.
// Only idempotent requests are retried; a cart mutation that reached the
// server once must not be replayed by the transport.
type Client struct {
	httpClient *http.Client
	config     Config
}

// New creates a new HTTP client with retry and connection pooling.
func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		config: cfg,
	}
}

// Do executes the request. GET, HEAD and OPTIONS are retried on network
// errors and on 5xx answers other than 501, with jittered exponential
// backoff capped at RetryWaitMax.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if c.config.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	retries := c.config.MaxRetries
	if !isIdempotent(req.Method) {
		retries = 0
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(addJitter(c.backoff(attempt))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		last := attempt >= retries

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if !last && isRetryableError(err) && ctx.Err() == nil {
				retriesTotal.WithLabelValues(req.Method, "network").Inc()
				continue
			}
			return nil, fmt.Errorf("%s %s failed after %d attempts: %w", req.Method, req.URL.Path, attempt+1, err)
		}

		if !last && retryableStatus(resp.StatusCode) {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			retriesTotal.WithLabelValues(req.Method, "status").Inc()
			continue
		}
		return resp, nil
	}
}

// backoff returns the un-jittered wait before the given retry (1-based).
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.config.RetryWaitMin
	for i := 1; i < attempt && wait < c.config.RetryWaitMax; i++ {
		wait *= 2
	}
	return min(wait, c.config.RetryWaitMax)
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// retryableStatus reports 5xx answers that may clear on retry; 501 will not.
func retryableStatus(code int) bool {
	return code >= 500 && code != http.StatusNotImplemented
}

// isRetryableError reports network-level failures. A canceled caller is
// never retried.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// addJitter spreads d by up to 25% in either direction.
func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := float64(d) * 0.25
	return time.Duration(float64(d) + (rand.Float64()*2-1)*spread) // #nosec G404 -- non-cryptographic jitter
}
