package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/izahid19/ekart/pkg/errors"
	"github.com/izahid19/ekart/pkg/httputil"
	"github.com/izahid19/ekart/pkg/logger"
)

// visitor tracks a token bucket per rate limit key.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out per-key token buckets and forgets keys that have been
// idle for longer than its TTL. Keys are storefront session IDs, or the
// client IP for requests that carry no session.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	service  string
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst for each key. Call Run to start evicting idle keys.
func NewRateLimiter(service string, rps float64, burst int, ttl time.Duration, l *slog.Logger) *RateLimiter {
	if l == nil {
		l = logger.Discard()
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		service:  service,
		logger:   l,
		nowFunc:  time.Now,
	}
}

func (s *RateLimiter) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Run evicts idle keys every TTL until ctx is done.
func (s *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *RateLimiter) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.ttl {
			delete(s.visitors, key)
		}
	}
}

// Len returns the number of tracked keys.
func (s *RateLimiter) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// Middleware enforces the limit, answering 429 with Retry-After when a key
// runs out of tokens.
func (s *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, kind := rateKey(r)
		if !s.limiter(key).Allow() {
			rateLimitedTotal.WithLabelValues(s.service, kind).Inc()
			logger.WithContext(r.Context(), s.logger).WarnContext(r.Context(), "rate limit exceeded",
				slog.String("key_kind", kind),
				slog.String("path", r.URL.Path),
			)
			httputil.WriteError(w, r, apperrors.RateLimited("too many requests"), s.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateKey(r *http.Request) (string, string) {
	if sid := logger.SessionIDFromContext(r.Context()); sid != "" {
		return "session:" + sid, "session"
	}
	if sid := r.Header.Get(SessionHeader); sid != "" {
		return "session:" + sid, "session"
	}
	return "ip:" + clientIP(r), "ip"
}

// clientIP extracts the client IP address from the request.
// It checks X-Forwarded-For and X-Real-IP headers before falling back to RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
