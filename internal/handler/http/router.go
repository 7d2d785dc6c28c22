package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/izahid19/ekart/internal/session"
	"github.com/izahid19/ekart/pkg/health"
	"github.com/izahid19/ekart/pkg/middleware"
)

// ServiceName labels the storefront's metrics and spans.
const ServiceName = "storefront"

// RouterConfig collects the router's collaborators.
type RouterConfig struct {
	Sessions    *session.Manager
	Health      *health.Handler
	RateLimiter *middleware.RateLimiter
	CORS        middleware.CORSConfig
	Logger      *slog.Logger
	// Timeout bounds a request end to end. Zero means 30s.
	Timeout time.Duration
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := cfg.Logger

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.Timeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	carts := NewCartHandler(cfg.Sessions, logger)
	sessions := NewSessionHandler(cfg.Sessions, carts, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(middleware.Bearer)
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		r.Post("/session", sessions.Create)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session)
			r.Use(middleware.RequestLogger(logger))

			r.With(middleware.RequireBearer).Post("/session/login", sessions.Login)
			r.Post("/session/logout", sessions.Logout)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", carts.GetCart)
				r.Post("/items", carts.AddItem)
				r.Put("/items/{productId}", carts.UpdateItemQuantity)
				r.Delete("/items/{productId}", carts.RemoveItem)
				r.Get("/checkout", carts.Checkout)
				r.Post("/order-placed", carts.OrderPlaced)
			})
		})
	})

	return r
}
