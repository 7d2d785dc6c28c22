package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/izahid19/ekart/internal/cartsync"
	"github.com/izahid19/ekart/internal/config"
	"github.com/izahid19/ekart/internal/event"
	"github.com/izahid19/ekart/internal/guestcart"
	guestredis "github.com/izahid19/ekart/internal/guestcart/redis"
	handler "github.com/izahid19/ekart/internal/handler/http"
	"github.com/izahid19/ekart/internal/pricing"
	"github.com/izahid19/ekart/internal/remote"
	"github.com/izahid19/ekart/internal/session"
	"github.com/izahid19/ekart/pkg/database"
	"github.com/izahid19/ekart/pkg/health"
	"github.com/izahid19/ekart/pkg/httpclient"
	pkgkafka "github.com/izahid19/ekart/pkg/kafka"
	"github.com/izahid19/ekart/pkg/middleware"
	"github.com/izahid19/ekart/pkg/tracing"
)

const slowRedisCommand = 50 * time.Millisecond

// App wires together all dependencies and runs the storefront cart engine.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	sessions       *session.Manager
	limiter        *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Tracing.
	traceCfg := tracing.DefaultConfig(handler.ServiceName)
	traceCfg.Environment = cfg.Environment
	traceCfg.Enabled = cfg.OTelEnabled
	traceCfg.OTLPEndpoint = cfg.OTelEndpoint
	traceCfg.SampleRate = cfg.OTelSampleRate
	tracerShutdown, err := tracing.InitTracer(ctx, traceCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// Redis guest cart backend.
	redisCfg := database.DefaultRedisConfig()
	redisCfg.Addr = cfg.RedisAddr
	redisCfg.Password = cfg.RedisPass
	redisCfg.DB = cfg.RedisDB
	rdb, err := database.NewRedisClient(ctx, redisCfg, logger)
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, err
	}
	database.RegisterPoolMetrics(rdb, handler.ServiceName)
	database.SetSlowCommandLogging(slowRedisCommand, logger)
	logger.Info("connected to Redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
	)
	guestBackend := guestredis.New(rdb, cfg.GuestCartTTLDuration())

	// Remote cart service.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.CartAPITimeout
	breaker := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("cart-api"),
		logger,
	)
	api := remote.NewClient(cfg.CartAPIBaseURL, breaker, logger)

	// Cart events.
	var (
		producer *pkgkafka.Producer
		events   cartsync.EventPublisher = event.NopProducer{}
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("kafka brokers not configured, cart events disabled")
	}

	// Per-session controllers.
	calc := pricing.NewCalculator(cfg.PricingPolicy())
	sessions := session.NewManager(func(sessionID string) *cartsync.Controller {
		return cartsync.New(sessionID, cartsync.Deps{
			Guest:      guestcart.NewStore(guestBackend, guestcart.SessionKey(sessionID), logger),
			API:        api,
			Calculator: calc,
			Events:     events,
			Logger:     logger,
			Currency:   cfg.Currency,
		})
	}, cfg.SessionIdleTimeout, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("redis", guestBackend.Ping)
	healthHandler.RegisterNonCritical("cart_api", breaker.Check)
	if producer != nil {
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
	}

	limiter := middleware.NewRateLimiter(handler.ServiceName, cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		Sessions:    sessions,
		Health:      healthHandler,
		RateLimiter: limiter,
		CORS:        corsCfg,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		producer:       producer,
		sessions:       sessions,
		limiter:        limiter,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the background sweepers, and blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.sessions.Run(bgCtx)
	}()
	go func() {
		defer wg.Done()
		a.limiter.Run(bgCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopBackground()
	wg.Wait()

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
