package database

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/izahid19/ekart/pkg/database"

var redisCommandDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "redis_command_duration_seconds",
		Help:    "Redis command latency in seconds",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	},
	[]string{"command", "outcome"},
)

// slowCommandCfg holds the configurable slow command logging settings.
var slowCommandCfg struct {
	mu        sync.RWMutex
	threshold time.Duration
	logger    *slog.Logger
}

// SetSlowCommandLogging configures slow command detection. Commands exceeding
// the threshold are logged as warnings with command name and duration. A zero
// threshold disables slow command logging.
func SetSlowCommandLogging(threshold time.Duration, logger *slog.Logger) {
	slowCommandCfg.mu.Lock()
	defer slowCommandCfg.mu.Unlock()
	slowCommandCfg.threshold = threshold
	slowCommandCfg.logger = logger
}

func getSlowCommandConfig() (time.Duration, *slog.Logger) {
	slowCommandCfg.mu.RLock()
	defer slowCommandCfg.mu.RUnlock()
	return slowCommandCfg.threshold, slowCommandCfg.logger
}

// Hook is a go-redis hook that wraps each command in a client span, records
// its latency, and reports slow commands. Key arguments are never recorded
// because guest cart keys embed session identifiers.
type Hook struct {
	addr   string
	tracer trace.Tracer
}

var _ redis.Hook = (*Hook)(nil)

// NewHook returns a hook for the Redis server at addr.
func NewHook(addr string) *Hook {
	return &Hook{addr: addr, tracer: otel.Tracer(tracerName)}
}

func (h *Hook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *Hook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		name := strings.ToLower(cmd.Name())
		ctx, end := h.start(ctx, name, 1)
		err := next(ctx, cmd)
		end(name, err)
		return err
	}
}

func (h *Hook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, end := h.start(ctx, "pipeline", len(cmds))
		err := next(ctx, cmds)
		end("pipeline", err)
		return err
	}
}

func (h *Hook) start(ctx context.Context, name string, n int) (context.Context, func(string, error)) {
	start := time.Now()
	ctx, span := h.tracer.Start(ctx, "redis."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", name),
			attribute.String("server.address", h.addr),
			attribute.Int("db.redis.num_cmd", n),
		),
	)

	return ctx, func(name string, err error) {
		elapsed := time.Since(start)

		// redis.Nil is a cache miss, not a failure.
		failed := err != nil && !errors.Is(err, redis.Nil)
		outcome := "ok"
		if failed {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		redisCommandDuration.WithLabelValues(name, outcome).Observe(elapsed.Seconds())

		if threshold, logger := getSlowCommandConfig(); threshold > 0 && logger != nil && elapsed >= threshold {
			attrs := []any{
				slog.String("command", name),
				slog.Int("commands", n),
				slog.Duration("duration", elapsed),
			}
			if failed {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			logger.WarnContext(ctx, "slow redis command detected", attrs...)
		}
	}
}
