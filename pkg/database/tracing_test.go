package database

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		tp.Shutdown(context.Background()) //nolint:errcheck
		otel.SetTracerProvider(prev)
	})

	return exporter
}

func hookedClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client.AddHook(NewHook(mr.Addr()))
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func spanByName(spans tracetest.SpanStubs, name string) *tracetest.SpanStub {
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	return nil
}

func TestHook_SpanPerCommand(t *testing.T) {
	exporter := setupTestTracer(t)
	client, _ := hookedClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "guestcart:s-1", "[]", time.Hour).Err())

	span := spanByName(exporter.GetSpans(), "redis.set")
	require.NotNil(t, span, "expected a redis.set span")

	attrs := map[string]string{}
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "redis", attrs["db.system"])
	assert.Equal(t, "set", attrs["db.operation"])
	for _, kv := range span.Attributes {
		assert.NotContains(t, kv.Value.Emit(), "s-1", "keys must not leak into spans")
	}
}

func TestHook_MissIsNotAnError(t *testing.T) {
	exporter := setupTestTracer(t)
	client, _ := hookedClient(t)

	err := client.Get(context.Background(), "guestcart:absent").Err()
	require.ErrorIs(t, err, redis.Nil)

	span := spanByName(exporter.GetSpans(), "redis.get")
	require.NotNil(t, span)
	assert.NotEqual(t, codes.Error, span.Status.Code)
}

func TestHook_RecordsFailures(t *testing.T) {
	exporter := setupTestTracer(t)
	client, mr := hookedClient(t)
	require.NoError(t, client.Ping(context.Background()).Err())
	mr.SetError("LOADING Redis is loading the dataset in memory")

	err := client.Get(context.Background(), "guestcart:s-1").Err()
	require.Error(t, err)

	span := spanByName(exporter.GetSpans(), "redis.get")
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status.Code)
}

func TestHook_Pipeline(t *testing.T) {
	exporter := setupTestTracer(t)
	client, _ := hookedClient(t)
	ctx := context.Background()

	_, err := client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, "a", "1", 0)
		p.Set(ctx, "b", "2", 0)
		return nil
	})
	require.NoError(t, err)

	span := spanByName(exporter.GetSpans(), "redis.pipeline")
	require.NotNil(t, span)
	found := false
	for _, kv := range span.Attributes {
		if kv.Key == "db.redis.num_cmd" {
			found = true
			assert.Equal(t, int64(2), kv.Value.AsInt64())
		}
	}
	assert.True(t, found)
}

func TestSlowCommandLogging(t *testing.T) {
	setupTestTracer(t)
	client, _ := hookedClient(t)
	t.Cleanup(func() { SetSlowCommandLogging(0, nil) })

	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	SetSlowCommandLogging(time.Hour, l)
	require.NoError(t, client.Ping(context.Background()).Err())
	assert.NotContains(t, buf.String(), "slow redis command detected")

	SetSlowCommandLogging(time.Nanosecond, l)
	require.NoError(t, client.Ping(context.Background()).Err())
	assert.Contains(t, buf.String(), "slow redis command detected")
	assert.Contains(t, buf.String(), `"command":"ping"`)
}

func TestSetSlowCommandLogging_Concurrent(t *testing.T) {
	t.Cleanup(func() { SetSlowCommandLogging(0, nil) })
	l := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			SetSlowCommandLogging(time.Duration(i)*time.Millisecond, l)
		}
	}()
	for i := 0; i < 100; i++ {
		getSlowCommandConfig()
	}
	<-done
}
