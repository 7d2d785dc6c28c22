package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte("storefront.cart.merged")},
		{Key: HeaderSource, Value: []byte("storefront")},
	}
	carrier := NewHeaderCarrier(&headers)

	assert.Equal(t, "storefront.cart.merged", carrier.Get(HeaderEventType))
	assert.Empty(t, carrier.Get(HeaderCorrelationID))
	assert.ElementsMatch(t, []string{HeaderEventType, HeaderSource}, carrier.Keys())

	carrier.Set(HeaderCorrelationID, "corr-7")
	carrier.Set(HeaderSource, "storefront-canary")

	assert.Len(t, headers, 3, "Set replaces an existing key in place")
	assert.Equal(t, "corr-7", carrier.Get(HeaderCorrelationID))
	assert.Equal(t, "storefront-canary", carrier.Get(HeaderSource))
}

func TestHeaderCarrier_Empty(t *testing.T) {
	var headers []kafka.Header
	carrier := NewHeaderCarrier(&headers)

	assert.Empty(t, carrier.Keys())
	assert.Empty(t, carrier.Get("traceparent"))
}

func TestHeaderCarrier_CarriesTraceContext(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	event, err := NewEvent("storefront.cart.merged", "s-1", "storefront_session", "storefront", nil)
	require.NoError(t, err)
	headers := event.Headers()

	propagator := propagation.TraceContext{}
	propagator.Inject(ctx, NewHeaderCarrier(&headers))
	assert.Len(t, headers, 3, "routing headers plus traceparent")

	extracted := trace.SpanContextFromContext(propagator.Extract(context.Background(), NewHeaderCarrier(&headers)))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.Equal(t, spanID, extracted.SpanID())
	assert.True(t, extracted.IsRemote())
}
