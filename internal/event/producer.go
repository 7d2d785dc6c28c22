// Package event publishes storefront cart events.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/izahid19/ekart/internal/merge"
	pkgkafka "github.com/izahid19/ekart/pkg/kafka"
	"github.com/izahid19/ekart/pkg/logger"
)

// Kafka topic constants for storefront cart events.
const (
	TopicCartMerged      = pkgkafka.TopicPrefix + ".cart.merged"
	TopicCartMergeFailed = pkgkafka.TopicPrefix + ".cart.merge_failed"
)

// AggregateTypeSession is the aggregate type: events are keyed by browsing session.
const AggregateTypeSession = "storefront_session"

// SourceStorefront identifies events originating from the storefront service.
const SourceStorefront = "storefront"

// CartMergedData is the payload for a cart.merged event.
type CartMergedData struct {
	SessionID   string         `json:"session_id"`
	ServerLines int            `json:"server_lines"`
	GuestLines  int            `json:"guest_lines"`
	Created     []merge.Create `json:"created"`
	ResultLines int            `json:"result_lines"`
}

// CartMergeFailedData is the payload for a cart.merge_failed event.
type CartMergeFailedData struct {
	SessionID      string `json:"session_id"`
	Reason         string `json:"reason"`
	Applied        int    `json:"applied"`
	RemainingLines int    `json:"remaining_lines"`
}

// Publisher is the subset of the Kafka producer the storefront needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront cart events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartMerged publishes a cart.merged event.
func (p *Producer) PublishCartMerged(ctx context.Context, data CartMergedData) error {
	if err := p.publish(ctx, TopicCartMerged, data.SessionID, data); err != nil {
		return fmt.Errorf("publish cart.merged event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.merged event",
		slog.String("session_id", data.SessionID),
		slog.Int("created", len(data.Created)),
	)
	return nil
}

// PublishCartMergeFailed publishes a cart.merge_failed event.
func (p *Producer) PublishCartMergeFailed(ctx context.Context, data CartMergeFailedData) error {
	if err := p.publish(ctx, TopicCartMergeFailed, data.SessionID, data); err != nil {
		return fmt.Errorf("publish cart.merge_failed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.merge_failed event",
		slog.String("session_id", data.SessionID),
		slog.String("reason", data.Reason),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, sessionID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, sessionID, AggregateTypeSession, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	return p.kafka.Publish(ctx, topic, event)
}

// NopProducer drops every event. It stands in when no brokers are configured.
type NopProducer struct{}

// PublishCartMerged implements the publisher contract and does nothing.
func (NopProducer) PublishCartMerged(context.Context, CartMergedData) error { return nil }

// PublishCartMergeFailed implements the publisher contract and does nothing.
func (NopProducer) PublishCartMergeFailed(context.Context, CartMergeFailedData) error { return nil }
