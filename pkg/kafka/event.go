package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EnvelopeVersion is stamped on every event so consumers can detect schema changes.
const EnvelopeVersion = 1

// Header keys set on every published message.
const (
	HeaderEventType     = "event_type"
	HeaderSource        = "source"
	HeaderCorrelationID = "correlation_id"
)

// Event is the envelope wrapped around every published payload.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with a generated ID and current timestamp.
// The aggregate ID doubles as the message key, so it must not be empty.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	if aggregateID == "" {
		return nil, fmt.Errorf("event %s: empty aggregate id", eventType)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("event %s: marshal data: %w", eventType, err)
	}

	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       EnvelopeVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          raw,
	}, nil
}

// WithCorrelationID sets the correlation ID on the event.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// Key is the partitioning key. Events of one aggregate share a partition.
func (e *Event) Key() []byte {
	return []byte(e.AggregateID)
}

// Headers returns the routing headers consumers can filter on without
// decoding the body.
func (e *Event) Headers() []kafka.Header {
	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(e.EventType)},
		{Key: HeaderSource, Value: []byte(e.Source)},
	}
	if e.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(e.CorrelationID)})
	}
	return headers
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("event %s: unmarshal data: %w", e.EventType, err)
	}
	return nil
}
