package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
)

// AnalyticsMessage is the message published for each analytics envelope.
type AnalyticsMessage struct {
	SessionID string         `json:"session_id,omitempty"`
	TS        time.Time      `json:"ts"`
	EventName string         `json:"event_name"`
	Params    map[string]any `json:"params,omitempty"`
}

// PublishSink forwards analytics events to a message topic, one message per
// event. Beacons are not published.
type PublishSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink constructs a PublishSink for topic.
func NewPublishSink(publisher Publisher, topic string, logger *zap.Logger) (*PublishSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}, nil
}

// Consume publishes every analytics envelope. Individual failures are joined
// into the returned error after the whole batch was attempted.
func (s *PublishSink) Consume(ctx context.Context, batch []outbox.Envelope) error {
	_, events := outbox.Partition(batch)
	var errs []error
	for _, env := range events {
		msg := AnalyticsMessage{
			SessionID: env.SessionID,
			TS:        env.TS,
			EventName: env.Name,
			Params:    env.Params,
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", env.Name, err))
			continue
		}
		s.logger.Debug("analytics event published",
			zap.String("event_name", env.Name),
			zap.String("message_id", id),
		)
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
