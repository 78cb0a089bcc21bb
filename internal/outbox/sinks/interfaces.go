package sinks

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

// Publisher publishes one message to a topic and returns its server ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore persists an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// IDGenerator produces unique, time-ordered identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// ReadMetricsRepository persists read-engagement summaries.
type ReadMetricsRepository interface {
	StoreReadMetrics(ctx context.Context, sessionID string, payload engagement.ReadMetricsPayload, receivedAt time.Time) error
}
