package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
)

// StoreSink writes read-metrics beacons straight to a repository instead of
// the HTTP collector.
type StoreSink struct {
	repo   ReadMetricsRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo ReadMetricsRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume persists every read-metrics beacon in the batch. Bodies that do not
// decode are logged and skipped; repository errors abort the batch.
func (s *StoreSink) Consume(ctx context.Context, batch []outbox.Envelope) error {
	if s == nil || s.repo == nil {
		return nil
	}
	beacons, _ := outbox.Partition(batch)
	for _, env := range beacons {
		if env.Endpoint != engagement.ReadMetricsPath {
			continue
		}
		var payload engagement.ReadMetricsPayload
		if err := json.Unmarshal(env.Body, &payload); err != nil {
			s.logger.Warn("skipping malformed read metrics body",
				zap.String("session_id", env.SessionID),
				zap.Error(err),
			)
			continue
		}
		if err := s.repo.StoreReadMetrics(ctx, env.SessionID, payload, env.TS); err != nil {
			return fmt.Errorf("store read metrics: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
