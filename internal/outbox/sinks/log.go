package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
)

// LogSink emits structured logs for each envelope. It is useful during
// development or audits where no collector is reachable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each envelope in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []outbox.Envelope) error {
	for _, env := range batch {
		fields := []zap.Field{
			zap.String("session_id", env.SessionID),
			zap.String("kind", string(env.Kind)),
			zap.Time("ts", env.TS),
		}
		switch env.Kind {
		case outbox.KindBeacon:
			fields = append(fields,
				zap.String("endpoint", env.Endpoint),
				zap.ByteString("body", env.Body),
			)
		case outbox.KindAnalytics:
			fields = append(fields,
				zap.String("event_name", env.Name),
				zap.Any("params", env.Params),
			)
		}
		s.logger.Info("engagement envelope", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
