package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/outbox"
)

// DefaultRedisKey is the list analytics events are appended to.
const DefaultRedisKey = "engagement:analytics"

// ListClient is the subset of the go-redis client used by RedisSink.
type ListClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// RedisConfig configures the Redis list sink.
type RedisConfig struct {
	Key string
	// MaxLen caps the list length, keeping the newest entries. Zero disables trimming.
	MaxLen int64
}

// RedisSink appends analytics events to a Redis list for downstream workers.
type RedisSink struct {
	client ListClient
	key    string
	maxLen int64
	logger *zap.Logger
}

// NewRedisSink constructs a RedisSink.
func NewRedisSink(client ListClient, cfg RedisConfig, logger *zap.Logger) (*RedisSink, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	key := cfg.Key
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSink{client: client, key: key, maxLen: cfg.MaxLen, logger: logger}, nil
}

// Consume pushes every analytics envelope with a single RPUSH.
func (s *RedisSink) Consume(ctx context.Context, batch []outbox.Envelope) error {
	_, events := outbox.Partition(batch)
	if len(events) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(events))
	for _, env := range events {
		raw, err := json.Marshal(AnalyticsMessage{
			SessionID: env.SessionID,
			TS:        env.TS,
			EventName: env.Name,
			Params:    env.Params,
		})
		if err != nil {
			s.logger.Warn("skipping unserializable analytics event", zap.String("event_name", env.Name), zap.Error(err))
			continue
		}
		values = append(values, raw)
	}
	if len(values) == 0 {
		return nil
	}
	length, err := s.client.RPush(ctx, s.key, values...).Result()
	if err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	if s.maxLen > 0 && length > s.maxLen {
		if err := s.client.LTrim(ctx, s.key, -s.maxLen, -1).Err(); err != nil {
			return fmt.Errorf("ltrim: %w", err)
		}
	}
	s.logger.Debug("analytics events pushed", zap.String("key", s.key), zap.Int("count", len(values)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *RedisSink) Close(context.Context) error {
	return nil
}
