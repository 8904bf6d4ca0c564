package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/operion-automation/pkg/models"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list notifications are pushed to.
const DefaultRedisKey = "operion:automation:notifications"

// LogSink writes notifications to a structured logger, the "console" channel.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, n models.Notification) error {
	s.logger.InfoContext(ctx, "Notification",
		"type", n.Type,
		"priority", n.Priority,
		"recipients", n.Recipients,
		"message", n.Message,
	)

	return nil
}

// RedisSink pushes JSON-encoded notifications onto a Redis list for an external
// dispatcher to consume.
type RedisSink struct {
	client redis.UniversalClient
	key    string
}

func NewRedisSink(client redis.UniversalClient, key string) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}

	return &RedisSink{client: client, key: key}
}

func (s *RedisSink) Deliver(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := s.client.LPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push notification to %s: %w", s.key, err)
	}

	return nil
}
