package cmd

import (
	"fmt"

	"github.com/dukex/operion-automation/pkg/notification"
	"github.com/redis/go-redis/v9"
)

// NewNotificationSink returns a Redis sink for redisURL, or nil (log delivery) when it is empty.
// The returned close function is never nil.
func NewNotificationSink(redisURL, key string) (notification.Sink, func() error, error) {
	if redisURL == "" {
		return nil, func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	return notification.NewRedisSink(client, key), client.Close, nil
}
