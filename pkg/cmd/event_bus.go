package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/operion-automation/pkg/channels/gochannel"
	"github.com/dukex/operion-automation/pkg/channels/kafka"
)

// NewChannel builds the publisher and subscriber for the named event bus provider.
func NewChannel(provider, brokers, consumerGroup string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "gochannel", "":
		pubSub := gochannel.CreateChannel(wmLogger, 0)

		return pubSub, pubSub, nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(brokers), consumerGroup)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return pub, sub, nil
	default:
		return nil, nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
