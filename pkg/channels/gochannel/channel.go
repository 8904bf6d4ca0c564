// Package gochannel provides the in-process notification transport.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// CreateChannel returns one GoChannel used as both publisher and subscriber.
// bufferSize bounds the per-subscriber output channel.
func CreateChannel(logger watermill.LoggerAdapter, bufferSize int64) *gochannel.GoChannel {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            bufferSize,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
}

// CreateTestChannel keeps published messages so late subscribers still receive them.
func CreateTestChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 10,
			Persistent:          true,
		},
		logger,
	)
}
