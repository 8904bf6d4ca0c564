package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

type Publisher struct {
	publisher message.Publisher
}

func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{publisher: pub}
}

func (p *Publisher) GenerateID() string {
	return watermill.NewULID()
}

func (p *Publisher) Publish(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+p.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(KeyMetadataKey, n.Key())
	msg.Metadata.Set(KindMetadataKey, string(n.Kind))

	return p.publisher.Publish(Topic, msg)
}

func (p *Publisher) Close() error {
	return p.publisher.Close()
}
