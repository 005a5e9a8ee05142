// Package events carries in-process notifications over a watermill pub/sub.
package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
)

const (
	TopicIdentityChanged    = "identity.changed"
	TopicTranscriptAppended = "transcript.appended"
)

// Bus is a thin JSON layer over a go-channel pub/sub. Publish blocks until every
// subscriber has acknowledged, which keeps per-topic delivery in publish order.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates a bus. A nil logger discards watermill's own logs.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		}, logger),
	}
}

// PublishJSON encodes v and publishes it on topic.
func (b *Bus) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s event", topic)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return errors.Wrapf(err, "publish %s", topic)
	}
	return nil
}

// Subscribe returns the raw message stream of topic. The channel closes when ctx is done.
// Every message must be acked or nacked.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", topic)
	}
	return msgs, nil
}

// Close stops delivery and closes all subscriptions.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
