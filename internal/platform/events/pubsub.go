package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/tienda-delivery/api/internal/services"
)

// PubSubPublisher publishes order events to a Pub/Sub topic, ordered per order.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	stop    bool
	marshal func(any) ([]byte, error)
}

type PubSubOption func(*PubSubPublisher)

// WithTopicOwnership stops the topic when the publisher is closed.
func WithTopicOwnership() PubSubOption {
	return func(p *PubSubPublisher) { p.stop = true }
}

func NewPubSubPublisher(topic *pubsub.Topic, opts ...PubSubOption) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	p := &PubSubPublisher{topic: topic, marshal: json.Marshal}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// PublishOrderEvent blocks until the server acknowledges the message.
func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attributes(ctx, event),
		OrderingKey: event.OrderID,
	})
	if _, err := result.Get(ctx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		p.topic.ResumePublish(event.OrderID)
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func (p *PubSubPublisher) Close() error {
	if p != nil && p.stop && p.topic != nil {
		p.topic.Stop()
	}
	return nil
}
