package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tienda-delivery/api/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events keyed by order id so each order stays on
// one partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher builds a synchronous writer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka order publisher: brokers and topic are required")
	}
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
		BatchTimeout:           10 * time.Millisecond,
	}), nil
}

func newKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	attrs := attributes(ctx, event)
	headers := make([]kafka.Header, 0, len(attrs))
	for key, value := range attrs {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	msg := kafka.Message{
		Key:     []byte(event.OrderID),
		Value:   payload,
		Headers: headers,
		Time:    event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
