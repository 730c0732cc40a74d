package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tienda-delivery/api/internal/platform/requestctx"
	"github.com/tienda-delivery/api/internal/services"
)

var occurredAt = time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)

func sampleEvent() services.OrderEvent {
	return services.OrderEvent{
		Type:           "order.status_changed",
		OrderID:        "ord_01",
		OrderNumber:    "ORD-20250506-004",
		PreviousStatus: "PENDING",
		CurrentStatus:  "CONFIRMED",
		ActorID:        "admin_1",
		OccurredAt:     occurredAt,
	}
}

func TestPubSubPublisherPublishesOrderedMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubPublisher(topic, WithTopicOwnership())
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}
	defer publisher.Close()

	ctx = requestctx.WithIdempotencyKey(ctx, "idem-123")
	if err := publisher.PublishOrderEvent(ctx, sampleEvent()); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload services.OrderEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderNumber != "ORD-20250506-004" || payload.CurrentStatus != "CONFIRMED" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if messages[0].OrderingKey != "ord_01" {
		t.Fatalf("expected ordering key, got %q", messages[0].OrderingKey)
	}
	attrs := messages[0].Attributes
	if attrs["type"] != "order.status_changed" || attrs["idempotencyKey"] != "idem-123" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if _, ok := attrs["traceId"]; ok {
		t.Fatalf("empty trace id should not be an attribute")
	}
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByOrder(t *testing.T) {
	writer := &recordingWriter{}
	publisher := newKafkaPublisher(writer)

	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	if err := publisher.PublishOrderEvent(ctx, sampleEvent()); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "ord_01" || !msg.Time.Equal(occurredAt) {
		t.Fatalf("unexpected message key/time %q %s", msg.Key, msg.Time)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["orderNumber"] != "ORD-20250506-004" || headers["traceId"] != "abc123" {
		t.Fatalf("unexpected headers %v", headers)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("leader not available")
	publisher := newKafkaPublisher(&recordingWriter{err: boom})
	if err := publisher.PublishOrderEvent(context.Background(), sampleEvent()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
	if _, err := NewKafkaPublisher(nil, "orders"); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestLogPublisherWritesEntry(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	publisher := NewLogPublisher(zap.New(core))
	if err := publisher.PublishOrderEvent(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}
	entries := logs.FilterMessage("order event").All()
	if len(entries) != 1 || entries[0].ContextMap()["order_id"] != "ord_01" {
		t.Fatalf("unexpected entries %v", entries)
	}
}
