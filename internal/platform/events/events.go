// Package events delivers order lifecycle events to a message broker.
package events

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/tienda-delivery/api/internal/platform/requestctx"
	"github.com/tienda-delivery/api/internal/services"
)

// Publisher is an OrderEventPublisher that owns broker resources.
type Publisher interface {
	services.OrderEventPublisher
	Close() error
}

func attributes(ctx context.Context, event services.OrderEvent) map[string]string {
	attrs := make(map[string]string, 5)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "idempotencyKey", requestctx.IdempotencyKey(ctx))
	setAttr(attrs, "traceId", requestctx.TraceID(ctx))
	return attrs
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

// LogPublisher writes events to the logger. It is used when no broker is
// configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.logger.Info("order event",
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID),
		zap.String("trace_id", requestctx.TraceID(ctx)),
		zap.ByteString("payload", payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
