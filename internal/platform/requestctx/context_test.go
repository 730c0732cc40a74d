package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerDefaultsToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger")
	}
	logger := zap.NewExample()
	if Logger(WithLogger(context.Background(), logger)) != logger {
		t.Fatalf("expected stored logger")
	}
}

func TestTraceAndIdempotencyKey(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc"})
	ctx = WithIdempotencyKey(ctx, "idem-1")
	if TraceID(ctx) != "abc" {
		t.Fatalf("unexpected trace id %q", TraceID(ctx))
	}
	if IdempotencyKey(ctx) != "idem-1" {
		t.Fatalf("unexpected idempotency key %q", IdempotencyKey(ctx))
	}
	if IdempotencyKey(WithIdempotencyKey(context.Background(), "")) != "" {
		t.Fatalf("empty key must not be stored")
	}
}

func TestLoggerOrPrefersRequestLogger(t *testing.T) {
	fallback := zap.NewExample()
	if LoggerOr(context.Background(), fallback) != fallback {
		t.Fatalf("expected fallback without a request logger")
	}
	if LoggerOr(WithLogger(context.Background(), nil), fallback) != fallback {
		t.Fatalf("a cleared logger must still yield the fallback")
	}
	scoped := zap.NewExample()
	ctx := WithLogger(context.Background(), scoped)
	if LoggerOr(ctx, fallback) != scoped || !HasLogger(ctx) {
		t.Fatalf("expected request logger to win")
	}
	if HasLogger(context.Background()) {
		t.Fatalf("background context carries no logger")
	}
}
