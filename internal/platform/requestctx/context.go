// Package requestctx carries per-request values that middleware hands to
// handlers, services and the event publisher.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type (
	loggerKey      struct{}
	traceKey       struct{}
	idempotencyKey struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo is the Cloud Trace context parsed from the inbound request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

func with(ctx context.Context, key, value any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func lookup[T any](ctx context.Context, key any) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithLogger attaches logger. A nil logger clears any logger set upstream.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return with(ctx, loggerKey{}, logger)
}

// Logger never returns nil.
func Logger(ctx context.Context) *zap.Logger {
	return LoggerOr(ctx, nil)
}

// LoggerOr returns the request logger, else fallback, else the no-op logger.
func LoggerOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := lookup[*zap.Logger](ctx, loggerKey{}); ok && logger != nil && logger != noopLogger {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return noopLogger
}

// HasLogger reports whether a real logger was attached upstream.
func HasLogger(ctx context.Context) bool {
	return Logger(ctx) != noopLogger
}

func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return with(ctx, traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	return lookup[TraceInfo](ctx, traceKey{})
}

func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithIdempotencyKey records the checkout key the client sent. Empty keys are ignored.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	if key == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return with(ctx, idempotencyKey{}, key)
}

func IdempotencyKey(ctx context.Context) string {
	key, _ := lookup[string](ctx, idempotencyKey{})
	return key
}
