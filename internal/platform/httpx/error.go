package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tienda-delivery/api/internal/platform/requestctx"
)

// Kind is the machine-checkable class of a failure, stable across individual error codes.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindBusinessRule       Kind = "business_rule"
	KindUnavailableProduct Kind = "unavailable_product"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindNotFound           Kind = "not_found"
	KindUnauthorized       Kind = "unauthorized"
	KindConflict           Kind = "conflict"
	KindServer             Kind = "server_error"
)

const (
	maxCodeLength    = 80
	maxMessageLength = 512
	maxIDLength      = 80
)

// Error is the JSON error envelope returned by every endpoint.
type Error struct {
	Code      string
	Message   string
	Kind      Kind
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError builds an Error whose kind is inferred from the status until WithKind overrides it.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    truncate(code, maxCodeLength),
		Message: truncate(message, maxMessageLength),
		Kind:    kindForStatus(status),
		Status:  status,
	}
}

// WithKind replaces the inferred kind.
func (e Error) WithKind(kind Kind) Error {
	if kind != "" {
		e.Kind = kind
	}
	return e
}

func (e Error) WithRequestID(id string) Error {
	e.RequestID = truncate(id, maxIDLength)
	return e
}

func (e Error) WithTraceID(id string) Error {
	e.TraceID = truncate(id, maxIDLength)
	return e
}

// WithDetails attaches JSON-serialisable fields. They are merged into the top level of the payload
// and never replace the envelope keys.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// Payload renders the envelope as written on the wire.
func (e Error) Payload(ctx context.Context) map[string]any {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	kind := e.Kind
	if kind == "" {
		kind = kindForStatus(status)
	}

	payload := make(map[string]any, len(e.Details)+6)
	for k, v := range e.Details {
		payload[k] = v
	}
	payload["error"] = e.Code
	payload["message"] = e.Message
	payload["kind"] = string(kind)
	payload["status"] = status

	requestID := e.RequestID
	if requestID == "" {
		requestID = truncate(middleware.GetReqID(ctx), maxIDLength)
	}
	if requestID != "" {
		payload["requestId"] = requestID
	}
	traceID := e.TraceID
	if traceID == "" {
		traceID = truncate(requestctx.TraceID(ctx), maxIDLength)
	}
	if traceID != "" {
		payload["traceId"] = traceID
	}
	return payload
}

// WriteError writes the envelope with its status code.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err.Payload(ctx))
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusUnprocessableEntity:
		return KindBusinessRule
	case status >= http.StatusInternalServerError:
		return KindServer
	default:
		return KindBusinessRule
	}
}

// truncate flattens line breaks and cuts on a rune boundary.
func truncate(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
