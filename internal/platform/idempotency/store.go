package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of a stored key.
type Status string

const (
	// DefaultTTL bounds how long a replayable response is kept.
	DefaultTTL = 24 * time.Hour

	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState describes the outcome of Reserve.
type ReservationState int

const (
	// ReservationStateNew lets the caller run the handler.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted carries a response to replay.
	ReservationStateCompleted
	// ReservationStatePending means another request holds the key.
	ReservationStatePending
)

type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted state of one idempotency key.
type Record struct {
	Key             string              `json:"key"`
	Fingerprint     string              `json:"fingerprint"`
	Status          Status              `json:"status"`
	ResponseStatus  int                 `json:"responseStatus,omitempty"`
	ResponseHeaders map[string][]string `json:"responseHeaders,omitempty"`
	ResponseBody    []byte              `json:"responseBody,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	ExpiresAt       time.Time           `json:"expiresAt"`
}

func pendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	now = now.UTC()
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(positiveTTL(ttl)),
	}
}

func positiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// evaluate maps an existing live record onto the reservation outcome for fingerprint.
func evaluate(record Record, fingerprint string) (Reservation, error) {
	switch {
	case record.Fingerprint != fingerprint:
		return Reservation{}, ErrFingerprintMismatch
	case record.Status == StatusCompleted:
		return Reservation{State: ReservationStateCompleted, Record: record}, nil
	default:
		return Reservation{State: ReservationStatePending, Record: record}, nil
	}
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Response is what the middleware captured from the wrapped handler.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and completed responses. Implementations must
// make Reserve atomic per key.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

func recordID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func completedRecord(key, fingerprint string, resp Response, createdAt, now time.Time, ttl time.Duration) Record {
	if createdAt.IsZero() {
		createdAt = now
	}
	record := Record{
		Key:             key,
		Fingerprint:     fingerprint,
		Status:          StatusCompleted,
		ResponseStatus:  resp.Status,
		ResponseHeaders: sanitizeHeaders(resp.Headers),
		CreatedAt:       createdAt,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
	if len(resp.Body) > 0 {
		record.ResponseBody = append([]byte(nil), resp.Body...)
	}
	return record
}

// unreplayedHeaders are hop-by-hop or per-response headers that must not be stored.
var unreplayedHeaders = map[string]struct{}{
	"Connection":          {},
	"Content-Length":      {},
	"Date":                {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Set-Cookie":          {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"X-Idempotent-Replay": {},
}

func sanitizeHeaders(header http.Header) map[string][]string {
	kept := make(map[string][]string, len(header))
	for name, values := range header {
		name = http.CanonicalHeaderKey(name)
		if _, skip := unreplayedHeaders[name]; skip || len(values) == 0 {
			continue
		}
		kept[name] = slices.Clone(values)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func headersFromRecord(values map[string][]string) http.Header {
	header := make(http.Header, len(values))
	for name, vals := range values {
		header[name] = slices.Clone(vals)
	}
	return header
}
