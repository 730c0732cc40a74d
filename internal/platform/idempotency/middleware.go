package idempotency

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tienda-delivery/api/internal/platform/auth"
	"github.com/tienda-delivery/api/internal/platform/httpx"
	"github.com/tienda-delivery/api/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 255
)

type clockFunc func() time.Time

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	methods    map[string]struct{}
	clock      clockFunc
	logger     *zap.Logger
	optional   bool
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		name = strings.TrimSpace(name)
		if name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed idempotency records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMethods restricts the HTTP methods guarded by the middleware. Defaults to POST.
func WithMethods(methods ...string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		set := make(map[string]struct{}, len(methods))
		for _, method := range methods {
			if method = strings.ToUpper(strings.TrimSpace(method)); method != "" {
				set[method] = struct{}{}
			}
		}
		if len(set) > 0 {
			cfg.methods = set
		}
	}
}

// WithLogger sets the fallback logger used when the request carries none.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// WithOptionalKey lets requests without the header through unguarded.
func WithOptionalKey() MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.optional = true
	}
}

func WithClock(clock clockFunc) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware replays the stored response when a request repeats its idempotency key.
// Keys are scoped to the signed-in user, or to the client address for guests.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		methods:    map[string]struct{}{http.MethodPost: {}},
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return func(next http.Handler) http.Handler {
		return &guard{store: store, cfg: cfg, next: next}
	}
}

type guard struct {
	store Store
	cfg   middlewareConfig
	next  http.Handler
}

func (g *guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := g.cfg.methods[r.Method]; !ok {
		g.next.ServeHTTP(w, r)
		return
	}
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(g.cfg.headerName))
	if key == "" {
		if g.cfg.optional {
			g.next.ServeHTTP(w, r)
			return
		}
		reject(w, r, http.StatusBadRequest, "idempotency_key_required", g.cfg.headerName+" header is required")
		return
	}
	if !validKey(key) {
		reject(w, r, http.StatusBadRequest, "idempotency_key_invalid", "idempotency key must be 1-255 printable ASCII characters")
		return
	}

	logger := requestctx.LoggerOr(ctx, g.cfg.logger)
	body, err := bufferBody(r)
	if err != nil {
		reject(w, r, http.StatusBadRequest, "invalid_request", "unable to read request body")
		return
	}

	owner := requester(r)
	fingerprint := requestFingerprint(r, body, owner)
	storeKey := scopedKey(key, owner)

	reservation, err := g.store.Reserve(ctx, storeKey, fingerprint, g.cfg.clock().UTC(), g.cfg.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		reject(w, r, http.StatusConflict, "idempotency_key_conflict", "idempotency key already used for a different request")
		return
	case err != nil:
		logger.Error("idempotency reserve failed", zap.Error(err))
		reject(w, r, http.StatusInternalServerError, "idempotency_store_error", "unable to process idempotency key")
		return
	}

	switch reservation.State {
	case ReservationStateCompleted:
		logger.Debug("idempotent replay", zap.String("key", key), zap.Int("status", reservation.Record.ResponseStatus))
		replay(w, reservation.Record)
		return
	case ReservationStatePending:
		reject(w, r, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
		return
	case ReservationStateNew:
	default:
		reject(w, r, http.StatusInternalServerError, "idempotency_store_error", "unexpected idempotency state")
		return
	}

	rec := &bufferedResponse{header: make(http.Header)}
	g.next.ServeHTTP(rec, r.WithContext(requestctx.WithIdempotencyKey(ctx, key)))

	if rec.statusCode() >= http.StatusInternalServerError {
		if err := g.store.Release(ctx, storeKey, fingerprint); err != nil {
			logger.Warn("idempotency release failed", zap.String("key", key), zap.Error(err))
		}
		rec.flush(w)
		return
	}

	resp := Response{Status: rec.statusCode(), Headers: rec.header.Clone(), Body: rec.bytes()}
	if err := g.store.SaveResponse(ctx, storeKey, fingerprint, resp, g.cfg.clock().UTC(), g.cfg.ttl); err != nil {
		logger.Error("idempotency persist failed", zap.String("key", key), zap.Error(err))
		if err := g.store.Release(ctx, storeKey, fingerprint); err != nil {
			logger.Warn("idempotency release failed", zap.String("key", key), zap.Error(err))
		}
		reject(w, r, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
		return
	}
	rec.flush(w)
}

func validKey(key string) bool {
	if len(key) == 0 || len(key) > maxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// requester identifies who owns a key: the token subject, else the client address.
func requester(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && identity.UID != "" {
		return "user:" + identity.UID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if host == "" {
		host = "unknown"
	}
	return "guest:" + host
}

func requestFingerprint(r *http.Request, body []byte, owner string) string {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}
	parts := []string{
		r.Method,
		r.URL.EscapedPath(),
		r.URL.RawQuery,
		strings.ToLower(mediaType),
		owner,
		sha256Hex(body),
	}
	return sha256Hex([]byte(strings.Join(parts, "\n")))
}

func scopedKey(key, owner string) string {
	return owner + "|" + key
}

func reject(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}

func replay(w http.ResponseWriter, record Record) {
	dst := w.Header()
	for name, values := range headersFromRecord(record.ResponseHeaders) {
		dst[name] = values
	}
	dst.Set(replayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

// bufferedResponse holds the handler output until the outcome is persisted.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedResponse) bytes() []byte {
	if b.body.Len() == 0 {
		return nil
	}
	return append([]byte(nil), b.body.Bytes()...)
}

func (b *bufferedResponse) flush(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = values
	}
	w.WriteHeader(b.statusCode())
	if b.body.Len() > 0 {
		_, _ = w.Write(b.body.Bytes())
	}
}
