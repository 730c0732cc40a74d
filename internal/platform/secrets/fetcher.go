// Package secrets resolves secret:// references against Google Secret Manager
// with an in-process cache and a local fallback file for development.
package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	metricNamespace     = "github.com/tienda-delivery/api/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references. The zero value is not usable; call NewFetcher.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	project    string
	ttl        time.Duration
	now        func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]cacheEntry

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

type fetcherConfig struct {
	logger       *zap.Logger
	project      string
	fallbackPath string
	ttl          time.Duration
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
	now          func() time.Time
}

type Option func(*fetcherConfig)

func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithDefaultProject sets the project used when a reference has no ?project=.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.project = strings.TrimSpace(projectID) }
}

// WithFallbackFile points at a KEY=VALUE file consulted when Secret Manager
// is not reachable. An empty path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithCacheTTL bounds how long a resolved value is reused. Zero caches forever.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *fetcherConfig) {
		if ttl >= 0 {
			cfg.ttl = ttl
		}
	}
}

func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithSecretManagerClient injects a client, mostly for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

func withClock(now func() time.Time) Option {
	return func(cfg *fetcherConfig) { cfg.now = now }
}

// NewFetcher never fails on a missing Secret Manager client; it degrades to
// the fallback file instead.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		ttl:          defaultCacheTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	f := &Fetcher{
		logger:       cfg.logger,
		project:      cfg.project,
		ttl:          cfg.ttl,
		now:          cfg.now,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]cacheEntry),
	}

	var err error
	f.latency, err = cfg.meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution"))
	if err != nil {
		cfg.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	}
	f.cacheHits, err = cfg.meter.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache"))
	if err != nil {
		cfg.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
	}

	switch {
	case cfg.client != nil:
		f.client = cfg.client
	case cfg.project != "":
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager unavailable, using fallback file", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret lets the fetcher serve as the config secret resolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value behind ref, a URI of the form
// secret://NAME[?version=V&project=P] or secret://NAME#V.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := parsed.key()

	if value, ok := f.lookupCache(key); ok {
		f.record(ctx, start, "cache", parsed)
		return value, nil
	}

	project := parsed.Project
	if project == "" {
		project = f.project
	}
	if project != "" && f.client != nil {
		value, err := f.fetchRemote(ctx, project, parsed)
		if err == nil {
			f.storeCache(key, value)
			f.record(ctx, start, "remote", parsed)
			return value, nil
		}
		if !isFallbackError(err) {
			f.record(ctx, start, "error", parsed)
			return "", fmt.Errorf("secrets: fetch %s: %w", parsed.Canonical, err)
		}
		f.logger.Debug("secrets: falling back to local file", zap.String("secret", maskReference(parsed.Canonical)), zap.Error(err))
	}

	value, ok := f.lookupFallback(parsed)
	if !ok {
		f.record(ctx, start, "error", parsed)
		return "", fmt.Errorf("secrets: no value for %s", parsed.Canonical)
	}
	f.storeCache(key, value)
	f.record(ctx, start, "fallback", parsed)
	return value, nil
}

// Invalidate drops every cached version of ref.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.HasPrefix(key, parsed.Canonical+"#") {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) lookupCache(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	if f.ttl > 0 && f.now().Sub(entry.fetchedAt) >= f.ttl {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) storeCache(key, value string) {
	f.mu.Lock()
	f.cache[key] = cacheEntry{value: value, fetchedAt: f.now()}
	f.mu.Unlock()
}

func (f *Fetcher) fetchRemote(ctx context.Context, project string, ref parsedReference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.Secret, ref.version())
	resp, err := f.client.AccessSecretVersion(ctx,
		&secretmanagerpb.AccessSecretVersionRequest{Name: name},
		gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        2 * time.Second,
				Multiplier: 2,
			})
		}),
	)
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) lookupFallback(ref parsedReference) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		f.logger.Warn("secrets: fallback file unreadable", zap.Error(f.fallbackErr))
		return "", false
	}
	if value, ok := f.fallbackVals[ref.key()]; ok {
		return value, true
	}
	value, ok := f.fallbackVals[ref.Canonical]
	return value, ok
}

func (f *Fetcher) loadFallback() {
	f.fallbackVals = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	file, err := os.Open(f.fallbackPath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		f.fallbackErr = fmt.Errorf("secrets: open %s: %w", f.fallbackPath, err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		parsed, err := parseReference(strings.TrimSpace(name))
		if err != nil {
			continue
		}
		value = strings.TrimSpace(value)
		if parsed.Version == "" {
			f.fallbackVals[parsed.Canonical] = value
		}
		f.fallbackVals[parsed.key()] = value
	}
	if err := scanner.Err(); err != nil {
		f.fallbackErr = fmt.Errorf("secrets: read %s: %w", f.fallbackPath, err)
	}
}

func (f *Fetcher) record(ctx context.Context, start time.Time, source string, ref parsedReference) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	if f.latency != nil {
		f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), attrs)
	}
	if source == "cache" && f.cacheHits != nil {
		f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskReference(ref.Canonical))))
	}
}

type parsedReference struct {
	Canonical string
	Secret    string
	Version   string
	Project   string
}

func (r parsedReference) version() string {
	if r.Version == "" {
		return "latest"
	}
	return r.Version
}

func (r parsedReference) key() string {
	return r.Canonical + "#" + r.version()
}

// parseReference accepts secret:// URIs and the older sm:// spelling. A
// fragment pins the version, so secret://name#3 equals secret://name?version=3.
func parseReference(ref string) (parsedReference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}
	if strings.HasPrefix(ref, "sm://") {
		ref = "secret://" + strings.TrimPrefix(ref, "sm://")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" {
		return parsedReference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = strings.TrimSpace(u.Fragment)
	}
	return parsedReference{
		Canonical: "secret://" + secret,
		Secret:    secret,
		Version:   version,
		Project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func maskReference(ref string) string {
	h := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(h[:8])
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
