package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultShutdownTimeout      = 20 * time.Second
	defaultDBMaxOpenConns       = 20
	defaultDBMaxIdleConns       = 5
	defaultDBConnMaxLifetime    = 30 * time.Minute
	defaultDBSlowThreshold      = 200 * time.Millisecond
	defaultCurrency             = "PEN"
	defaultDeliveryFee          = "5.00"
	defaultFreeDeliveryMin      = "50.00"
	defaultLeadTime             = 40 * time.Minute
	defaultOrderTimezone        = "America/Lima"
	defaultOrderNumberAttempts  = 50
	defaultOrderCreateAttempts  = 3
	defaultJWTIssuer            = "tienda-delivery"
	defaultAdminRole            = "admin"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultIdempotencyPrefix    = "idem:"
	defaultEventsDriver         = EventsDriverNone
	defaultPubSubTopic          = "order-events"
	defaultKafkaTopic           = "order-events"
	defaultRateLimitTracking    = 60
	defaultRateLimitOrders      = 10
	defaultServiceName          = "tienda-delivery-api"
	minJWTSecretLength          = 16
)

// Supported event publisher drivers.
const (
	EventsDriverNone   = "none"
	EventsDriverPubSub = "pubsub"
	EventsDriverKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Pricing       PricingConfig
	Orders        OrdersConfig
	Auth          AuthConfig
	Idempotency   IdempotencyConfig
	Events        EventsConfig
	RateLimits    RateLimitConfig
	Observability ObservabilityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig stores the PostgreSQL connection and pool parameters.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
	AutoMigrate     bool
}

// PricingConfig holds the currency and delivery fee policy.
type PricingConfig struct {
	Currency              string
	DeliveryFee           decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
}

// OrdersConfig controls order creation and fulfillment behaviour.
type OrdersConfig struct {
	DeliveryLeadTime  time.Duration
	Timezone          string
	Location          *time.Location
	NumberMaxAttempts int
	CreateMaxAttempts int
	StrictTransitions bool
	RestockOnCancel   bool
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret  string
	Issuer     string
	Audience   string
	AdminRoles []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	KeyPrefix        string
}

// EventsConfig selects and configures the order event publisher.
type EventsConfig struct {
	Driver             string
	PubSubProjectID    string
	PubSubTopic        string
	PubSubEmulatorHost string
	KafkaBrokers       []string
	KafkaTopic         string
}

// RateLimitConfig controls per-client request throttling of public endpoints.
type RateLimitConfig struct {
	TrackingPerMinute      int
	OrderCreationPerMinute int
}

// ObservabilityConfig names the service in logs and traces.
type ObservabilityConfig struct {
	ServiceName string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
	panicOnMissing  bool
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers use it to build the secret fetcher
// before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader (e.g. "Auth.JWTSecret").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissing = true
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	var invalid []string
	decimalField := func(name, key, fallback string) decimal.Decimal {
		value, ok := decimalWithDefault(lookup, key, fallback)
		if !ok {
			invalid = append(invalid, name)
		}
		return value
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Database: DatabaseConfig{
			DSN:             stringWithDefault(lookup, "API_DATABASE_DSN", ""),
			MaxOpenConns:    intWithDefault(lookup, "API_DATABASE_MAX_OPEN_CONNS", defaultDBMaxOpenConns),
			MaxIdleConns:    intWithDefault(lookup, "API_DATABASE_MAX_IDLE_CONNS", defaultDBMaxIdleConns),
			ConnMaxLifetime: durationWithDefault(lookup, "API_DATABASE_CONN_MAX_LIFETIME", defaultDBConnMaxLifetime),
			SlowThreshold:   durationWithDefault(lookup, "API_DATABASE_SLOW_THRESHOLD", defaultDBSlowThreshold),
			AutoMigrate:     boolWithDefault(lookup, "API_DATABASE_AUTO_MIGRATE", false),
		},
		Pricing: PricingConfig{
			Currency:              strings.ToUpper(stringWithDefault(lookup, "API_PRICING_CURRENCY", defaultCurrency)),
			DeliveryFee:           decimalField("Pricing.DeliveryFee", "API_PRICING_DELIVERY_FEE", defaultDeliveryFee),
			FreeDeliveryThreshold: decimalField("Pricing.FreeDeliveryThreshold", "API_PRICING_FREE_DELIVERY_THRESHOLD", defaultFreeDeliveryMin),
		},
		Orders: OrdersConfig{
			DeliveryLeadTime:  durationWithDefault(lookup, "API_ORDERS_DELIVERY_LEAD_TIME", defaultLeadTime),
			Timezone:          stringWithDefault(lookup, "API_ORDERS_TIMEZONE", defaultOrderTimezone),
			NumberMaxAttempts: intWithDefault(lookup, "API_ORDERS_NUMBER_MAX_ATTEMPTS", defaultOrderNumberAttempts),
			CreateMaxAttempts: intWithDefault(lookup, "API_ORDERS_CREATE_MAX_ATTEMPTS", defaultOrderCreateAttempts),
			StrictTransitions: boolWithDefault(lookup, "API_ORDERS_STRICT_TRANSITIONS", false),
			RestockOnCancel:   boolWithDefault(lookup, "API_ORDERS_RESTOCK_ON_CANCEL", false),
		},
		Auth: AuthConfig{
			JWTSecret:  stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
			Issuer:     stringWithDefault(lookup, "API_AUTH_JWT_ISSUER", defaultJWTIssuer),
			Audience:   stringWithDefault(lookup, "API_AUTH_JWT_AUDIENCE", ""),
			AdminRoles: csvWithDefault(lookup, "API_AUTH_ADMIN_ROLES"),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
			RedisAddr:        stringWithDefault(lookup, "API_IDEMPOTENCY_REDIS_ADDR", ""),
			RedisPassword:    stringWithDefault(lookup, "API_IDEMPOTENCY_REDIS_PASSWORD", ""),
			RedisDB:          intWithDefault(lookup, "API_IDEMPOTENCY_REDIS_DB", 0),
			KeyPrefix:        stringWithDefault(lookup, "API_IDEMPOTENCY_KEY_PREFIX", defaultIdempotencyPrefix),
		},
		Events: EventsConfig{
			Driver:             strings.ToLower(stringWithDefault(lookup, "API_EVENTS_DRIVER", defaultEventsDriver)),
			PubSubProjectID:    stringWithDefault(lookup, "API_EVENTS_PUBSUB_PROJECT_ID", ""),
			PubSubTopic:        stringWithDefault(lookup, "API_EVENTS_PUBSUB_TOPIC", defaultPubSubTopic),
			PubSubEmulatorHost: stringWithDefault(lookup, "API_EVENTS_PUBSUB_EMULATOR_HOST", ""),
			KafkaBrokers:       csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS"),
			KafkaTopic:         stringWithDefault(lookup, "API_EVENTS_KAFKA_TOPIC", defaultKafkaTopic),
		},
		RateLimits: RateLimitConfig{
			TrackingPerMinute:      intWithDefault(lookup, "API_RATELIMIT_TRACKING_PER_MIN", defaultRateLimitTracking),
			OrderCreationPerMinute: intWithDefault(lookup, "API_RATELIMIT_ORDERS_PER_MIN", defaultRateLimitOrders),
		},
		Observability: ObservabilityConfig{
			ServiceName: stringWithDefault(lookup, "API_OBSERVABILITY_SERVICE_NAME", defaultServiceName),
		},
	}

	if len(cfg.Auth.AdminRoles) == 0 {
		cfg.Auth.AdminRoles = []string{defaultAdminRole}
	}
	if location, err := time.LoadLocation(cfg.Orders.Timezone); err == nil {
		cfg.Orders.Location = location
	} else {
		invalid = append(invalid, "Orders.Timezone")
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Database.DSN", &cfg.Database.DSN},
		{"Auth.JWTSecret", &cfg.Auth.JWTSecret},
		{"Idempotency.RedisPassword", &cfg.Idempotency.RedisPassword},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissing {
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		missing = append(missing, "Database.DSN")
	}
	if cfg.Database.MaxOpenConns <= 0 {
		missing = append(missing, "Database.MaxOpenConns")
	}
	if cfg.Database.MaxIdleConns < 0 {
		missing = append(missing, "Database.MaxIdleConns")
	}
	if len(cfg.Pricing.Currency) != 3 {
		missing = append(missing, "Pricing.Currency")
	}
	if cfg.Pricing.DeliveryFee.IsNegative() {
		missing = append(missing, "Pricing.DeliveryFee")
	}
	if cfg.Pricing.FreeDeliveryThreshold.IsNegative() {
		missing = append(missing, "Pricing.FreeDeliveryThreshold")
	}
	if cfg.Orders.DeliveryLeadTime <= 0 {
		missing = append(missing, "Orders.DeliveryLeadTime")
	}
	if cfg.Orders.NumberMaxAttempts <= 0 {
		missing = append(missing, "Orders.NumberMaxAttempts")
	}
	if cfg.Orders.CreateMaxAttempts <= 0 {
		missing = append(missing, "Orders.CreateMaxAttempts")
	}
	if len(cfg.Auth.JWTSecret) < minJWTSecretLength {
		missing = append(missing, "Auth.JWTSecret")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}
	switch cfg.Events.Driver {
	case EventsDriverNone:
	case EventsDriverPubSub:
		if cfg.Events.PubSubProjectID == "" {
			missing = append(missing, "Events.PubSubProjectID")
		}
		if cfg.Events.PubSubTopic == "" {
			missing = append(missing, "Events.PubSubTopic")
		}
	case EventsDriverKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
		if cfg.Events.KafkaTopic == "" {
			missing = append(missing, "Events.KafkaTopic")
		}
	default:
		missing = append(missing, "Events.Driver")
	}
	if cfg.RateLimits.TrackingPerMinute < 0 {
		missing = append(missing, "RateLimits.TrackingPerMinute")
	}
	if cfg.RateLimits.OrderCreationPerMinute < 0 {
		missing = append(missing, "RateLimits.OrderCreationPerMinute")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func decimalWithDefault(lookup func(string) (string, bool), key, fallback string) (decimal.Decimal, bool) {
	raw := fallback
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		raw = strings.TrimSpace(value)
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return parsed.Round(2), true
}
