package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tienda-delivery/api/internal/di"
	"github.com/tienda-delivery/api/internal/handlers"
	"github.com/tienda-delivery/api/internal/platform/auth"
	"github.com/tienda-delivery/api/internal/platform/config"
	"github.com/tienda-delivery/api/internal/platform/database"
	"github.com/tienda-delivery/api/internal/platform/events"
	"github.com/tienda-delivery/api/internal/platform/idempotency"
	"github.com/tienda-delivery/api/internal/platform/observability"
	"github.com/tienda-delivery/api/internal/platform/requestctx"
	"github.com/tienda-delivery/api/internal/platform/secrets"
	"github.com/tienda-delivery/api/internal/repositories"
	"github.com/tienda-delivery/api/internal/repositories/gormstore"
	"github.com/tienda-delivery/api/internal/services"
)

const meterName = "github.com/tienda-delivery/api"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(observability.LoggerConfig{
		Service:     lookupEnv(envValues, "API_OBSERVABILITY_SERVICE_NAME", "tienda-delivery-api"),
		Version:     lookupEnv(envValues, "API_BUILD_VERSION", "dev"),
		Level:       lookupEnv(envValues, "API_LOG_LEVEL", "info"),
		Development: strings.EqualFold(lookupEnv(envValues, "API_ENVIRONMENT", "local"), "local"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets("Database.DSN", "Auth.JWTSecret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := services.BuildInfo{
		Version:     lookupEnv(envValues, "API_BUILD_VERSION", "dev"),
		CommitSHA:   lookupEnv(envValues, "API_BUILD_COMMIT_SHA", "unknown"),
		Environment: lookupEnv(envValues, "API_ENVIRONMENT", "local"),
		StartedAt:   startedAt,
	}

	dbProvider := database.NewProvider(cfg.Database, database.WithLogger(logger.Named("gorm")))
	db, err := dbProvider.DB(ctx)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	registry, err := gormstore.NewRegistry(ctx, db,
		gormstore.WithAutoMigrate(cfg.Database.AutoMigrate),
		gormstore.WithCloser(dbProvider.Close),
	)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.Idempotency.RedisAddr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Idempotency.RedisPassword,
			DB:       cfg.Idempotency.RedisDB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	publisher, err := newEventPublisher(ctx, cfg.Events, logger.Named("events"))
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close error", zap.Error(err))
		}
	}()

	healthRepo, err := newHealthRepository(dbProvider, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}
	container, err := di.NewContainer(cfg, registry, di.Runtime{
		Events: publisher,
		Health: healthRepo,
		Build:  buildInfo,
		Logger: zapServiceLogger(logger.Named("services")),
		NewID:  func() string { return ulid.Make().String() },
	})
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("database close error", zap.Error(err))
		}
	}()
	svc := container.Services

	authOpts := []auth.Option{}
	if cfg.Auth.Issuer != "" {
		authOpts = append(authOpts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	if cfg.Auth.Audience != "" {
		authOpts = append(authOpts, auth.WithAudience(cfg.Auth.Audience))
	}
	authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, authOpts...)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	var idempotencyStore idempotency.Store = idempotency.NewMemoryStore()
	var trackingLimiter, creationLimiter handlers.RateLimiter
	if redisClient != nil {
		idempotencyStore = idempotency.NewRedisStore(redisClient, idempotency.WithKeyPrefix(cfg.Idempotency.KeyPrefix))
		trackingLimiter = handlers.NewRedisRateLimiter(redisClient, "ratelimit:track:", cfg.RateLimits.TrackingPerMinute, time.Minute, logger.Named("ratelimit"))
		creationLimiter = handlers.NewRedisRateLimiter(redisClient, "ratelimit:orders:", cfg.RateLimits.OrderCreationPerMinute, time.Minute, logger.Named("ratelimit"))
	} else {
		trackingLimiter = handlers.NewMemoryRateLimiter(cfg.RateLimits.TrackingPerMinute, time.Minute, nil)
		creationLimiter = handlers.NewMemoryRateLimiter(cfg.RateLimits.OrderCreationPerMinute, time.Minute, nil)
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithOptionalKey(),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	var janitorWG sync.WaitGroup
	if cfg.Idempotency.CleanupInterval > 0 {
		janitorWG.Add(1)
		go func() {
			defer janitorWG.Done()
			idempotency.RunJanitor(janitorCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
		}()
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Payments,
		handlers.WithOrderIdempotency(idempotencyMiddleware),
		handlers.WithTrackingRateLimiter(trackingLimiter),
		handlers.WithOrderCreationRateLimiter(creationLimiter),
		handlers.WithOrderAdminRoles(cfg.Auth.AdminRoles...),
		handlers.WithOrderLogger(logger.Named("orders")),
	)
	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(authenticator, svc.Orders, svc.Payments, cfg.Auth.AdminRoles...)
	adminCatalogHandlers := handlers.NewAdminCatalogHandlers(authenticator, svc.Catalog, svc.Promotions, cfg.Auth.AdminRoles...)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	httpLogger := logger.Named("http")
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(cfg.Events.PubSubProjectID),
			observability.InjectLoggerMiddleware(httpLogger),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(otel.GetMeterProvider().Meter(meterName)),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(catalogHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminOrderHandlers.Routes, adminCatalogHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("tienda-delivery api listening", zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	janitorCancel()
	janitorWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func lookupEnv(env map[string]string, key, fallback string) string {
	if value := strings.TrimSpace(env[key]); value != "" {
		return value
	}
	return fallback
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(lookupEnv(env, "API_SECRET_FALLBACK_FILE", ".secrets.local")),
	}
	if project := lookupEnv(env, "API_SECRET_DEFAULT_PROJECT_ID", ""); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if credentials := lookupEnv(env, "API_SECRET_CREDENTIALS_FILE", ""); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// zapServiceLogger adapts the services logging hook to zap, preferring the request scoped logger.
func zapServiceLogger(base *zap.Logger) func(context.Context, string, map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.LoggerOr(ctx, base)
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}

func newEventPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger) (events.Publisher, error) {
	switch cfg.Driver {
	case "", "none", "log":
		return events.NewLogPublisher(logger), nil
	case "pubsub":
		var opts []option.ClientOption
		if host := strings.TrimSpace(cfg.PubSubEmulatorHost); host != "" {
			opts = append(opts,
				option.WithEndpoint(host),
				option.WithoutAuthentication(),
				option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID, opts...)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		publisher, err := events.NewPubSubPublisher(client.Topic(cfg.PubSubTopic), events.WithTopicOwnership())
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &clientClosingPublisher{Publisher: publisher, close: client.Close}, nil
	case "kafka":
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

// clientClosingPublisher releases the underlying client after the publisher flushes.
type clientClosingPublisher struct {
	events.Publisher
	close func() error
}

func (p *clientClosingPublisher) Close() error {
	return errors.Join(p.Publisher.Close(), p.close())
}

func newHealthRepository(db *database.Provider, redisClient *redis.Client) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{{
		Name:     "postgres",
		Required: true,
		Timeout:  1500 * time.Millisecond,
		Check:    db.Ping,
	}}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}
