package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tienda-delivery/api/internal/platform/config"
)

const defaultDialTimeout = 10 * time.Second

// ErrProviderClosed is returned once Close has been called.
var ErrProviderClosed = errors.New("database: provider is closed")

// Dialector opens the gorm dialector for a DSN. Tests swap it for an in-process driver.
type Dialector func(dsn string) gorm.Dialector

// Provider lazily opens a shared gorm connection pool.
type Provider struct {
	cfg         config.DatabaseConfig
	dialTimeout time.Duration
	dialector   Dialector
	logger      *zap.Logger

	mu sync.Mutex
	db *gorm.DB

	closed atomic.Bool
}

// ProviderOption customises the Provider behaviour.
type ProviderOption func(*Provider)

// WithDialTimeout overrides the timeout used for the initial ping.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.dialTimeout = timeout
		}
	}
}

// WithLogger routes gorm logging through the supplied zap logger.
func WithLogger(logger *zap.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDialector overrides how the gorm dialector is built from the DSN.
func WithDialector(d Dialector) ProviderOption {
	return func(p *Provider) {
		if d != nil {
			p.dialector = d
		}
	}
}

// NewProvider constructs a Provider using the supplied configuration.
func NewProvider(cfg config.DatabaseConfig, opts ...ProviderOption) *Provider {
	provider := &Provider{
		cfg:         cfg,
		dialTimeout: defaultDialTimeout,
		dialector: func(dsn string) gorm.Dialector {
			return postgres.New(postgres.Config{DSN: dsn})
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider
}

// DB returns the lazily initialised connection pool.
func (p *Provider) DB(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("database: context is required")
	}
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}
	if p.db != nil {
		return p.db, nil
	}

	db, err := p.open(ctx)
	if err != nil {
		return nil, err
	}
	p.db = db
	return db, nil
}

func (p *Provider) open(ctx context.Context) (*gorm.DB, error) {
	dsn := strings.TrimSpace(p.cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database: dsn is required")
	}

	db, err := gorm.Open(p.dialector(dsn), &gorm.Config{
		Logger:                 NewGormLogger(p.logger, p.cfg.SlowThreshold),
		TranslateError:         true,
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: pool: %w", err)
	}
	if p.cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(p.cfg.MaxOpenConns)
	}
	if p.cfg.MaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(p.cfg.MaxIdleConns)
	}
	if p.cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(p.cfg.ConnMaxLifetime)
	}

	pingCtx := ctx
	var cancel context.CancelFunc
	if p.dialTimeout > 0 {
		pingCtx, cancel = context.WithTimeout(ctx, p.dialTimeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, WrapError("database.ping", err)
	}
	return db, nil
}

// Ping verifies connectivity for readiness probes.
func (p *Provider) Ping(ctx context.Context) error {
	db, err := p.DB(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return WrapError("database.ping", sqlDB.PingContext(ctx))
}

// Close releases the pool. The Provider cannot be reused afterwards.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil || p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	db := p.db
	p.db = nil
	p.mu.Unlock()
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- sqlDB.Close()
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
