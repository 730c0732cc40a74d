// Package gormstore implements the repository contracts on PostgreSQL through gorm.
package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tienda-delivery/api/internal/platform/database"
	"github.com/tienda-delivery/api/internal/repositories"
)

// Registry wires every PostgreSQL repository over a shared pool.
type Registry struct {
	db         *gorm.DB
	closer     func(context.Context) error
	uow        *database.UnitOfWork
	products   *ProductRepository
	promotions *PromotionRepository
	orders     *OrderRepository
	receipts   *ReceiptRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises the registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	closer  func(context.Context) error
	txOpts  []database.TxOption
	migrate bool
}

// WithCloser registers the function invoked by Close, typically Provider.Close.
func WithCloser(closer func(context.Context) error) RegistryOption {
	return func(o *registryOptions) {
		o.closer = closer
	}
}

// WithTxOptions applies transaction options to every RunInTx call.
func WithTxOptions(opts ...database.TxOption) RegistryOption {
	return func(o *registryOptions) {
		o.txOpts = append(o.txOpts, opts...)
	}
}

// WithAutoMigrate creates or updates the schema while building the registry.
func WithAutoMigrate(enabled bool) RegistryOption {
	return func(o *registryOptions) {
		o.migrate = enabled
	}
}

// NewRegistry builds the repositories over db.
func NewRegistry(ctx context.Context, db *gorm.DB, opts ...RegistryOption) (*Registry, error) {
	if db == nil {
		return nil, errors.New("gormstore: db is required")
	}
	var options registryOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.migrate {
		if err := Migrate(ctx, db); err != nil {
			return nil, err
		}
	}

	products, _ := NewProductRepository(db)
	promotions, _ := NewPromotionRepository(db)
	orders, _ := NewOrderRepository(db)
	receipts, _ := NewReceiptRepository(db)
	return &Registry{
		db:         db,
		closer:     options.closer,
		uow:        database.NewUnitOfWork(db, options.txOpts...),
		products:   products,
		promotions: promotions,
		orders:     orders,
		receipts:   receipts,
	}, nil
}

// Migrate creates or updates every table managed by the store.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return database.WrapError("gormstore.migrate", db.WithContext(ctx).AutoMigrate(Models()...))
}

func (r *Registry) Close(ctx context.Context) error {
	if r.closer == nil {
		return nil
	}
	return r.closer(ctx)
}

func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }
func (r *Registry) Receipts() repositories.PaymentReceiptRepository {
	return r.receipts
}

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}
