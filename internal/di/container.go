package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/oklog/ulid/v2"

	"github.com/tienda-delivery/api/internal/platform/config"
	"github.com/tienda-delivery/api/internal/repositories"
	"github.com/tienda-delivery/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders     services.OrderService
	Payments   services.PaymentVerificationService
	Catalog    services.CatalogService
	Promotions services.PromotionService
	System     services.SystemService
	Pricing    *services.PricingEngine
}

// Runtime carries collaborators that live outside the repository registry.
type Runtime struct {
	Events services.OrderEventPublisher
	Health repositories.HealthRepository
	Build  services.BuildInfo
	Logger func(ctx context.Context, event string, fields map[string]any)
	Clock  func() time.Time
	NewID  func() string
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies from configuration and a repository registry.
func NewContainer(cfg config.Config, reg repositories.Registry, rt Runtime) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if rt.Clock == nil {
		rt.Clock = func() time.Time { return time.Now().UTC() }
	}
	if rt.NewID == nil {
		rt.NewID = func() string { return ulid.Make().String() }
	}

	svc, err := buildServices(cfg, reg, rt)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases the repository registry.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, rt Runtime) (Services, error) {
	var svc Services

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Promotions: reg.Promotions(),
		Policy: services.DeliveryFeePolicy{
			FlatFee:               cfg.Pricing.DeliveryFee,
			FreeDeliveryThreshold: cfg.Pricing.FreeDeliveryThreshold,
		},
		Currency: cfg.Pricing.Currency,
		Clock:    rt.Clock,
		Logger:   rt.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	numbers, err := services.NewOrderNumberGenerator(services.OrderNumberGeneratorDeps{
		Orders:      reg.Orders(),
		Clock:       rt.Clock,
		Location:    cfg.Orders.Location,
		MaxAttempts: cfg.Orders.NumberMaxAttempts,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order number generator: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:           reg.Orders(),
		Products:         reg.Products(),
		Receipts:         reg.Receipts(),
		UnitOfWork:       reg,
		Pricing:          pricing,
		Numbers:          numbers,
		Clock:            rt.Clock,
		IDGenerator:      rt.NewID,
		Events:           rt.Events,
		Logger:           rt.Logger,
		DeliveryLeadTime: cfg.Orders.DeliveryLeadTime,
		CreateAttempts:   cfg.Orders.CreateMaxAttempts,
		RetryBackoff:     creationBackoff(),
		Transitions:      transitionPolicy(cfg.Orders),
		RestockOnCancel:  cfg.Orders.RestockOnCancel,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentVerificationService(services.PaymentVerificationServiceDeps{
		Orders:      reg.Orders(),
		Receipts:    reg.Receipts(),
		UnitOfWork:  reg,
		Clock:       rt.Clock,
		IDGenerator: rt.NewID,
		Events:      rt.Events,
		Logger:      rt.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment verification service: %w", err)
	}
	svc.Payments = paymentSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:    reg.Products(),
		Clock:       rt.Clock,
		IDGenerator: rt.NewID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions:  reg.Promotions(),
		Products:    reg.Products(),
		Clock:       rt.Clock,
		IDGenerator: rt.NewID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	if rt.Health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: rt.Health,
			Clock:            rt.Clock,
			Build:            rt.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func transitionPolicy(cfg config.OrdersConfig) services.TransitionPolicy {
	if cfg.StrictTransitions {
		return services.TransitionsSequential
	}
	return services.TransitionsForward
}

func creationBackoff() gax.Backoff {
	return gax.Backoff{
		Initial:    50 * time.Millisecond,
		Max:        500 * time.Millisecond,
		Multiplier: 2,
	}
}
