package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tienda-delivery/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order            = domain.Order
	OrderItem        = domain.OrderItem
	OrderStatus      = domain.OrderStatus
	PaymentReceipt   = domain.PaymentReceipt
	Product          = domain.Product
	Promotion        = domain.Promotion
	PricingBreakdown = domain.PricingBreakdown
)

// Actor identifies the caller of a service operation. Authentication happens upstream; services
// only consult the resolved predicate.
type Actor struct {
	ID    string
	Admin bool
}

// OrderService covers order creation, fulfillment transitions and read access.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	TrackOrder(ctx context.Context, orderNumber string) (Order, error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// PaymentVerificationService drives the receipt verification lifecycle.
type PaymentVerificationService interface {
	Approve(ctx context.Context, cmd ApprovePaymentCommand) (PaymentReceipt, error)
	Reject(ctx context.Context, cmd RejectPaymentCommand) (PaymentReceipt, error)
	Resubmit(ctx context.Context, cmd ResubmitReceiptCommand) (PaymentReceipt, error)
}

// CatalogService exposes the product catalog and its admin writes.
type CatalogService interface {
	ListProducts(ctx context.Context, cmd ListProductsCommand) (domain.CursorPage[Product], error)
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
}

// PromotionService manages promotions and their product sets.
type PromotionService interface {
	ListPromotions(ctx context.Context, cmd ListPromotionsCommand) (domain.CursorPage[Promotion], error)
	CreatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	UpdatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	DeactivatePromotion(ctx context.Context, cmd DeactivatePromotionCommand) (Promotion, error)
}

// CustomerInput is the contact and address block submitted at checkout.
type CustomerInput struct {
	Name          string
	Phone         string
	Email         string
	Address       string
	AddressDetail domain.AddressDetail
}

// CartLine is one requested product. ClientPrice is informational only.
type CartLine struct {
	ProductID   string
	Quantity    int
	ClientPrice *decimal.Decimal
}

// CreateOrderCommand is a fully formed cart snapshot submitted for checkout.
type CreateOrderCommand struct {
	UserID                string
	Customer              CustomerInput
	Items                 []CartLine
	PaymentMethod         string
	PromotionCode         string
	ReceiptImageURL       string
	Notes                 string
	EstimatedDeliveryTime *time.Time
}

// GetOrderCommand loads an order with its full receipt history.
type GetOrderCommand struct {
	OrderID string
	Actor   Actor
}

// ListOrdersCommand lists orders for the admin dashboard.
type ListOrdersCommand struct {
	Actor     Actor
	Statuses  []string
	PageSize  int
	PageToken string
}

// UpdateOrderStatusCommand requests a fulfillment transition.
type UpdateOrderStatusCommand struct {
	OrderID      string
	TargetStatus string
	Actor        Actor
}

// ApprovePaymentCommand approves the pending receipt of an order.
type ApprovePaymentCommand struct {
	OrderID string
	Actor   Actor
}

// RejectPaymentCommand rejects the pending receipt of an order.
type RejectPaymentCommand struct {
	OrderID string
	Notes   string
	Actor   Actor
}

// ResubmitReceiptCommand uploads a new receipt after a rejection. Guest orders prove ownership
// with the phone captured at checkout.
type ResubmitReceiptCommand struct {
	OrderNumber   string
	ImageURL      string
	CustomerPhone string
	Actor         Actor
}

// ListProductsCommand lists catalog products.
type ListProductsCommand struct {
	CategoryID      string
	IncludeInactive bool
	Actor           Actor
	PageSize        int
	PageToken       string
}

// UpsertProductCommand creates or updates a product. ProductID is ignored on create.
type UpsertProductCommand struct {
	ProductID  string
	Name       string
	Price      decimal.Decimal
	Stock      int
	Active     bool
	CategoryID string
	ImageURL   string
	Actor      Actor
}

// ListPromotionsCommand lists promotions.
type ListPromotionsCommand struct {
	ActiveOnly bool
	Actor      Actor
	PageSize   int
	PageToken  string
}

// UpsertPromotionCommand creates or updates a promotion. PromotionID is ignored on create.
type UpsertPromotionCommand struct {
	PromotionID string
	Code        string
	Title       string
	Description string
	Type        string
	Discount    decimal.Decimal
	Active      bool
	StartDate   time.Time
	EndDate     time.Time
	ProductIDs  []string
	Actor       Actor
}

// DeactivatePromotionCommand soft-deletes a promotion.
type DeactivatePromotionCommand struct {
	PromotionID string
	Actor       Actor
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ReceiptID      string         `json:"receiptId,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"
	paymentEventSubmitted   = "payment.receipt_submitted"
	paymentEventVerified    = "payment.receipt_verified"
	paymentEventRejected    = "payment.receipt_rejected"
)

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
