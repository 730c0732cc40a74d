package repositories

import (
	"context"
	"time"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/pagination"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Promotions() PromotionRepository
	Orders() OrderRepository
	Receipts() PaymentReceiptRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary. Repositories
// invoked with the ctx passed to fn participate in the same transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	CategoryID      string
	IncludeInactive bool
	PageSize        int
	Cursor          pagination.Cursor
}

// ProductRepository persists catalog products and guards their stock counter.
type ProductRepository interface {
	// FindByIDs returns the products matching ids. Missing ids are silently omitted.
	FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	Get(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	// DecrementStock atomically subtracts quantity when enough stock remains. Otherwise it
	// returns a *StockError matching ErrInsufficientStock or ErrStockProductMissing.
	DecrementStock(ctx context.Context, productID string, quantity int) error
	IncrementStock(ctx context.Context, productID string, quantity int) error
}

// PromotionListFilter narrows promotion listings.
type PromotionListFilter struct {
	ActiveOnly bool
	PageSize   int
	Cursor     pagination.Cursor
}

// PromotionRepository persists promotions and their product sets.
type PromotionRepository interface {
	// FindByCode resolves a redemption code case-insensitively.
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	Get(ctx context.Context, promotionID string) (domain.Promotion, error)
	List(ctx context.Context, filter PromotionListFilter) (domain.CursorPage[domain.Promotion], error)
	Insert(ctx context.Context, promotion domain.Promotion) error
	Update(ctx context.Context, promotion domain.Promotion) error
}

// OrderLoadOptions controls which associations are hydrated when reading an order.
type OrderLoadOptions struct {
	IncludeItems    bool
	IncludeReceipts bool
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	Statuses []domain.OrderStatus
	PageSize int
	Cursor   pagination.Cursor
}

// OrderTransition describes a guarded status change. The update only applies while the
// stored status still equals From.
type OrderTransition struct {
	OrderID string
	From    domain.OrderStatus
	To      domain.OrderStatus
	At      time.Time
}

// OrderRepository persists orders together with their line items.
type OrderRepository interface {
	// Insert persists the order header and its items. A duplicate order number yields a
	// RepositoryError with IsConflict.
	Insert(ctx context.Context, order domain.Order) error
	ExistsByNumber(ctx context.Context, orderNumber string) (bool, error)
	FindByID(ctx context.Context, orderID string, opts OrderLoadOptions) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string, opts OrderLoadOptions) (domain.Order, error)
	// LockByID reads the order header holding a row lock for the rest of the transaction.
	LockByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// Transition applies a status change and stamps the matching transition timestamp.
	// Returns a RepositoryError with IsConflict when the stored status no longer matches.
	Transition(ctx context.Context, transition OrderTransition) error
	UpdateReceiptImage(ctx context.Context, orderID string, imageURL string, at time.Time) error
}

// ReceiptResolution moves a pending receipt to a final verification status.
type ReceiptResolution struct {
	ReceiptID string
	Status    domain.ReceiptStatus
	Notes     string
	At        time.Time
}

// PaymentReceiptRepository persists the append-only receipt history of an order.
type PaymentReceiptRepository interface {
	Insert(ctx context.Context, receipt domain.PaymentReceipt) error
	// ListByOrder returns receipts newest first.
	ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentReceipt, error)
	// Latest returns the newest receipt or a RepositoryError with IsNotFound.
	Latest(ctx context.Context, orderID string) (domain.PaymentReceipt, error)
	// Resolve updates a receipt only while it is still PENDING; otherwise it returns a
	// RepositoryError with IsConflict.
	Resolve(ctx context.Context, resolution ReceiptResolution) error
}
