package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/repositories"
)

type fakeRepositoryError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e fakeRepositoryError) Error() string { return "repository error" }
func (e fakeRepositoryError) IsNotFound() bool { return e.notFound }
func (e fakeRepositoryError) IsConflict() bool { return e.conflict }
func (e fakeRepositoryError) IsUnavailable() bool { return e.unavailable }

type txMarker struct{}

// memoryStore is a serialisable in-memory store whose RunInTx restores a snapshot on error.
type memoryStore struct {
	mu         sync.Mutex
	products   map[string]domain.Product
	promotions map[string]domain.Promotion
	orders     map[string]domain.Order
	receipts   []domain.PaymentReceipt

	insertOrderHook func(order domain.Order) error
	commits         int
	rollbacks       int
}

func newMemoryStore(products ...domain.Product) *memoryStore {
	store := &memoryStore{
		products:   make(map[string]domain.Product),
		promotions: make(map[string]domain.Promotion),
		orders:     make(map[string]domain.Order),
	}
	for _, product := range products {
		store.products[product.ID] = product
	}
	return store
}

func (s *memoryStore) with(ctx context.Context, fn func()) {
	if ctx.Value(txMarker{}) != nil {
		fn()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *memoryStore) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	productsSnap := cloneMap(s.products)
	ordersSnap := make(map[string]domain.Order, len(s.orders))
	for id, order := range s.orders {
		order.Items = slices.Clone(order.Items)
		ordersSnap[id] = order
	}
	receiptsSnap := slices.Clone(s.receipts)

	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.products = productsSnap
		s.orders = ordersSnap
		s.receipts = receiptsSnap
		s.rollbacks++
		return err
	}
	s.commits++
	return nil
}

func (s *memoryStore) stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

func (s *memoryStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memoryStore) receiptsFor(orderID string) []domain.PaymentReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentReceipt
	for _, receipt := range s.receipts {
		if receipt.OrderID == orderID {
			out = append(out, receipt)
		}
	}
	return out
}

func cloneMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type memoryProducts struct{ store *memoryStore }

func (r memoryProducts) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	var out []domain.Product
	r.store.with(ctx, func() {
		for _, id := range ids {
			if product, ok := r.store.products[id]; ok {
				out = append(out, product)
			}
		}
	})
	return out, nil
}

func (r memoryProducts) Get(ctx context.Context, productID string) (domain.Product, error) {
	var (
		product domain.Product
		ok      bool
	)
	r.store.with(ctx, func() { product, ok = r.store.products[productID] })
	if !ok {
		return domain.Product{}, fakeRepositoryError{notFound: true}
	}
	return product, nil
}

func (r memoryProducts) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	var items []domain.Product
	r.store.with(ctx, func() {
		for _, product := range r.store.products {
			if !filter.IncludeInactive && !product.Active {
				continue
			}
			items = append(items, product)
		}
	})
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.Product]{Items: items}, nil
}

func (r memoryProducts) Insert(ctx context.Context, product domain.Product) error {
	r.store.with(ctx, func() { r.store.products[product.ID] = product })
	return nil
}

func (r memoryProducts) Update(ctx context.Context, product domain.Product) error {
	var err error
	r.store.with(ctx, func() {
		if _, ok := r.store.products[product.ID]; !ok {
			err = fakeRepositoryError{notFound: true}
			return
		}
		r.store.products[product.ID] = product
	})
	return err
}

func (r memoryProducts) DecrementStock(ctx context.Context, productID string, quantity int) error {
	var err error
	r.store.with(ctx, func() {
		product, ok := r.store.products[productID]
		if !ok {
			err = repositories.NewStockProductMissingError("decrement", productID, quantity, nil)
			return
		}
		if product.Stock < quantity {
			err = repositories.NewInsufficientStockError("decrement", productID, product.Stock, quantity)
			return
		}
		product.Stock -= quantity
		r.store.products[productID] = product
	})
	return err
}

func (r memoryProducts) IncrementStock(ctx context.Context, productID string, quantity int) error {
	r.store.with(ctx, func() {
		product := r.store.products[productID]
		product.Stock += quantity
		r.store.products[productID] = product
	})
	return nil
}

type memoryPromotions struct{ store *memoryStore }

func (r memoryPromotions) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	var (
		found domain.Promotion
		ok    bool
	)
	r.store.with(ctx, func() {
		for _, promotion := range r.store.promotions {
			if strings.EqualFold(promotion.Code, code) {
				found, ok = promotion, true
				return
			}
		}
	})
	if !ok {
		return domain.Promotion{}, fakeRepositoryError{notFound: true}
	}
	return found, nil
}

func (r memoryPromotions) Get(ctx context.Context, promotionID string) (domain.Promotion, error) {
	var (
		promotion domain.Promotion
		ok        bool
	)
	r.store.with(ctx, func() { promotion, ok = r.store.promotions[promotionID] })
	if !ok {
		return domain.Promotion{}, fakeRepositoryError{notFound: true}
	}
	return promotion, nil
}

func (r memoryPromotions) List(ctx context.Context, filter repositories.PromotionListFilter) (domain.CursorPage[domain.Promotion], error) {
	var items []domain.Promotion
	r.store.with(ctx, func() {
		for _, promotion := range r.store.promotions {
			if filter.ActiveOnly && !promotion.Active {
				continue
			}
			items = append(items, promotion)
		}
	})
	return domain.CursorPage[domain.Promotion]{Items: items}, nil
}

func (r memoryPromotions) Insert(ctx context.Context, promotion domain.Promotion) error {
	var err error
	r.store.with(ctx, func() {
		for _, existing := range r.store.promotions {
			if promotion.Code != "" && strings.EqualFold(existing.Code, promotion.Code) {
				err = fakeRepositoryError{conflict: true}
				return
			}
		}
		r.store.promotions[promotion.ID] = promotion
	})
	return err
}

func (r memoryPromotions) Update(ctx context.Context, promotion domain.Promotion) error {
	r.store.with(ctx, func() { r.store.promotions[promotion.ID] = promotion })
	return nil
}

type memoryOrders struct{ store *memoryStore }

func (r memoryOrders) Insert(ctx context.Context, order domain.Order) error {
	var err error
	r.store.with(ctx, func() {
		if hook := r.store.insertOrderHook; hook != nil {
			if err = hook(order); err != nil {
				return
			}
		}
		for _, existing := range r.store.orders {
			if existing.OrderNumber == order.OrderNumber {
				err = fakeRepositoryError{conflict: true}
				return
			}
		}
		order.Receipts = nil
		r.store.orders[order.ID] = order
	})
	return err
}

func (r memoryOrders) ExistsByNumber(ctx context.Context, orderNumber string) (bool, error) {
	exists := false
	r.store.with(ctx, func() {
		for _, order := range r.store.orders {
			if order.OrderNumber == orderNumber {
				exists = true
				return
			}
		}
	})
	return exists, nil
}

func (r memoryOrders) hydrate(order domain.Order, opts repositories.OrderLoadOptions) domain.Order {
	if !opts.IncludeItems {
		order.Items = nil
	}
	if opts.IncludeReceipts {
		for _, receipt := range r.store.receipts {
			if receipt.OrderID == order.ID {
				order.Receipts = append(order.Receipts, receipt)
			}
		}
	}
	return order
}

func (r memoryOrders) FindByID(ctx context.Context, orderID string, opts repositories.OrderLoadOptions) (domain.Order, error) {
	var (
		order domain.Order
		ok    bool
	)
	r.store.with(ctx, func() {
		order, ok = r.store.orders[orderID]
		if ok {
			order = r.hydrate(order, opts)
		}
	})
	if !ok {
		return domain.Order{}, fakeRepositoryError{notFound: true}
	}
	return order, nil
}

func (r memoryOrders) FindByNumber(ctx context.Context, orderNumber string, opts repositories.OrderLoadOptions) (domain.Order, error) {
	var (
		order domain.Order
		ok    bool
	)
	r.store.with(ctx, func() {
		for _, candidate := range r.store.orders {
			if candidate.OrderNumber == orderNumber {
				order, ok = r.hydrate(candidate, opts), true
				return
			}
		}
	})
	if !ok {
		return domain.Order{}, fakeRepositoryError{notFound: true}
	}
	return order, nil
}

func (r memoryOrders) LockByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.FindByID(ctx, orderID, repositories.OrderLoadOptions{})
}

func (r memoryOrders) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	var items []domain.Order
	r.store.with(ctx, func() {
		for _, order := range r.store.orders {
			if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, order.Status) {
				continue
			}
			items = append(items, order)
		}
	})
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return domain.CursorPage[domain.Order]{Items: items}, nil
}

func (r memoryOrders) Transition(ctx context.Context, transition repositories.OrderTransition) error {
	var err error
	r.store.with(ctx, func() {
		order, ok := r.store.orders[transition.OrderID]
		if !ok {
			err = fakeRepositoryError{notFound: true}
			return
		}
		if order.Status != transition.From {
			err = fakeRepositoryError{conflict: true}
			return
		}
		at := transition.At
		order.Status = transition.To
		order.UpdatedAt = at
		switch transition.To {
		case domain.OrderStatusConfirmed:
			order.ConfirmedAt = &at
		case domain.OrderStatusPreparing:
			order.PreparingAt = &at
		case domain.OrderStatusOutForDelivery:
			order.OutForDeliveryAt = &at
		case domain.OrderStatusDelivered:
			order.DeliveredAt = &at
		case domain.OrderStatusCancelled:
			order.CancelledAt = &at
		}
		r.store.orders[order.ID] = order
	})
	return err
}

func (r memoryOrders) UpdateReceiptImage(ctx context.Context, orderID string, imageURL string, at time.Time) error {
	r.store.with(ctx, func() {
		order := r.store.orders[orderID]
		order.ReceiptImageURL = imageURL
		order.UpdatedAt = at
		r.store.orders[orderID] = order
	})
	return nil
}

type memoryReceipts struct{ store *memoryStore }

func (r memoryReceipts) Insert(ctx context.Context, receipt domain.PaymentReceipt) error {
	r.store.with(ctx, func() { r.store.receipts = append(r.store.receipts, receipt) })
	return nil
}

func (r memoryReceipts) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentReceipt, error) {
	var out []domain.PaymentReceipt
	r.store.with(ctx, func() {
		for i := len(r.store.receipts) - 1; i >= 0; i-- {
			if r.store.receipts[i].OrderID == orderID {
				out = append(out, r.store.receipts[i])
			}
		}
	})
	return out, nil
}

func (r memoryReceipts) Latest(ctx context.Context, orderID string) (domain.PaymentReceipt, error) {
	receipts, _ := r.ListByOrder(ctx, orderID)
	if len(receipts) == 0 {
		return domain.PaymentReceipt{}, fakeRepositoryError{notFound: true}
	}
	return receipts[0], nil
}

func (r memoryReceipts) Resolve(ctx context.Context, resolution repositories.ReceiptResolution) error {
	var err error
	r.store.with(ctx, func() {
		for i := range r.store.receipts {
			receipt := &r.store.receipts[i]
			if receipt.ID != resolution.ReceiptID {
				continue
			}
			if receipt.Status != domain.ReceiptStatusPending {
				err = fakeRepositoryError{conflict: true}
				return
			}
			at := resolution.At
			receipt.Status = resolution.Status
			receipt.Notes = resolution.Notes
			receipt.VerifiedAt = &at
			return
		}
		err = fakeRepositoryError{notFound: true}
	})
	return err
}

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureOrderEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.Type)
	}
	return out
}

type captureLogs struct {
	mu     sync.Mutex
	events []string
}

func (c *captureLogs) log(_ context.Context, event string, _ map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureLogs) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e == event {
			n++
		}
	}
	return n
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%04d", prefix, n)
	}
}

func money(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
