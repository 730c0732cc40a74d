package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/googleapis/gax-go/v2"

	"github.com/tienda-delivery/api/internal/domain"
)

var orderTestNow = time.Date(2025, time.June, 10, 15, 30, 0, 0, time.UTC)

type orderHarness struct {
	store   *memoryStore
	service OrderService
	events  *captureOrderEvents
	logs    *captureLogs
}

type orderHarnessOption func(*OrderServiceDeps, *OrderNumberGeneratorDeps)

func withTransitions(policy TransitionPolicy) orderHarnessOption {
	return func(deps *OrderServiceDeps, _ *OrderNumberGeneratorDeps) { deps.Transitions = policy }
}

func withRestockOnCancel() orderHarnessOption {
	return func(deps *OrderServiceDeps, _ *OrderNumberGeneratorDeps) { deps.RestockOnCancel = true }
}

func withSuffixes(values ...int) orderHarnessOption {
	return func(_ *OrderServiceDeps, numbers *OrderNumberGeneratorDeps) { numbers.Suffix = suffixSequence(values...) }
}

func seedProducts() []domain.Product {
	return []domain.Product{
		{ID: "prod_a", Name: "Ceviche", Price: money("10.00"), Stock: 10, Active: true},
		{ID: "prod_b", Name: "Chicha", Price: money("5.00"), Stock: 10, Active: true},
		{ID: "prod_low", Name: "Causa", Price: money("12.00"), Stock: 3, Active: true},
		{ID: "prod_off", Name: "Anticucho", Price: money("9.00"), Stock: 10, Active: false},
	}
}

func newOrderHarness(t *testing.T, opts ...orderHarnessOption) *orderHarness {
	t.Helper()
	store := newMemoryStore(seedProducts()...)
	store.promotions["promo_a"] = domain.Promotion{
		ID: "promo_a", Code: "CEVICHE10", Type: domain.PromotionTypeDiscount, Discount: money("10"),
		Active: true, ProductIDs: []string{"prod_a"},
	}
	events := &captureOrderEvents{}
	logs := &captureLogs{}

	engine, err := NewPricingEngine(PricingEngineDeps{
		Promotions: memoryPromotions{store: store},
		Policy:     testPolicy,
		Clock:      fixedClock(orderTestNow),
	})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}

	numberDeps := OrderNumberGeneratorDeps{Orders: memoryOrders{store: store}, Clock: fixedClock(orderTestNow)}
	deps := OrderServiceDeps{
		Orders:       memoryOrders{store: store},
		Products:     memoryProducts{store: store},
		Receipts:     memoryReceipts{store: store},
		UnitOfWork:   store,
		Pricing:      engine,
		Clock:        fixedClock(orderTestNow),
		IDGenerator:  sequentialIDs("id_"),
		Events:       events,
		Logger:       logs.log,
		RetryBackoff: gax.Backoff{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1},
	}
	for _, opt := range opts {
		opt(&deps, &numberDeps)
	}
	numbers, err := NewOrderNumberGenerator(numberDeps)
	if err != nil {
		t.Fatalf("NewOrderNumberGenerator: %v", err)
	}
	deps.Numbers = numbers

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return &orderHarness{store: store, service: svc, events: events, logs: logs}
}

func validCreateCommand(lines ...CartLine) CreateOrderCommand {
	if len(lines) == 0 {
		lines = []CartLine{{ProductID: "prod_a", Quantity: 2}, {ProductID: "prod_b", Quantity: 1}}
	}
	return CreateOrderCommand{
		Customer: CustomerInput{
			Name:    "Lucia Quispe",
			Phone:   "+51 987 654 321",
			Email:   "lucia@example.pe",
			Address: "Av. Larco 123, Miraflores",
		},
		Items:         lines,
		PaymentMethod: "yape",
	}
}

var admin = Actor{ID: "admin_1", Admin: true}

func TestOrderServiceCreateOrderSuccess(t *testing.T) {
	h := newOrderHarness(t)
	cmd := validCreateCommand()
	cmd.ReceiptImageURL = "https://cdn.example.pe/receipts/1.jpg"
	cmd.Notes = "<b>Sin</b> cebolla"

	order, err := h.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if !orderNumberPattern.MatchString(order.OrderNumber) {
		t.Fatalf("unexpected order number %s", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected PENDING, got %s", order.Status)
	}
	if order.PaymentMethod != domain.PaymentMethodYape {
		t.Fatalf("unexpected payment method %s", order.PaymentMethod)
	}
	assertMoney(t, "subtotal", order.Totals.Subtotal, "25.00")
	assertMoney(t, "delivery", order.Totals.DeliveryFee, "5.00")
	assertMoney(t, "total", order.Totals.Total, "30.00")
	if want := orderTestNow.Add(40 * time.Minute); !order.EstimatedDeliveryTime.Equal(want) {
		t.Fatalf("expected ETA %s, got %s", want, order.EstimatedDeliveryTime)
	}
	if order.Customer.Phone != "+51987654321" {
		t.Fatalf("expected normalised phone, got %q", order.Customer.Phone)
	}
	if order.Notes != "Sin cebolla" {
		t.Fatalf("expected sanitised notes, got %q", order.Notes)
	}
	if len(order.Items) != 2 || order.Items[0].ProductName != "Ceviche" {
		t.Fatalf("unexpected items %+v", order.Items)
	}

	if got := h.store.stock("prod_a"); got != 8 {
		t.Fatalf("expected prod_a stock 8, got %d", got)
	}
	if got := h.store.stock("prod_b"); got != 9 {
		t.Fatalf("expected prod_b stock 9, got %d", got)
	}

	receipts := h.store.receiptsFor(order.ID)
	if len(receipts) != 1 || receipts[0].Status != domain.ReceiptStatusPending {
		t.Fatalf("expected one pending receipt, got %+v", receipts)
	}
	if !slices.Equal(h.events.types(), []string{orderEventCreated}) {
		t.Fatalf("unexpected events %v", h.events.types())
	}
	if h.logs.count("orders.created") != 1 {
		t.Fatalf("expected orders.created log")
	}
}

func TestOrderServiceCreateOrderWithoutReceipt(t *testing.T) {
	h := newOrderHarness(t)
	cmd := validCreateCommand()
	cmd.PaymentMethod = "EFECTIVO"

	order, err := h.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(h.store.receiptsFor(order.ID)) != 0 {
		t.Fatalf("expected no receipts for cash order")
	}
	if order.PaymentMethod != domain.PaymentMethodEfectivo {
		t.Fatalf("expected efectivo, got %s", order.PaymentMethod)
	}
}

func TestOrderServiceCreateOrderUsesServerPrices(t *testing.T) {
	h := newOrderHarness(t)
	tampered := money("0.01")
	cmd := validCreateCommand(CartLine{ProductID: "prod_a", Quantity: 1, ClientPrice: &tampered})

	order, err := h.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	assertMoney(t, "unit price", order.Items[0].UnitPrice, "10.00")
	if h.logs.count("orders.create.price_mismatch") != 1 {
		t.Fatalf("expected price mismatch to be logged")
	}
}

func TestOrderServiceCreateOrderAppliesPromotion(t *testing.T) {
	h := newOrderHarness(t)
	cmd := validCreateCommand()
	cmd.PromotionCode = "ceviche10"

	order, err := h.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	assertMoney(t, "discount", order.Totals.Discount, "2.00")
	assertMoney(t, "total", order.Totals.Total, "28.00")
	if order.PromotionCode != "CEVICHE10" {
		t.Fatalf("expected promotion code recorded, got %q", order.PromotionCode)
	}
}

func TestOrderServiceCreateOrderPromotionNotApplicable(t *testing.T) {
	h := newOrderHarness(t)
	cmd := validCreateCommand(CartLine{ProductID: "prod_b", Quantity: 2})
	cmd.PromotionCode = "CEVICHE10"

	_, err := h.service.CreateOrder(context.Background(), cmd)
	if !errors.Is(err, ErrPromotionNotApplicable) {
		t.Fatalf("expected ErrPromotionNotApplicable, got %v", err)
	}
	if h.store.orderCount() != 0 {
		t.Fatalf("expected no order to be created")
	}
	if got := h.store.stock("prod_b"); got != 10 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestOrderServiceCreateOrderInsufficientStock(t *testing.T) {
	h := newOrderHarness(t)
	cmd := validCreateCommand(CartLine{ProductID: "prod_a", Quantity: 1}, CartLine{ProductID: "prod_low", Quantity: 5})

	_, err := h.service.CreateOrder(context.Background(), cmd)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected *InsufficientStockError, got %T", err)
	}
	if stockErr.ProductID != "prod_low" || stockErr.Available != 3 || stockErr.Requested != 5 {
		t.Fatalf("unexpected stock error %+v", stockErr)
	}
	if h.store.orderCount() != 0 {
		t.Fatalf("expected no order")
	}
	if h.store.stock("prod_a") != 10 || h.store.stock("prod_low") != 3 {
		t.Fatalf("expected stock unchanged")
	}
}

func TestOrderServiceCreateOrderRollsBackWhenDecrementFails(t *testing.T) {
	h := newOrderHarness(t)
	// Stock drops between the pre-check and the conditional decrement.
	h.store.insertOrderHook = func(domain.Order) error {
		product := h.store.products["prod_low"]
		product.Stock = 1
		h.store.products["prod_low"] = product
		return nil
	}
	cmd := validCreateCommand(CartLine{ProductID: "prod_a", Quantity: 2}, CartLine{ProductID: "prod_low", Quantity: 3})
	cmd.ReceiptImageURL = "https://cdn.example.pe/receipts/2.jpg"

	_, err := h.service.CreateOrder(context.Background(), cmd)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected *InsufficientStockError, got %v", err)
	}
	if stockErr.Available != 1 || stockErr.Requested != 3 {
		t.Fatalf("unexpected stock error %+v", stockErr)
	}
	if h.store.orderCount() != 0 {
		t.Fatalf("expected order insert to be rolled back")
	}
	if h.store.stock("prod_a") != 10 {
		t.Fatalf("expected prod_a decrement to be rolled back, got %d", h.store.stock("prod_a"))
	}
	if h.store.stock("prod_low") != 3 {
		t.Fatalf("expected snapshot stock restored, got %d", h.store.stock("prod_low"))
	}
	if len(h.store.receipts) != 0 {
		t.Fatalf("expected receipt insert to be rolled back")
	}
	if h.store.rollbacks != 1 {
		t.Fatalf("expected one rollback, got %d", h.store.rollbacks)
	}
	if len(h.events.types()) != 0 {
		t.Fatalf("expected no events on failure")
	}
}

func TestOrderServiceCreateOrderProductsUnavailable(t *testing.T) {
	h := newOrderHarness(t)
	cmd := validCreateCommand(
		CartLine{ProductID: "prod_off", Quantity: 1},
		CartLine{ProductID: "prod_a", Quantity: 1},
		CartLine{ProductID: "ghost", Quantity: 1},
	)

	_, err := h.service.CreateOrder(context.Background(), cmd)
	var unavailable *ProductsUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected *ProductsUnavailableError, got %v", err)
	}
	if !slices.Equal(unavailable.ProductIDs, []string{"ghost", "prod_off"}) {
		t.Fatalf("unexpected product ids %v", unavailable.ProductIDs)
	}
	if h.store.orderCount() != 0 {
		t.Fatalf("expected no order")
	}
}

func TestOrderServiceCreateOrderInvalidPaymentMethod(t *testing.T) {
	h := newOrderHarness(t)
	cmd := validCreateCommand()
	cmd.PaymentMethod = "bitcoin"

	_, err := h.service.CreateOrder(context.Background(), cmd)
	if !errors.Is(err, ErrInvalidPaymentMethod) {
		t.Fatalf("expected ErrInvalidPaymentMethod, got %v", err)
	}
}

func TestOrderServiceCreateOrderValidation(t *testing.T) {
	h := newOrderHarness(t)
	cmd := CreateOrderCommand{
		Customer: CustomerInput{Phone: "12", Email: "not-an-email"},
		Items: []CartLine{
			{ProductID: "prod_a", Quantity: 0},
			{ProductID: "", Quantity: 1},
		},
		PaymentMethod: "yape",
	}

	_, err := h.service.CreateOrder(context.Background(), cmd)
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	for _, field := range []string{"customer.name", "customer.phone", "customer.email", "customer.address", "items[0].quantity", "items[1].productId"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("expected field %s in %v", field, verr.Fields)
		}
	}

	empty := validCreateCommand()
	empty.Items = nil
	if _, err := h.service.CreateOrder(context.Background(), empty); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for empty cart, got %v", err)
	}
}

func TestOrderServiceCreateOrderAggregatesDuplicateLines(t *testing.T) {
	h := newOrderHarness(t)
	cmd := validCreateCommand(CartLine{ProductID: "prod_low", Quantity: 2}, CartLine{ProductID: "prod_low", Quantity: 2})

	_, err := h.service.CreateOrder(context.Background(), cmd)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.Requested != 4 {
		t.Fatalf("expected aggregated quantity 4 to exceed stock, got %v", err)
	}
}

func TestOrderServiceCreateOrderExplicitETA(t *testing.T) {
	h := newOrderHarness(t)
	eta := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.FixedZone("PET", -5*3600))
	cmd := validCreateCommand()
	cmd.EstimatedDeliveryTime = &eta

	order, err := h.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !order.EstimatedDeliveryTime.Equal(eta) || order.EstimatedDeliveryTime.Location() != time.UTC {
		t.Fatalf("expected ETA %s in UTC, got %s", eta, order.EstimatedDeliveryTime)
	}
}

func TestOrderServiceCreateOrderRetriesOnNumberCollision(t *testing.T) {
	h := newOrderHarness(t, withSuffixes(7, 8))
	collided := false
	h.store.insertOrderHook = func(order domain.Order) error {
		if !collided {
			collided = true
			// Another writer commits the same number after our existence check.
			h.store.orders["racer"] = domain.Order{ID: "racer", OrderNumber: order.OrderNumber}
		}
		return nil
	}

	order, err := h.service.CreateOrder(context.Background(), validCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.OrderNumber != "ORD-20250610-008" {
		t.Fatalf("expected retry to use the next suffix, got %s", order.OrderNumber)
	}
	if h.logs.count("orders.create.retry") != 1 {
		t.Fatalf("expected one retry log, got %d", h.logs.count("orders.create.retry"))
	}
	if h.store.stock("prod_a") != 8 {
		t.Fatalf("expected exactly one decrement, got stock %d", h.store.stock("prod_a"))
	}
}

func TestOrderServiceCreateOrderPersistentCollisionExhausts(t *testing.T) {
	h := newOrderHarness(t)
	h.store.insertOrderHook = func(domain.Order) error { return fakeRepositoryError{conflict: true} }

	_, err := h.service.CreateOrder(context.Background(), validCreateCommand())
	if !errors.Is(err, ErrOrderNumberExhausted) {
		t.Fatalf("expected ErrOrderNumberExhausted, got %v", err)
	}
	if h.logs.count("orders.create.retry") != defaultCreateAttempts {
		t.Fatalf("expected %d retries, got %d", defaultCreateAttempts, h.logs.count("orders.create.retry"))
	}
	if h.store.orderCount() != 0 {
		t.Fatalf("expected no order")
	}
}

func TestOrderServiceCreateOrderConcurrentCheckoutsNeverOversell(t *testing.T) {
	h := newOrderHarness(t)
	const buyers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		shortages int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := validCreateCommand(CartLine{ProductID: "prod_low", Quantity: 1})
			cmd.Customer.Phone = fmt.Sprintf("+5190000000%d", i)
			_, err := h.service.CreateOrder(context.Background(), cmd)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientStock):
				shortages++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("expected exactly 3 successful orders, got %d", succeeded)
	}
	if shortages != buyers-3 {
		t.Fatalf("expected %d shortages, got %d", buyers-3, shortages)
	}
	if got := h.store.stock("prod_low"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func createPendingOrder(t *testing.T, h *orderHarness) Order {
	t.Helper()
	order, err := h.service.CreateOrder(context.Background(), validCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return order
}

func TestOrderServiceUpdateStatusForwardJumps(t *testing.T) {
	h := newOrderHarness(t)
	order := createPendingOrder(t, h)

	updated, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "preparing", Actor: admin})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != domain.OrderStatusPreparing || updated.PreparingAt == nil {
		t.Fatalf("expected PREPARING with timestamp, got %+v", updated)
	}
	if updated.ConfirmedAt != nil {
		t.Fatalf("skipped states must not get timestamps")
	}

	updated, err = h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "DELIVERED", Actor: admin})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.DeliveredAt == nil || !updated.DeliveredAt.Equal(orderTestNow) {
		t.Fatalf("expected deliveredAt to be set, got %v", updated.DeliveredAt)
	}

	want := []string{orderEventCreated, orderEventStatusChanged, orderEventStatusChanged}
	if !slices.Equal(h.events.types(), want) {
		t.Fatalf("unexpected events %v", h.events.types())
	}
}

func TestOrderServiceUpdateStatusTerminalStatesAreLocked(t *testing.T) {
	for _, terminal := range []string{"DELIVERED", "CANCELLED"} {
		t.Run(terminal, func(t *testing.T) {
			h := newOrderHarness(t)
			order := createPendingOrder(t, h)
			if _, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: terminal, Actor: admin}); err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
			for _, target := range domain.OrderStatuses {
				_, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: string(target), Actor: admin})
				if !errors.Is(err, ErrOrderInvalidState) {
					t.Fatalf("%s -> %s: expected ErrOrderInvalidState, got %v", terminal, target, err)
				}
			}
		})
	}
}

func TestOrderServiceUpdateStatusRejectsBackwardMoves(t *testing.T) {
	h := newOrderHarness(t)
	order := createPendingOrder(t, h)
	if _, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "OUT_FOR_DELIVERY", Actor: admin}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	_, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "CONFIRMED", Actor: admin})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestOrderServiceUpdateStatusSameStatusIsNoop(t *testing.T) {
	h := newOrderHarness(t)
	order := createPendingOrder(t, h)

	updated, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "PENDING", Actor: admin})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != domain.OrderStatusPending {
		t.Fatalf("expected PENDING, got %s", updated.Status)
	}
	if h.logs.count("orders.status.updated") != 0 {
		t.Fatalf("expected no status log for no-op")
	}
}

func TestOrderServiceUpdateStatusSequentialPolicy(t *testing.T) {
	h := newOrderHarness(t, withTransitions(TransitionsSequential))
	order := createPendingOrder(t, h)

	_, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "PREPARING", Actor: admin})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState for skipped step, got %v", err)
	}
	if _, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "CONFIRMED", Actor: admin}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "CANCELLED", Actor: admin}); err != nil {
		t.Fatalf("cancel should be allowed from CONFIRMED: %v", err)
	}
}

func TestOrderServiceCancelDoesNotRestockByDefault(t *testing.T) {
	h := newOrderHarness(t)
	order := createPendingOrder(t, h)

	updated, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "CANCELLED", Actor: admin})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.CancelledAt == nil {
		t.Fatalf("expected cancelledAt")
	}
	if h.store.stock("prod_a") != 8 {
		t.Fatalf("expected stock to stay decremented, got %d", h.store.stock("prod_a"))
	}
}

func TestOrderServiceCancelRestocksWhenEnabled(t *testing.T) {
	h := newOrderHarness(t, withRestockOnCancel())
	order := createPendingOrder(t, h)

	if _, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "CANCELLED", Actor: admin}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if h.store.stock("prod_a") != 10 || h.store.stock("prod_b") != 10 {
		t.Fatalf("expected stock restored, got a=%d b=%d", h.store.stock("prod_a"), h.store.stock("prod_b"))
	}
}

func TestOrderServiceUpdateStatusErrors(t *testing.T) {
	h := newOrderHarness(t)
	order := createPendingOrder(t, h)

	if _, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "CONFIRMED", Actor: Actor{ID: "user_1"}}); !errors.Is(err, ErrOrderPermissionDenied) {
		t.Fatalf("expected ErrOrderPermissionDenied, got %v", err)
	}
	if _, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, TargetStatus: "SHIPPED", Actor: admin}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
	if _, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "missing", TargetStatus: "CONFIRMED", Actor: admin}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderServiceTrackOrder(t *testing.T) {
	h := newOrderHarness(t)
	cmd := validCreateCommand()
	cmd.ReceiptImageURL = "https://cdn.example.pe/receipts/3.jpg"
	created, err := h.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	tracked, err := h.service.TrackOrder(context.Background(), " "+strings.ToLower(created.OrderNumber)+" ")
	if err != nil {
		t.Fatalf("TrackOrder: %v", err)
	}
	if tracked.ID != created.ID || len(tracked.Items) != 2 || len(tracked.Receipts) != 1 {
		t.Fatalf("unexpected tracked order %+v", tracked)
	}

	if _, err := h.service.TrackOrder(context.Background(), "ORD-19990101-000"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := h.service.TrackOrder(context.Background(), "  "); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceAdminReads(t *testing.T) {
	h := newOrderHarness(t)
	order := createPendingOrder(t, h)

	if _, err := h.service.GetOrder(context.Background(), GetOrderCommand{OrderID: order.ID}); !errors.Is(err, ErrOrderPermissionDenied) {
		t.Fatalf("expected ErrOrderPermissionDenied, got %v", err)
	}
	got, err := h.service.GetOrder(context.Background(), GetOrderCommand{OrderID: order.ID, Actor: admin})
	if err != nil || got.ID != order.ID {
		t.Fatalf("GetOrder: %v %+v", err, got)
	}

	page, err := h.service.ListOrders(context.Background(), ListOrdersCommand{Actor: admin, Statuses: []string{"pending"}})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 pending order, got %d", len(page.Items))
	}
	if _, err := h.service.ListOrders(context.Background(), ListOrdersCommand{Actor: admin, Statuses: []string{"lost"}}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
	if _, err := h.service.ListOrders(context.Background(), ListOrdersCommand{Actor: admin, PageToken: "%%%"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for bad token, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		policy   TransitionPolicy
		from, to domain.OrderStatus
		want     bool
	}{
		{TransitionsForward, domain.OrderStatusPending, domain.OrderStatusDelivered, true},
		{TransitionsForward, domain.OrderStatusPreparing, domain.OrderStatusConfirmed, false},
		{TransitionsForward, domain.OrderStatusOutForDelivery, domain.OrderStatusCancelled, true},
		{TransitionsForward, domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{TransitionsForward, domain.OrderStatusCancelled, domain.OrderStatusPending, false},
		{TransitionsSequential, domain.OrderStatusPending, domain.OrderStatusConfirmed, true},
		{TransitionsSequential, domain.OrderStatusPending, domain.OrderStatusPreparing, false},
		{TransitionsSequential, domain.OrderStatusPreparing, domain.OrderStatusCancelled, true},
	}
	for _, tc := range cases {
		if got := canTransition(tc.policy, tc.from, tc.to); got != tc.want {
			t.Fatalf("canTransition(%d, %s, %s) = %v, want %v", tc.policy, tc.from, tc.to, got, tc.want)
		}
	}
}
