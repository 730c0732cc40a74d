package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/auth"
	"github.com/tienda-delivery/api/internal/services"
)

var testNow = time.Date(2025, time.March, 14, 12, 30, 0, 0, time.UTC)

type stubOrderService struct {
	createFn func(context.Context, services.CreateOrderCommand) (services.Order, error)
	trackFn  func(context.Context, string) (services.Order, error)
	getFn    func(context.Context, services.GetOrderCommand) (services.Order, error)
	listFn   func(context.Context, services.ListOrdersCommand) (domain.CursorPage[services.Order], error)
	updateFn func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) TrackOrder(ctx context.Context, orderNumber string) (services.Order, error) {
	if s.trackFn != nil {
		return s.trackFn(ctx, orderNumber)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) GetOrder(ctx context.Context, cmd services.GetOrderCommand) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, cmd)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) ListOrders(ctx context.Context, cmd services.ListOrdersCommand) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, cmd)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, nil
}

type stubPaymentService struct {
	approveFn  func(context.Context, services.ApprovePaymentCommand) (services.PaymentReceipt, error)
	rejectFn   func(context.Context, services.RejectPaymentCommand) (services.PaymentReceipt, error)
	resubmitFn func(context.Context, services.ResubmitReceiptCommand) (services.PaymentReceipt, error)
}

func (s *stubPaymentService) Approve(ctx context.Context, cmd services.ApprovePaymentCommand) (services.PaymentReceipt, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, cmd)
	}
	return services.PaymentReceipt{}, nil
}

func (s *stubPaymentService) Reject(ctx context.Context, cmd services.RejectPaymentCommand) (services.PaymentReceipt, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, cmd)
	}
	return services.PaymentReceipt{}, nil
}

func (s *stubPaymentService) Resubmit(ctx context.Context, cmd services.ResubmitReceiptCommand) (services.PaymentReceipt, error) {
	if s.resubmitFn != nil {
		return s.resubmitFn(ctx, cmd)
	}
	return services.PaymentReceipt{}, nil
}

type stubCatalogService struct {
	listFn   func(context.Context, services.ListProductsCommand) (domain.CursorPage[services.Product], error)
	createFn func(context.Context, services.UpsertProductCommand) (services.Product, error)
	updateFn func(context.Context, services.UpsertProductCommand) (services.Product, error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, cmd services.ListProductsCommand) (domain.CursorPage[services.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, cmd)
	}
	return domain.CursorPage[services.Product]{}, nil
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Product{}, nil
}

type stubPromotionService struct {
	listFn       func(context.Context, services.ListPromotionsCommand) (domain.CursorPage[services.Promotion], error)
	createFn     func(context.Context, services.UpsertPromotionCommand) (services.Promotion, error)
	updateFn     func(context.Context, services.UpsertPromotionCommand) (services.Promotion, error)
	deactivateFn func(context.Context, services.DeactivatePromotionCommand) (services.Promotion, error)
}

func (s *stubPromotionService) ListPromotions(ctx context.Context, cmd services.ListPromotionsCommand) (domain.CursorPage[services.Promotion], error) {
	if s.listFn != nil {
		return s.listFn(ctx, cmd)
	}
	return domain.CursorPage[services.Promotion]{}, nil
}

func (s *stubPromotionService) CreatePromotion(ctx context.Context, cmd services.UpsertPromotionCommand) (services.Promotion, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Promotion{}, nil
}

func (s *stubPromotionService) UpdatePromotion(ctx context.Context, cmd services.UpsertPromotionCommand) (services.Promotion, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Promotion{}, nil
}

func (s *stubPromotionService) DeactivatePromotion(ctx context.Context, cmd services.DeactivatePromotionCommand) (services.Promotion, error) {
	if s.deactivateFn != nil {
		return s.deactivateFn(ctx, cmd)
	}
	return services.Promotion{}, nil
}

func money(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func sampleOrder() services.Order {
	confirmed := testNow.Add(5 * time.Minute)
	return services.Order{
		ID:          "01HZXORDER",
		OrderNumber: "ORD-20250314-007",
		UserID:      "user_1",
		Customer: domain.Customer{
			Name:    "Rosa Quispe",
			Phone:   "987654321",
			Email:   "rosa@example.pe",
			Address: "Av. Arequipa 123, Lima",
		},
		Totals: domain.OrderTotals{
			Subtotal:    money("40"),
			Discount:    money("4"),
			DeliveryFee: money("5"),
			Total:       money("41"),
		},
		Currency:              "PEN",
		PaymentMethod:         domain.PaymentMethodYape,
		Status:                domain.OrderStatusConfirmed,
		EstimatedDeliveryTime: testNow.Add(40 * time.Minute),
		ConfirmedAt:           &confirmed,
		CreatedAt:             testNow,
		UpdatedAt:             confirmed,
		Items: []domain.OrderItem{{
			ID:          "01HZXITEM",
			OrderID:     "01HZXORDER",
			ProductID:   "prod_lomo",
			ProductName: "Lomo saltado",
			Quantity:    2,
			UnitPrice:   money("20"),
			Subtotal:    money("40"),
		}},
		Receipts: []domain.PaymentReceipt{
			{ID: "rcpt_1", OrderID: "01HZXORDER", ImageURL: "https://img.example/1.jpg", Status: domain.ReceiptStatusRejected, Notes: "monto incorrecto", CreatedAt: testNow},
			{ID: "rcpt_2", OrderID: "01HZXORDER", ImageURL: "https://img.example/2.jpg", Status: domain.ReceiptStatusPending, CreatedAt: testNow.Add(time.Minute)},
		},
	}
}

func withIdentity(r *http.Request, uid string, roles ...string) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{UID: uid, Roles: roles}))
}

func newRoutedRequest(method, path, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serveRoutes(routes func(chi.Router), req *http.Request) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	routes(router)
	return serveHandler(router, req)
}

func serveHandler(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %q: %v", rr.Body.String(), err)
	}
	return body
}
