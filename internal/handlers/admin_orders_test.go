package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/auth"
	"github.com/tienda-delivery/api/internal/services"
)

func TestAdminOrderHandlersRequireAdminRole(t *testing.T) {
	authn, err := auth.NewAuthenticator("admin-test-signing-secret", auth.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	called := false
	orders := &stubOrderService{
		listFn: func(context.Context, services.ListOrdersCommand) (domain.CursorPage[services.Order], error) {
			called = true
			return domain.CursorPage[services.Order]{}, nil
		},
	}
	router := chi.NewRouter()
	NewAdminOrderHandlers(authn, orders, nil).Routes(router)

	if rr := serveHandler(router, newRoutedRequest(http.MethodGet, "/orders", "")); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	customerToken, err := authn.Sign("user_1", []string{auth.RoleCustomer}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	req := newRoutedRequest(http.MethodGet, "/orders", "")
	req.Header.Set("Authorization", "Bearer "+customerToken)
	if rr := serveHandler(router, req); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer token, got %d", rr.Code)
	}

	adminToken, err := authn.Sign("staff_1", []string{auth.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	req = newRoutedRequest(http.MethodGet, "/orders", "")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	if rr := serveHandler(router, req); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin token, got %d", rr.Code)
	}
	if !called {
		t.Fatalf("expected list to reach the service")
	}
}

func TestAdminOrderHandlersListOrders(t *testing.T) {
	var captured services.ListOrdersCommand
	orders := &stubOrderService{
		listFn: func(_ context.Context, cmd services.ListOrdersCommand) (domain.CursorPage[services.Order], error) {
			captured = cmd
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder()}, NextPageToken: "next"}, nil
		},
	}
	req := withIdentity(newRoutedRequest(http.MethodGet, "/orders?status=PENDING,confirmed&status=PENDING&pageSize=5", ""), "staff_1", auth.RoleAdmin)
	rr := serveRoutes(NewAdminOrderHandlers(nil, orders, nil).Routes, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !captured.Actor.Admin || captured.Actor.ID != "staff_1" {
		t.Fatalf("expected admin actor, got %+v", captured.Actor)
	}
	if captured.PageSize != 5 || len(captured.Statuses) != 2 || captured.Statuses[0] != "PENDING" || captured.Statuses[1] != "confirmed" {
		t.Fatalf("unexpected command %+v", captured)
	}

	body := decodeBody(t, rr)
	if body["nextPageToken"] != "next" {
		t.Fatalf("expected next page token, got %v", body["nextPageToken"])
	}
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one order, got %v", body["items"])
	}
	first, _ := items[0].(map[string]any)
	if first["id"] != "01HZXORDER" {
		t.Fatalf("admin payload must expose the internal id, got %v", first["id"])
	}
	receipts, _ := first["receipts"].([]any)
	if len(receipts) != 2 {
		t.Fatalf("admin payload must include receipt history, got %v", first["receipts"])
	}
}

func TestAdminOrderHandlersListOrdersRejectsBadPageSize(t *testing.T) {
	req := withIdentity(newRoutedRequest(http.MethodGet, "/orders?pageSize=abc", ""), "staff_1", auth.RoleAdmin)
	rr := serveRoutes(NewAdminOrderHandlers(nil, &stubOrderService{}, nil).Routes, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "invalid_page_size" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestAdminOrderHandlersUpdateStatus(t *testing.T) {
	var captured services.UpdateOrderStatusCommand
	orders := &stubOrderService{
		updateFn: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusPreparing
			return order, nil
		},
	}
	handlers := NewAdminOrderHandlers(nil, orders, nil)

	req := withIdentity(newRoutedRequest(http.MethodPut, "/orders/01HZXORDER/status", `{"status": "PREPARING"}`), "staff_1", auth.RoleAdmin)
	rr := serveRoutes(handlers.Routes, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "01HZXORDER" || captured.TargetStatus != "PREPARING" || !captured.Actor.Admin {
		t.Fatalf("unexpected command %+v", captured)
	}
	if body := decodeBody(t, rr); body["status"] != "PREPARING" {
		t.Fatalf("unexpected status %v", body["status"])
	}

	req = withIdentity(newRoutedRequest(http.MethodPut, "/orders/01HZXORDER/status", `{}`), "staff_1", auth.RoleAdmin)
	if rr := serveRoutes(handlers.Routes, req); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing status, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersUpdateStatusInvalidTransition(t *testing.T) {
	orders := &stubOrderService{
		updateFn: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}
	req := withIdentity(newRoutedRequest(http.MethodPut, "/orders/01HZXORDER/status", `{"status": "PENDING"}`), "staff_1", auth.RoleAdmin)
	rr := serveRoutes(NewAdminOrderHandlers(nil, orders, nil).Routes, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "invalid_status_transition" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestAdminOrderHandlersUpdateStatusHidesTransactionPrefix(t *testing.T) {
	orders := &stubOrderService{
		updateFn: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("transaction: %w", fmt.Errorf("%w: DELIVERED -> PENDING", services.ErrOrderInvalidState))
		},
	}
	req := withIdentity(newRoutedRequest(http.MethodPut, "/orders/01HZXORDER/status", `{"status": "PENDING"}`), "staff_1", auth.RoleAdmin)
	rr := serveRoutes(NewAdminOrderHandlers(nil, orders, nil).Routes, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["message"] != "DELIVERED -> PENDING" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestAdminOrderHandlersPaymentDecisions(t *testing.T) {
	verifiedAt := testNow.Add(time.Minute)
	var rejected services.RejectPaymentCommand
	payments := &stubPaymentService{
		approveFn: func(_ context.Context, cmd services.ApprovePaymentCommand) (services.PaymentReceipt, error) {
			if cmd.OrderID != "01HZXORDER" || !cmd.Actor.Admin {
				t.Fatalf("unexpected approve command %+v", cmd)
			}
			return services.PaymentReceipt{ID: "rcpt_2", Status: domain.ReceiptStatusVerified, VerifiedAt: &verifiedAt, CreatedAt: testNow}, nil
		},
		rejectFn: func(_ context.Context, cmd services.RejectPaymentCommand) (services.PaymentReceipt, error) {
			rejected = cmd
			return services.PaymentReceipt{ID: "rcpt_2", Status: domain.ReceiptStatusRejected, Notes: cmd.Notes, CreatedAt: testNow}, nil
		},
	}
	handlers := NewAdminOrderHandlers(nil, &stubOrderService{}, payments)

	req := withIdentity(newRoutedRequest(http.MethodPost, "/orders/01HZXORDER/payment:approve", ""), "staff_1", auth.RoleAdmin)
	rr := serveRoutes(handlers.Routes, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["status"] != "VERIFIED" || body["verifiedAt"] == nil {
		t.Fatalf("unexpected approval %v", body)
	}

	req = withIdentity(newRoutedRequest(http.MethodPost, "/orders/01HZXORDER/payment:reject", `{"notes": "monto incorrecto"}`), "staff_1", auth.RoleAdmin)
	rr = serveRoutes(handlers.Routes, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rejected.Notes != "monto incorrecto" {
		t.Fatalf("expected notes to be forwarded, got %+v", rejected)
	}
}

func TestAdminOrderHandlersPaymentErrors(t *testing.T) {
	payments := &stubPaymentService{
		approveFn: func(context.Context, services.ApprovePaymentCommand) (services.PaymentReceipt, error) {
			return services.PaymentReceipt{}, services.ErrNoPendingReceipt
		},
		rejectFn: func(context.Context, services.RejectPaymentCommand) (services.PaymentReceipt, error) {
			return services.PaymentReceipt{}, services.ErrRejectionRequiresNotes
		},
	}
	handlers := NewAdminOrderHandlers(nil, &stubOrderService{}, payments)

	req := withIdentity(newRoutedRequest(http.MethodPost, "/orders/01HZXORDER/payment:approve", ""), "staff_1", auth.RoleAdmin)
	rr := serveRoutes(handlers.Routes, req)
	if rr.Code != http.StatusConflict || decodeBody(t, rr)["error"] != "no_pending_receipt" {
		t.Fatalf("expected 409 no_pending_receipt, got %d", rr.Code)
	}

	req = withIdentity(newRoutedRequest(http.MethodPost, "/orders/01HZXORDER/payment:reject", `{"notes": ""}`), "staff_1", auth.RoleAdmin)
	rr = serveRoutes(handlers.Routes, req)
	if rr.Code != http.StatusBadRequest || decodeBody(t, rr)["error"] != "rejection_notes_required" {
		t.Fatalf("expected 400 rejection_notes_required, got %d", rr.Code)
	}
}
