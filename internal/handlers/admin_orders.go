package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tienda-delivery/api/internal/platform/auth"
	"github.com/tienda-delivery/api/internal/platform/httpx"
	"github.com/tienda-delivery/api/internal/platform/pagination"
	"github.com/tienda-delivery/api/internal/platform/requestctx"
	"github.com/tienda-delivery/api/internal/services"
)

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type rejectPaymentRequest struct {
	Notes string `json:"notes"`
}

// AdminOrderHandlers exposes order operations for store staff.
type AdminOrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentVerificationService
	roles    []string
}

// NewAdminOrderHandlers constructs admin order handlers. Roles default to auth.RoleAdmin.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentVerificationService, roles ...string) *AdminOrderHandlers {
	return &AdminOrderHandlers{authn: authn, orders: orders, payments: payments, roles: adminRoleSet(roles)}
}

// Routes registers admin order endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(h.roles...))
		}
		g.Get("/orders", h.listOrders)
		g.Get("/orders/{orderID}", h.getOrder)
		g.Put("/orders/{orderID}/status", h.updateStatus)
		g.Post("/orders/{orderID}/payment:approve", h.approvePayment)
		g.Post("/orders/{orderID}/payment:reject", h.rejectPayment)
	})
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	params, err := pagination.Parse(query, pagination.Options{})
	if err != nil {
		writePaginationError(ctx, w, err)
		return
	}

	page, err := h.orders.ListOrders(ctx, services.ListOrdersCommand{
		Actor:     actorFromRequest(r, h.roles),
		Statuses:  parseFilterValues(query["status"]),
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPage(page, buildAdminOrderPayload))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		writeBadRequest(ctx, w, "order id is required")
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID: orderID,
		Actor:   actorFromRequest(r, h.roles),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAdminOrderPayload(order))
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req updateOrderStatusRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeBadRequest(ctx, w, "status is required")
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:      orderID,
		TargetStatus: req.Status,
		Actor:        actorFromRequest(r, h.roles),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	requestctx.Logger(ctx).Info("order status updated",
		zap.String("orderNumber", order.OrderNumber),
		zap.String("status", string(order.Status)),
	)
	writeJSONResponse(w, http.StatusOK, buildAdminOrderPayload(order))
}

func (h *AdminOrderHandlers) approvePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	receipt, err := h.payments.Approve(ctx, services.ApprovePaymentCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Actor:   actorFromRequest(r, h.roles),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildReceiptPayload(receipt))
}

func (h *AdminOrderHandlers) rejectPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req rejectPaymentRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	receipt, err := h.payments.Reject(ctx, services.RejectPaymentCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Notes:   req.Notes,
		Actor:   actorFromRequest(r, h.roles),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildReceiptPayload(receipt))
}

// parseFilterValues accepts both repeated and comma separated query values.
func parseFilterValues(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	values := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			value := strings.TrimSpace(part)
			if value == "" {
				continue
			}
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
			values = append(values, value)
		}
	}
	return values
}
