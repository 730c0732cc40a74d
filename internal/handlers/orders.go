package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/auth"
	"github.com/tienda-delivery/api/internal/platform/httpx"
	"github.com/tienda-delivery/api/internal/platform/observability"
	"github.com/tienda-delivery/api/internal/platform/requestctx"
	"github.com/tienda-delivery/api/internal/services"
)

const maxCartLines = 50

type createOrderRequest struct {
	Customer              customerRequest   `json:"customer"`
	Items                 []cartLineRequest `json:"items"`
	PaymentMethod         string            `json:"paymentMethod"`
	PromotionCode         string            `json:"promotionCode"`
	ReceiptImageURL       string            `json:"receiptImageUrl"`
	Notes                 string            `json:"notes"`
	EstimatedDeliveryTime *time.Time        `json:"estimatedDeliveryTime"`
}

type customerRequest struct {
	Name          string               `json:"name"`
	Phone         string               `json:"phone"`
	Email         string               `json:"email"`
	Address       string               `json:"address"`
	AddressDetail domain.AddressDetail `json:"addressDetail"`
}

type cartLineRequest struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price"`
}

type resubmitReceiptRequest struct {
	ImageURL      string `json:"imageUrl"`
	CustomerPhone string `json:"customerPhone"`
}

// OrderHandlers exposes the customer facing order endpoints addressed by order number.
type OrderHandlers struct {
	authn           *auth.Authenticator
	orders          services.OrderService
	payments        services.PaymentVerificationService
	idempotency     func(http.Handler) http.Handler
	trackingLimiter RateLimiter
	creationLimiter RateLimiter
	adminRoles      []string
	logger          *zap.Logger
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithOrderIdempotency wraps order creation with the given idempotency middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithTrackingRateLimiter bounds anonymous tracking lookups per client address.
func WithTrackingRateLimiter(limiter RateLimiter) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.trackingLimiter = limiter
	}
}

// WithOrderCreationRateLimiter bounds order submissions per client address.
func WithOrderCreationRateLimiter(limiter RateLimiter) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.creationLimiter = limiter
	}
}

// WithOrderAdminRoles sets the roles that bypass the guest ownership check.
func WithOrderAdminRoles(roles ...string) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.adminRoles = roles
	}
}

// WithOrderLogger sets the fallback logger used when the request carries none.
func WithOrderLogger(logger *zap.Logger) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.logger = logger
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentVerificationService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.adminRoles = adminRoleSet(h.adminRoles)
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalAuth())
	}

	r.Group(func(create chi.Router) {
		create.Use(rateLimited(h.creationLimiter, "orders.create"))
		if h.idempotency != nil {
			create.Use(h.idempotency)
		}
		create.Post("/", h.createOrder)
	})
	r.With(rateLimited(h.trackingLimiter, "orders.track")).Get("/{orderNumber}", h.trackOrder)
	r.With(rateLimited(h.trackingLimiter, "orders.track")).Post("/{orderNumber}/receipts", h.resubmitReceipt)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	if len(req.Items) > maxCartLines {
		writeBadRequest(ctx, w, "too many cart lines")
		return
	}

	items := make([]services.CartLine, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, services.CartLine{
			ProductID:   strings.TrimSpace(line.ProductID),
			Quantity:    line.Quantity,
			ClientPrice: line.Price,
		})
	}

	cmd := services.CreateOrderCommand{
		Customer: services.CustomerInput{
			Name:          req.Customer.Name,
			Phone:         req.Customer.Phone,
			Email:         req.Customer.Email,
			Address:       req.Customer.Address,
			AddressDetail: req.Customer.AddressDetail,
		},
		Items:                 items,
		PaymentMethod:         req.PaymentMethod,
		PromotionCode:         req.PromotionCode,
		ReceiptImageURL:       req.ReceiptImageURL,
		Notes:                 req.Notes,
		EstimatedDeliveryTime: req.EstimatedDeliveryTime,
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		cmd.UserID = strings.TrimSpace(identity.UID)
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	requestctx.LoggerOr(ctx, h.logger).Info("order created",
		zap.String("orderNumber", order.OrderNumber),
		zap.String("paymentMethod", string(order.PaymentMethod)),
		zap.String("total", formatMoney(order.Totals.Total)),
		zap.Int("items", len(order.Items)),
	)

	w.Header().Set("Location", "/api/v1/orders/"+url.PathEscape(order.OrderNumber))
	writeJSONResponse(w, http.StatusCreated, buildConfirmationPayload(order))
}

func (h *OrderHandlers) trackOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderNumber := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if orderNumber == "" {
		writeBadRequest(ctx, w, "order number is required")
		return
	}

	order, err := h.orders.TrackOrder(ctx, orderNumber)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, buildTrackingPayload(order))
}

func (h *OrderHandlers) resubmitReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderNumber := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if orderNumber == "" {
		writeBadRequest(ctx, w, "order number is required")
		return
	}

	var req resubmitReceiptRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	phone := strings.TrimSpace(req.CustomerPhone)
	if identity, ok := auth.IdentityFromContext(ctx); ok && phone == "" {
		phone = identity.ContactPhone()
	}

	receipt, err := h.payments.Resubmit(ctx, services.ResubmitReceiptCommand{
		OrderNumber:   orderNumber,
		ImageURL:      req.ImageURL,
		CustomerPhone: phone,
		Actor:         actorFromRequest(r, h.adminRoles),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	requestctx.LoggerOr(ctx, h.logger).Info("payment receipt resubmitted",
		zap.String("orderNumber", orderNumber),
		zap.String("phone", observability.MaskPhone(phone)),
	)

	payload := buildReceiptPayload(receipt)
	payload.ID = ""
	writeJSONResponse(w, http.StatusCreated, payload)
}
