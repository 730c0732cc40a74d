package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tienda-delivery/api/internal/platform/httpx"
	"github.com/tienda-delivery/api/internal/platform/pagination"
	"github.com/tienda-delivery/api/internal/platform/requestctx"
	"github.com/tienda-delivery/api/internal/services"
)

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

func writePaginationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pagination.ErrInvalidPageSize):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_page_size", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_page_token", "pageToken is invalid", http.StatusBadRequest))
	}
}

// writeServiceError translates a service error into the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var validation *services.ValidationError
	var unavailable *services.ProductsUnavailableError
	var stock *services.InsufficientStockError

	switch {
	case errors.As(err, &validation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request validation failed", http.StatusBadRequest).
			WithDetails(map[string]any{"fields": validation.Fields}))
	case errors.Is(err, services.ErrInvalidPaymentMethod):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payment_method", "payment method is not supported", http.StatusBadRequest).WithKind(httpx.KindBusinessRule))
	case errors.Is(err, services.ErrRejectionRequiresNotes):
		httpx.WriteError(ctx, w, httpx.NewError("rejection_notes_required", "rejection notes are required", http.StatusBadRequest).WithKind(httpx.KindBusinessRule))
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrCatalogInvalidInput),
		errors.Is(err, services.ErrPromotionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimSentinelPrefix(err), http.StatusBadRequest))

	case errors.As(err, &unavailable):
		httpx.WriteError(ctx, w, httpx.NewError("products_unavailable", "some products are no longer available", http.StatusConflict).
			WithKind(httpx.KindUnavailableProduct).
			WithDetails(map[string]any{"productIds": unavailable.ProductIDs}))
	case errors.Is(err, services.ErrProductsUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("products_unavailable", "some products are no longer available", http.StatusConflict).WithKind(httpx.KindUnavailableProduct))
	case errors.As(err, &stock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stock.Error(), http.StatusConflict).
			WithKind(httpx.KindInsufficientStock).
			WithDetails(map[string]any{
				"productId":   stock.ProductID,
				"productName": stock.ProductName,
				"available":   stock.Available,
				"requested":   stock.Requested,
			}))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock", http.StatusConflict).WithKind(httpx.KindInsufficientStock))

	case errors.Is(err, services.ErrInvalidPromotion):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_promotion", "promotion code is not valid", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPromotionNotActive):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_active", "promotion is not active", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPromotionWrongType):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_wrong_type", "promotion cannot be redeemed at checkout", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPromotionNotApplicable):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_applicable", "promotion does not apply to any product in the cart", http.StatusUnprocessableEntity))

	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_found", "promotion not found", http.StatusNotFound))

	case errors.Is(err, services.ErrOrderPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "operation not permitted", http.StatusForbidden))

	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", trimSentinelPrefix(err), http.StatusConflict).WithKind(httpx.KindBusinessRule))
	case errors.Is(err, services.ErrNoPendingReceipt):
		httpx.WriteError(ctx, w, httpx.NewError("no_pending_receipt", "order has no receipt awaiting verification", http.StatusConflict).WithKind(httpx.KindBusinessRule))
	case errors.Is(err, services.ErrReceiptNotRejected):
		httpx.WriteError(ctx, w, httpx.NewError("receipt_not_rejected", "a new receipt can only be submitted after a rejection", http.StatusConflict).WithKind(httpx.KindBusinessRule))
	case errors.Is(err, services.ErrPromotionCodeTaken):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_code_taken", "promotion code already in use", http.StatusConflict).WithKind(httpx.KindBusinessRule))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "the resource was modified concurrently, retry the request", http.StatusConflict))

	case errors.Is(err, services.ErrOrderUnavailable), errors.Is(err, services.ErrOrderNumberExhausted):
		requestctx.Logger(ctx).Error("service unavailable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "service temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))

	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "an unexpected error occurred", http.StatusInternalServerError))
	}
}

// trimSentinelPrefix keeps only the detail after the sentinel text, dropping any
// operation prefixes stacked in front of it.
func trimSentinelPrefix(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{
		services.ErrOrderInvalidInput,
		services.ErrCatalogInvalidInput,
		services.ErrPromotionInvalidInput,
		services.ErrOrderInvalidState,
	} {
		if _, detail, found := strings.Cut(msg, sentinel.Error()+": "); found {
			return detail
		}
	}
	return msg
}
