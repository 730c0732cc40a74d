package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/httpx"
	"github.com/tienda-delivery/api/internal/platform/pagination"
	"github.com/tienda-delivery/api/internal/services"
)

const maxCatalogPageSize = 200

// CatalogHandlers serves the public product catalog.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the public catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	params, err := pagination.Parse(query, pagination.Options{MaxPageSize: maxCatalogPageSize})
	if err != nil {
		writePaginationError(ctx, w, err)
		return
	}

	page, err := h.catalog.ListProducts(ctx, services.ListProductsCommand{
		CategoryID: strings.TrimSpace(query.Get("categoryId")),
		PageSize:   params.PageSize,
		PageToken:  params.PageToken,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPage(page, buildPublicProductPayload))
}

// buildPublicProductPayload omits admin bookkeeping fields.
func buildPublicProductPayload(product domain.Product) productPayload {
	payload := buildProductPayload(product)
	payload.UpdatedAt = ""
	return payload
}
