package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tienda-delivery/api/internal/platform/auth"
	"github.com/tienda-delivery/api/internal/platform/httpx"
	"github.com/tienda-delivery/api/internal/platform/pagination"
	"github.com/tienda-delivery/api/internal/services"
)

type productRequest struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	Active     *bool           `json:"active"`
	CategoryID string          `json:"categoryId"`
	ImageURL   string          `json:"imageUrl"`
}

type promotionRequest struct {
	Code        string          `json:"code"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Discount    decimal.Decimal `json:"discount"`
	Active      *bool           `json:"active"`
	StartDate   *time.Time      `json:"startDate"`
	EndDate     *time.Time      `json:"endDate"`
	ProductIDs  []string        `json:"productIds"`
}

// AdminCatalogHandlers exposes admin product and promotion endpoints.
type AdminCatalogHandlers struct {
	authn      *auth.Authenticator
	catalog    services.CatalogService
	promotions services.PromotionService
	roles      []string
}

// NewAdminCatalogHandlers constructs admin catalog handlers. Roles default to auth.RoleAdmin.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, promotions services.PromotionService, roles ...string) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{authn: authn, catalog: catalog, promotions: promotions, roles: adminRoleSet(roles)}
}

// Routes registers admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(h.roles...))
		}
		g.Get("/products", h.listProducts)
		g.Post("/products", h.createProduct)
		g.Put("/products/{productID}", h.updateProduct)
		g.Get("/promotions", h.listPromotions)
		g.Post("/promotions", h.createPromotion)
		g.Put("/promotions/{promotionID}", h.updatePromotion)
		g.Delete("/promotions/{promotionID}", h.deactivatePromotion)
	})
}

func (h *AdminCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
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
		CategoryID:      strings.TrimSpace(query.Get("categoryId")),
		IncludeInactive: true,
		Actor:           actorFromRequest(r, h.roles),
		PageSize:        params.PageSize,
		PageToken:       params.PageToken,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPage(page, buildProductPayload))
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, strings.TrimSpace(chi.URLParam(r, "productID")))
}

func (h *AdminCatalogHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req productRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	cmd := services.UpsertProductCommand{
		ProductID:  productID,
		Name:       req.Name,
		Price:      req.Price,
		Stock:      req.Stock,
		Active:     req.Active == nil || *req.Active,
		CategoryID: req.CategoryID,
		ImageURL:   req.ImageURL,
		Actor:      actorFromRequest(r, h.roles),
	}

	var (
		product services.Product
		err     error
	)
	status := http.StatusOK
	if productID == "" {
		product, err = h.catalog.CreateProduct(ctx, cmd)
		status = http.StatusCreated
	} else {
		product, err = h.catalog.UpdateProduct(ctx, cmd)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, buildProductPayload(product))
}

func (h *AdminCatalogHandlers) listPromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "promotion service unavailable", http.StatusServiceUnavailable))
		return
	}
	query := r.URL.Query()
	params, err := pagination.Parse(query, pagination.Options{})
	if err != nil {
		writePaginationError(ctx, w, err)
		return
	}
	page, err := h.promotions.ListPromotions(ctx, services.ListPromotionsCommand{
		ActiveOnly: strings.EqualFold(strings.TrimSpace(query.Get("active")), "true"),
		Actor:      actorFromRequest(r, h.roles),
		PageSize:   params.PageSize,
		PageToken:  params.PageToken,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPage(page, buildPromotionPayload))
}

func (h *AdminCatalogHandlers) createPromotion(w http.ResponseWriter, r *http.Request) {
	h.savePromotion(w, r, "")
}

func (h *AdminCatalogHandlers) updatePromotion(w http.ResponseWriter, r *http.Request) {
	h.savePromotion(w, r, strings.TrimSpace(chi.URLParam(r, "promotionID")))
}

func (h *AdminCatalogHandlers) savePromotion(w http.ResponseWriter, r *http.Request, promotionID string) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "promotion service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req promotionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	cmd := services.UpsertPromotionCommand{
		PromotionID: promotionID,
		Code:        req.Code,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Discount:    req.Discount,
		Active:      req.Active == nil || *req.Active,
		ProductIDs:  req.ProductIDs,
		Actor:       actorFromRequest(r, h.roles),
	}
	if req.StartDate != nil {
		cmd.StartDate = req.StartDate.UTC()
	}
	if req.EndDate != nil {
		cmd.EndDate = req.EndDate.UTC()
	}

	var (
		promotion services.Promotion
		err       error
	)
	status := http.StatusOK
	if promotionID == "" {
		promotion, err = h.promotions.CreatePromotion(ctx, cmd)
		status = http.StatusCreated
	} else {
		promotion, err = h.promotions.UpdatePromotion(ctx, cmd)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, buildPromotionPayload(promotion))
}

func (h *AdminCatalogHandlers) deactivatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "promotion service unavailable", http.StatusServiceUnavailable))
		return
	}
	promotion, err := h.promotions.DeactivatePromotion(ctx, services.DeactivatePromotionCommand{
		PromotionID: strings.TrimSpace(chi.URLParam(r, "promotionID")),
		Actor:       actorFromRequest(r, h.roles),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPromotionPayload(promotion))
}
