package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tienda-delivery/api/internal/platform/httpx"
)

// RouteRegistrar adds routes to a chi group.
type RouteRegistrar func(r chi.Router)

const (
	defaultAPIPrefix      = "/api/v1"
	defaultRequestTimeout = 30 * time.Second
	defaultMaxBodyBytes   = 1 << 20
)

// mount is a route group under the API prefix. An empty prefix mounts the
// registrars directly on the prefix; a mount with no registrars answers 501.
type mount struct {
	prefix     string
	registrars []RouteRegistrar
}

type routerConfig struct {
	basePath     string
	timeout      time.Duration
	maxBodyBytes int64
	middlewares  []func(http.Handler) http.Handler
	health       *HealthHandlers

	public mount
	orders mount
	admin  mount
}

// Option adjusts the router before it is built.
type Option func(*routerConfig)

// NewRouter wires health probes at the root and the storefront, order and
// admin groups under /api/v1.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath:     defaultAPIPrefix,
		timeout:      defaultRequestTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
		orders:       mount{prefix: "/orders"},
		admin:        mount{prefix: "/admin"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(cfg.timeout))
	r.Use(middleware.RequestSize(cfg.maxBodyBytes))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" is not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, reg := range cfg.public.registrars {
			if reg != nil {
				api.Group(func(group chi.Router) { reg(group) })
			}
		}
		for _, m := range []mount{cfg.orders, cfg.admin} {
			api.Route(m.prefix, m.register)
		}
	})
	return r
}

func (m mount) register(r chi.Router) {
	wired := false
	for _, reg := range m.registrars {
		if reg != nil {
			reg(r)
			wired = true
		}
	}
	if wired {
		return
	}
	unavailable := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", m.prefix+" is not available on this deployment", http.StatusNotImplemented))
	}
	r.HandleFunc("/", unavailable)
	r.HandleFunc("/*", unavailable)
}

// WithMiddlewares runs mw after the built-in request ID, real IP, timeout and size limit.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.basePath = path
		}
	}
}

// WithRequestTimeout bounds handler time per request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithMaxBodyBytes caps request bodies. Receipt uploads carry URLs, not images.
func WithMaxBodyBytes(limit int64) Option {
	return func(cfg *routerConfig) {
		if limit > 0 {
			cfg.maxBodyBytes = limit
		}
	}
}

// WithPublicRoutes mounts catalog style registrars straight under the API prefix.
func WithPublicRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.public.registrars = append(cfg.public.registrars, reg...)
	}
}

// WithOrderRoutes sets the /orders group, replacing any earlier registrar.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders.registrars = []RouteRegistrar{reg}
	}
}

// WithAdminRoutes adds registrars under /admin. Each one guards its own group.
func WithAdminRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.admin.registrars = append(cfg.admin.registrars, reg...)
	}
}
