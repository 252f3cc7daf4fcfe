package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"deliverytech-api/internal/config"
	"deliverytech-api/internal/handler"
	"deliverytech-api/internal/metrics"
	"deliverytech-api/internal/middleware"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Admin   *handler.AdminHandler
	Audit   *handler.AuditHandler
	Catalog *handler.CatalogHandler
	Debug   *handler.DebugHandler
}

// New builds the HTTP surface. Authentication and the policy run for every
// request before routing, so route registration carries no auth concerns.
func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	policy *middleware.Policy,
	m *metrics.Metrics,
	h Handlers,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(m.Instrument)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)
	r.Use(chimiddleware.CleanPath)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(authMiddleware.Authenticate)
	r.Use(policy.Authorize)

	r.Get("/health", h.Debug.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.Post("/logout", h.Auth.Logout)
			auth.Get("/me", h.Auth.Me)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Get("/users", h.Admin.ListUsers)
			admin.Post("/users", h.Admin.CreateUser)
			admin.Patch("/users/{id}/status", h.Admin.SetStatus)
			admin.Post("/users/{id}/sessions/revoke", h.Admin.RevokeSessions)
			admin.Get("/audit", h.Audit.List)
		})

		api.Get("/products", h.Catalog.ListProducts)
		api.Get("/products/{id}", h.Catalog.GetProduct)
		api.Get("/restaurants", h.Catalog.ListRestaurants)
		api.Get("/restaurants/{id}", h.Catalog.GetRestaurant)
		api.Get("/orders", h.Catalog.ListOrders)
		api.Get("/orders/{id}", h.Catalog.GetOrder)
		api.Get("/deliveries", h.Catalog.ListDeliveries)

		api.Get("/debug/whoami", h.Debug.WhoAmI)
	})

	return r
}
