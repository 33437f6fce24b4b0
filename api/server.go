/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers. The settings
  routes are generated from the domain registry, so adding a settings domain
  adds its endpoints without touching this file.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin UI
  5. Authz:      Role-based access control on /api (see authz package)

ROUTE GROUPS:
  /api/{slug}-settings/*  Override management, one group per domain
  /api/companies          Tenant provisioning
  /api/users/*            Rep provisioning and reassignment
  /healthz                Liveness probe
  /metrics                Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/engagekit/policy-engine/authz"
	"github.com/engagekit/policy-engine/policy"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *authz.Authorizer) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", authz.RoleHeader},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		// One settings group per registered domain
		for _, desc := range policy.RegisteredDomains() {
			d := desc.Domain
			r.Route("/"+desc.Slug+"-settings", func(r chi.Router) {
				r.Get("/", h.ListSettings(d))
				r.Post("/", h.CreateSetting(d))
				r.Get("/resolved/{userID}", h.GetResolved(d))
				r.Patch("/{id}", h.UpdateSetting(d))
				r.Delete("/{id}", h.DeleteSetting(d))
			})
		}

		// Directory routes
		r.Post("/companies", h.CreateCompany)
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Post("/{id}/reassign", h.ReassignUser)
			r.Get("/{id}/pointers", h.GetUserPointers)
		})
	})

	// Operational endpoints, outside the authz boundary
	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
