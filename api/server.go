/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the storefront and dashboards

ROUTE GROUPS:
  /api/enrollments      Payment confirmation
  /api/checkout         Payment intents
  /api/reports/*        Revenue and earnings
  /api/courses/*        Catalog reads
  /api/payers/*         Enrolled courses
  /api/users/*          Notifications
  /api/reconciliation/* Partial enrollment gaps
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/enrollments", h.Enroll)
		r.Post("/checkout", h.CreateCheckout)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/platform", h.PlatformReport)
			r.Get("/earners/{id}", h.EarnerReport)
			r.Get("/payers/{id}", h.PayerReport)
		})

		r.Route("/courses", func(r chi.Router) {
			r.Get("/", h.ListCourses)
			r.Get("/{id}", h.GetCourse)
		})

		r.Get("/payers/{id}/courses", h.ListEnrolledCourses)
		r.Get("/users/{id}/notifications", h.ListNotifications)

		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/gaps", h.ListGaps)
			r.Post("/run", h.RunReconciliation)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
