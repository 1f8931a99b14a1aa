/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

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
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/sync/*           Calendar sync
  /api/practitioners/*  Practitioner registry + period views
  /api/sessions/*       Session ledger
  /api/settlements/*    Settlement state machine

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Calendar sync
		r.Route("/sync", func(r chi.Router) {
			r.Post("/", h.TriggerSync)
			r.Get("/runs", h.ListSyncRuns)
		})

		// Practitioner registry + period views
		r.Route("/practitioners", func(r chi.Router) {
			r.Get("/", h.ListPractitioners)
			r.Post("/", h.CreatePractitioner)
			r.Get("/{id}", h.GetPractitioner)
			r.Put("/{id}", h.UpdatePractitioner)
			r.Delete("/{id}", h.DeletePractitioner)
			r.Get("/{id}/periods/{year}/{month}", h.GetPeriod)
			r.Post("/{id}/periods/{year}/{month}/preview", h.PreviewPeriod)
		})

		// Session ledger
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Put("/{id}/payment", h.SetPayment)
			r.Put("/{id}/price", h.SetPrice)
			r.Delete("/{id}", h.DeleteSession)
		})

		// Settlement state machine
		r.Route("/settlements", func(r chi.Router) {
			r.Post("/", h.SubmitSettlement)
			r.Get("/", h.ListSettlements)
			r.Get("/{id}", h.GetSettlement)
			r.Post("/{id}/validate", h.ValidateSettlement)
			r.Post("/{id}/revoke", h.RevokeSettlement)
			r.Get("/{id}/sessions", h.GetBreakdown)
		})
	})

	return r
}
