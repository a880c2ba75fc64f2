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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/agents/*        Agent and hierarchy operations
  /api/ranks           Rank override table
  /api/schedules/*     Payment schedule templates
  /api/transactions/*  Commission transactions and generation
  /api/installments/*  Installment payment processing
  /api/approvals/*     Approval workflow
  /api/admin/*         Cutoff config, overdue sweep
  /api/scenarios/*     Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

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
		// Agent routes
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Get("/{id}", h.GetAgent)
			r.Get("/{id}/overrides", h.GetOverrides)
			r.Get("/{id}/transactions", h.GetAgentTransactions)
			r.Get("/{id}/installments", h.GetAgentInstallments)
			r.Get("/{id}/forecast", h.GetForecast)
		})

		// Rank table routes
		r.Route("/ranks", func(r chi.Router) {
			r.Get("/", h.ListRanks)
			r.Put("/", h.ReplaceRanks)
		})

		// Schedule routes
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.Post("/", h.CreateSchedule)
			r.Get("/{id}", h.GetSchedule)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Get("/{id}/installments", h.ListTransactionInstallments)
			r.Post("/{id}/installments", h.GenerateInstallments)
			r.Post("/{id}/installments/regenerate", h.RegenerateInstallments)
		})

		// Installment routes
		r.Route("/installments", func(r chi.Router) {
			r.Post("/{id}/status", h.ProcessInstallment)
		})

		// Approval routes
		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", h.ListApprovals)
			r.Post("/", h.OpenApproval)
			r.Get("/{id}", h.GetApproval)
			r.Post("/{id}/transition", h.TransitionApproval)
			r.Get("/{id}/history", h.GetApprovalHistory)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/cutoff-day", h.GetCutoffDay)
			r.Put("/cutoff-day", h.SetCutoffDay)
			r.Post("/sweep-overdue", h.SweepOverdue)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
