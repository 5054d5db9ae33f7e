package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MountRoutes registers the global middleware chain and all endpoints.
//
// Middleware order: Recoverer catches everything, request IDs exist before
// logging, metrics observe the final status, auth runs last so rejections are
// logged and measured like any other response.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))
	s.router.Use(MetricsMiddleware)
	s.router.Use(s.AuthMiddleware)

	s.router.Get("/health", s.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Route("/properties", func(r chi.Router) {
		r.Get("/limit-stats", s.HandleLimitStats)
		r.Put("/{id}/toggle-active", s.HandleToggleActive)
		r.Post("/sync-count", s.HandleSyncCount)
	})

	s.router.Get("/users/plan-status", s.HandlePlanStatus)

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Get("/property-report", s.HandlePropertyReport)
		r.Post("/sync-property-counts", s.HandleSyncAll)
		r.Post("/fix-user-count/{userId}", s.HandleFixUserCount)
	})

	s.router.Route("/plans", func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Put("/assign/{userId}", s.HandleAssignPlan)
		r.Delete("/remove/{userId}", s.HandleRemovePlan)
	})
}

// HandleHealth reports process liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
