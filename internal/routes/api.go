package routes

import (
	"github.com/RomuloBreno/project-easy-briefing/internal/middleware"
	"github.com/RomuloBreno/project-easy-briefing/internal/router"
)

// RegisterAPIRoutes registers the /api routes. All of them except the plan
// catalog require the caller id from the auth proxy.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	r.Get("/api/plans", deps.PlanHandler.ListPlans)

	authed := r.Group(middleware.RequireUser)
	small := middleware.MaxBodySize(middleware.DefaultMaxBodySize)

	authed.Post("/api/users", deps.PlanHandler.Register, small)
	authed.Get("/api/plan", deps.PlanHandler.Status)

	authed.Post("/api/orders", deps.OrderHandler.Create, small)
	authed.Get("/api/orders", deps.OrderHandler.List)

	analysis := []router.Middleware{middleware.MaxBodySize(middleware.AnalysisMaxBodySize)}
	if deps.AnalysisLimiter != nil {
		analysis = append(analysis, deps.AnalysisLimiter)
	}
	authed.Post("/api/analysis", deps.AnalysisHandler.Analyze, analysis...)
}

// RegisterOpsRoutes registers /health and /metrics
func RegisterOpsRoutes(r *router.Router, deps OpsDeps) {
	if deps.Health != nil {
		r.Get("/health", deps.Health)
	}
	if deps.Metrics != nil {
		r.Handle("GET", "/metrics", deps.Metrics)
	}
}
