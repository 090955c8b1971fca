// Package routes registers the HTTP routes on a router.Router.
package routes

import (
	"net/http"

	"github.com/RomuloBreno/project-easy-briefing/internal/handler/api"
)

// WebhookDeps contains dependencies for webhook routes. A nil handler
// leaves its route unregistered.
type WebhookDeps struct {
	StripeHandler      http.Handler
	MercadoPagoHandler http.Handler
}

// APIDeps contains dependencies for API routes
type APIDeps struct {
	OrderHandler    *api.OrderHandler
	PlanHandler     *api.PlanHandler
	AnalysisHandler *api.AnalysisHandler

	// AnalysisLimiter throttles analysis requests per caller. Optional.
	AnalysisLimiter func(http.Handler) http.Handler
}

// OpsDeps contains the health and metrics handlers
type OpsDeps struct {
	Health  http.HandlerFunc
	Metrics http.Handler
}
