package routes

import (
	"github.com/RomuloBreno/project-easy-briefing/internal/middleware"
	"github.com/RomuloBreno/project-easy-briefing/internal/router"
)

// RegisterWebhookRoutes registers the gateway webhook routes.
//
// Webhook routes carry no user middleware. The reconciler verifies each
// delivery's signature before touching any state.
func RegisterWebhookRoutes(r *router.Router, deps WebhookDeps) {
	g := r.Group(middleware.MaxBodySize(middleware.DefaultMaxBodySize))

	if deps.StripeHandler != nil {
		g.Handle("POST", "/webhooks/stripe", deps.StripeHandler)
	}
	if deps.MercadoPagoHandler != nil {
		g.Handle("POST", "/webhooks/mercadopago", deps.MercadoPagoHandler)
	}
}
