// Package webhook receives payment gateway notifications and hands them to
// the reconciler.
package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/handler"
	"github.com/RomuloBreno/project-easy-briefing/internal/middleware"
	"github.com/RomuloBreno/project-easy-briefing/internal/service"
	"github.com/RomuloBreno/project-easy-briefing/internal/telemetry"
)

// Handler acknowledges a gateway's webhooks. A bad signature gets 401. A
// gateway or store failure gets 5xx so the gateway redelivers; nothing may
// have been recorded for the payment yet. Any other outcome, including an
// unknown order or a malformed body, gets 200 {"received": true}.
type Handler struct {
	reconciler      service.WebhookReconciler
	gateway         string
	signatureHeader string
	paymentIDQuery  string
	logger          *slog.Logger
}

// NewStripeHandler handles Stripe events signed in the Stripe-Signature header.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger payment_intent.succeeded
func NewStripeHandler(reconciler service.WebhookReconciler, logger *slog.Logger) *Handler {
	return &Handler{
		reconciler:      reconciler,
		gateway:         "stripe",
		signatureHeader: "Stripe-Signature",
		logger:          logger.With("handler", "webhook", "gateway", "stripe"),
	}
}

// NewMercadoPagoHandler handles Mercado Pago notifications signed in the
// x-mp-signature header. A ?data.id= query parameter names the payment
// when the body does not.
func NewMercadoPagoHandler(reconciler service.WebhookReconciler, logger *slog.Logger) *Handler {
	return &Handler{
		reconciler:      reconciler,
		gateway:         "mercadopago",
		signatureHeader: "x-mp-signature",
		paymentIDQuery:  "data.id",
		logger:          logger.With("handler", "webhook", "gateway", "mercadopago"),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		if telemetry.Business != nil {
			telemetry.Business.WebhookLatency.WithLabelValues(h.gateway).Observe(time.Since(start).Seconds())
		}
	}()

	logger := middleware.GetLogger(r.Context(), h.logger)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handler.ErrorResponse(w, r, domain.Errorf(domain.ETOOLARGE, "", "Request body too large"))
			return
		}
		handler.ErrorResponse(w, r, domain.Invalid("", "Error reading request body"))
		return
	}

	req := service.WebhookRequest{
		Payload:   payload,
		Signature: r.Header.Get(h.signatureHeader),
	}
	if h.paymentIDQuery != "" {
		req.PaymentID = r.URL.Query().Get(h.paymentIDQuery)
	}

	result, err := h.reconciler.Reconcile(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		handler.ErrorResponse(w, r, domain.ErrSignatureInvalid)
		return
	case retryable(err):
		handler.ErrorResponse(w, r, err)
		return
	case err != nil:
		level := slog.LevelError
		if code := domain.ErrorCode(err); code == domain.EINVALID || code == domain.ENOTFOUND {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "webhook not reconciled",
			"payload_size", len(payload),
			"error", err,
		)
	default:
		logger.InfoContext(r.Context(), "webhook reconciled",
			"payment_id", result.PaymentID,
			"order_id", result.OrderID,
			"outcome", result.Outcome,
			"status", result.Status,
		)
	}

	handler.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// retryable reports whether a redelivery could succeed where this one failed.
func retryable(err error) bool {
	switch domain.ErrorCode(err) {
	case domain.EUNAVAILABLE, domain.EINTERNAL:
		return true
	}
	return false
}
