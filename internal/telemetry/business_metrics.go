package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds the subscription and quota metrics.
type BusinessMetrics struct {
	// Orders
	OrdersCreated       *prometheus.CounterVec
	OrderCreateFailed   *prometheus.CounterVec
	OrderStatusChanges  *prometheus.CounterVec
	DanglingOrders      *prometheus.CounterVec
	PurchasesInProgress *prometheus.CounterVec

	// Webhooks
	WebhookReceived          *prometheus.CounterVec
	WebhookProcessed         *prometheus.CounterVec
	WebhookFailed            *prometheus.CounterVec
	WebhookLatency           *prometheus.HistogramVec
	WebhookSignatureFailures *prometheus.CounterVec
	OrdersNotFound           *prometheus.CounterVec

	// Plans
	PlanActivations *prometheus.CounterVec
	PlanExpirations prometheus.Counter

	// Quota
	QuotaConsumed *prometheus.CounterVec
	QuotaExceeded *prometheus.CounterVec

	// Background jobs
	JobsEnqueued  *prometheus.CounterVec
	JobsProcessed *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec

	// Email
	EmailSent   *prometheus.CounterVec
	EmailFailed *prometheus.CounterVec

	// Gateway
	GatewayAPILatency *prometheus.HistogramVec
}

// NewBusinessMetrics creates and registers all business metrics.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	return newBusinessMetrics(promauto.With(prometheus.DefaultRegisterer), namespace)
}

func newBusinessMetrics(factory promauto.Factory, namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "briefing"
	}

	subsystem := "business"

	return &BusinessMetrics{
		// =======================================================================
		// Orders
		// =======================================================================
		OrdersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_created_total",
				Help:      "Total orders created",
			},
			[]string{"gateway", "tier"},
		),
		OrderCreateFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_create_failed_total",
				Help:      "Total failed order creations",
			},
			[]string{"gateway", "reason"}, // reason: gateway_unavailable, persistence
		),
		OrderStatusChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_status_changes_total",
				Help:      "Total order status transitions applied",
			},
			[]string{"gateway", "from", "to"},
		),
		DanglingOrders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "dangling_orders_total",
				Help:      "Gateway preferences created without a matching local order",
			},
			[]string{"gateway"},
		),
		PurchasesInProgress: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "purchase_in_progress_rejections_total",
				Help:      "Order creations rejected because another purchase is awaiting payment",
			},
			[]string{"tier"},
		),

		// =======================================================================
		// Webhooks
		// =======================================================================
		WebhookReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhooks_received_total",
				Help:      "Total payment webhooks received",
			},
			[]string{"gateway", "event_type"},
		),
		WebhookProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhooks_processed_total",
				Help:      "Total webhooks reconciled without error",
			},
			[]string{"gateway", "outcome"}, // outcome: changed, unchanged, ignored
		),
		WebhookFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhooks_failed_total",
				Help:      "Total webhooks that failed reconciliation",
			},
			[]string{"gateway", "reason"},
		),
		WebhookLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processing_duration_seconds",
				Help:      "Webhook reconciliation duration",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"gateway"},
		),
		WebhookSignatureFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_signature_failures_total",
				Help:      "Webhooks rejected for an invalid signature",
			},
			[]string{"gateway"},
		),
		OrdersNotFound: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconcile_orders_not_found_total",
				Help:      "Payments that could not be matched to a local order",
			},
			[]string{"gateway"},
		),

		// =======================================================================
		// Plans
		// =======================================================================
		PlanActivations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "plan_activations_total",
				Help:      "Total plan activations",
			},
			[]string{"tier"},
		),
		PlanExpirations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "plan_expirations_total",
				Help:      "Total plans downgraded to the free tier after expiry",
			},
		),

		// =======================================================================
		// Quota
		// =======================================================================
		QuotaConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "quota_consumed_total",
				Help:      "Analysis requests charged against quota",
			},
			[]string{"tier"},
		),
		QuotaExceeded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "quota_exceeded_total",
				Help:      "Analysis requests refused for lack of quota",
			},
			[]string{"tier"},
		),

		// =======================================================================
		// Background Jobs
		// =======================================================================
		JobsEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "jobs_enqueued_total",
				Help:      "Total background jobs enqueued",
			},
			[]string{"job_type"},
		),
		JobsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "jobs_processed_total",
				Help:      "Total background jobs processed successfully",
			},
			[]string{"job_type"},
		),
		JobsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "jobs_failed_total",
				Help:      "Total background jobs that failed",
			},
			[]string{"job_type"},
		),

		// =======================================================================
		// Email
		// =======================================================================
		EmailSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_sent_total",
				Help:      "Total transactional emails sent",
			},
			[]string{"email_type"},
		),
		EmailFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_failed_total",
				Help:      "Total transactional emails that failed",
			},
			[]string{"email_type"},
		),

		// =======================================================================
		// Gateway
		// =======================================================================
		GatewayAPILatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gateway_api_duration_seconds",
				Help:      "Payment gateway call duration (helps differentiate app slowness from gateway issues)",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"gateway", "operation"}, // operation: create_preference, get_payment
		),
	}
}

// Global instance for easy access from services and handlers
var Business *BusinessMetrics

// InitBusinessMetrics initializes the global business metrics instance
func InitBusinessMetrics(namespace string) *BusinessMetrics {
	Business = NewBusinessMetrics(namespace)
	return Business
}
