package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Provider defines the interface for a payment gateway.
// Implementations can use Stripe, Mercado Pago, etc.
type Provider interface {
	// Name identifies the gateway ("stripe", "mercadopago") on stored orders.
	Name() string

	// CreatePreference registers a purchase intent and returns the gateway's
	// reference for it. The reference is what later payments are matched against.
	CreatePreference(ctx context.Context, params CreatePreferenceParams) (*Preference, error)

	// GetPayment retrieves the authoritative payment record.
	// Returns ErrPaymentNotFound when the gateway does not know the id.
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)

	// VerifyWebhookSignature verifies that a webhook request is authentic.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error

	// ParseNotification extracts the event type and payment id from a verified
	// webhook body. PaymentID is empty for events that do not concern a payment.
	ParseNotification(payload []byte) (*Notification, error)
}

// CreatePreferenceParams contains parameters for registering a purchase.
type CreatePreferenceParams struct {
	// UserID is echoed back on payments so the payer can be identified.
	UserID string

	// Email prefills the checkout form.
	Email string

	// Tier is stored in gateway metadata for support lookups.
	Tier int

	// Title is the line item name shown to the payer.
	Title string

	// Amount in major currency units (e.g. 29.90).
	Amount decimal.Decimal

	// Currency code (ISO 4217), lowercase.
	Currency string

	// ExternalReference is the local order reference. Gateways echo it on
	// every payment made against the preference.
	ExternalReference string

	// IdempotencyKey prevents duplicate preferences on client retries.
	IdempotencyKey string
}

// Preference is the gateway's record of a purchase intent.
type Preference struct {
	// ID is the gateway's own preference id.
	ID string

	// CheckoutURL is where the client is sent to pay.
	CheckoutURL string

	CreatedAt time.Time
}

// PaymentStatus is the gateway status normalised to the local order states.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// Payment is the authoritative payment record fetched from the gateway.
type Payment struct {
	ID string

	// Status is normalised; RawStatus keeps the gateway's own value.
	Status    PaymentStatus
	RawStatus string

	// StatusDetail explains the status (decline reason, etc.).
	StatusDetail string

	// ExternalReference is the local order reference sent with the
	// preference, when the gateway echoes it. Empty otherwise.
	ExternalReference string

	// PayerUserID and Tier are read from payment metadata. Zero values mean
	// the gateway did not return them.
	PayerUserID string
	Tier        int
	PayerEmail  string

	Amount   decimal.Decimal
	Currency string

	// ApprovedAt is zero unless the gateway reports an approval time.
	ApprovedAt time.Time
}

// Notification is a parsed webhook body.
type Notification struct {
	EventID   string
	Type      string
	PaymentID string
}
