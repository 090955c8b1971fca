package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidAPIKey is returned when the gateway credentials are missing.
	ErrInvalidAPIKey = errors.New("billing: invalid or missing API key")

	// ErrPaymentNotFound is returned when the payment does not exist at the gateway.
	ErrPaymentNotFound = errors.New("billing: payment not found")

	// ErrInvalidWebhookSignature is returned when webhook signature verification fails.
	ErrInvalidWebhookSignature = errors.New("billing: invalid webhook signature")

	// ErrMalformedNotification is returned when a webhook body cannot be parsed.
	ErrMalformedNotification = errors.New("billing: malformed notification")

	// ErrAmountTooSmall is returned when a preference would be created for a non-positive amount.
	ErrAmountTooSmall = errors.New("billing: amount must be positive")
)

// GatewayError wraps a gateway API failure with additional context.
type GatewayError struct {
	Gateway       string // "stripe" or "mercadopago"
	Message       string // Human-readable error message
	Code          string // Gateway error code (e.g., "rate_limit")
	StatusCode    int    // HTTP status from the gateway, 0 for network failures
	RequestID     string // Gateway request ID for debugging
	OriginalError error  // Original error from the SDK or transport
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Gateway, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Gateway, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.OriginalError
}

// IsTemporary returns true if error is likely transient and retryable.
func (e *GatewayError) IsTemporary() bool {
	if e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	return e.Code == "rate_limit" || e.Code == "api_connection_error"
}

// IsTemporary reports whether err is a transient gateway failure: a timeout,
// a network error, or a GatewayError marked temporary.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.IsTemporary()
	}
	return false
}
