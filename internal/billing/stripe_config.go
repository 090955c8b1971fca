package billing

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// StripeConfig contains configuration for the Stripe provider.
type StripeConfig struct {
	// APIKey is the Stripe secret key (sk_test_... or sk_live_...)
	APIKey string

	// WebhookSecret is the webhook signing secret (whsec_...)
	WebhookSecret string

	// ReturnURL is the front-end base URL; the checkout session redirects to
	// ReturnURL/success and ReturnURL/failure.
	ReturnURL string

	// MaxRetries is the maximum number of SDK retries for transient failures.
	// Default: 0, the caller owns retries.
	MaxRetries int

	// TimeoutSeconds is the HTTP timeout for Stripe API calls in seconds.
	// Default: 10
	TimeoutSeconds int

	// Transport overrides the HTTP transport (tracing, tests).
	Transport http.RoundTripper
}

// Validate checks that required configuration is present.
func (c *StripeConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("stripe: API key is required")
	}
	if c.WebhookSecret == "" {
		return errors.New("stripe: webhook secret is required")
	}
	return nil
}

// IsTestMode returns true if using test mode API keys.
func (c *StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.APIKey, "sk_test_")
}

// Timeout returns the configured HTTP timeout.
func (c *StripeConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
