package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
	checkoutsession "github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/webhook"
)

// Metadata keys written on checkout sessions and payment intents.
const (
	metadataUserID   = "user_id"
	metadataTier     = "tier"
	metadataOrderRef = "order_ref"
)

// StripeProvider implements Provider using Stripe Checkout.
// Payments are payment intents created by the session. The local order
// reference travels as the session's client reference id and in the
// payment intent metadata.
type StripeProvider struct {
	config StripeConfig
}

// NewStripeProvider creates a new Stripe billing provider.
// The Stripe SDK keeps its key and backend globally, so only one
// StripeProvider should exist per process.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	stripe.Key = config.APIKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: config.Timeout(), Transport: config.Transport},
		MaxNetworkRetries: stripe.Int64(int64(config.MaxRetries)),
	}))

	return &StripeProvider{config: config}, nil
}

// Name implements Provider.
func (s *StripeProvider) Name() string {
	return "stripe"
}

// CreatePreference creates a Checkout Session in payment mode.
func (s *StripeProvider) CreatePreference(ctx context.Context, params CreatePreferenceParams) (*Preference, error) {
	if !params.Amount.IsPositive() {
		return nil, ErrAmountTooSmall
	}

	currency := strings.ToLower(params.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyBRL)
	}

	metadata := map[string]string{
		metadataUserID: params.UserID,
		metadataTier:   strconv.Itoa(params.Tier),
	}
	if params.ExternalReference != "" {
		metadata[metadataOrderRef] = params.ExternalReference
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(params.Amount.Shift(2).IntPart()),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.Title),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.config.ReturnURL + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.config.ReturnURL + "/failure"),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if params.ExternalReference != "" {
		sessionParams.ClientReferenceID = stripe.String(params.ExternalReference)
	}
	if params.Email != "" {
		sessionParams.CustomerEmail = stripe.String(params.Email)
	}
	for k, v := range metadata {
		sessionParams.AddMetadata(k, v)
	}
	sessionParams.Context = ctx
	if params.IdempotencyKey != "" {
		sessionParams.SetIdempotencyKey(params.IdempotencyKey)
	}

	session, err := checkoutsession.New(sessionParams)
	if err != nil {
		return nil, convertStripeError(err)
	}

	return &Preference{
		ID:          session.ID,
		CheckoutURL: session.URL,
		CreatedAt:   time.Unix(session.Created, 0),
	}, nil
}

// GetPayment retrieves a payment intent and the checkout session that created it.
func (s *StripeProvider) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	piParams := &stripe.PaymentIntentParams{}
	piParams.Context = ctx
	piParams.AddExpand("latest_charge")

	pi, err := paymentintent.Get(paymentID, piParams)
	if err != nil {
		return nil, convertStripeError(err)
	}

	payment := &Payment{
		ID:                pi.ID,
		RawStatus:         string(pi.Status),
		Status:            stripePaymentStatus(pi),
		StatusDetail:      stripeStatusDetail(pi),
		ExternalReference: pi.Metadata[metadataOrderRef],
		PayerUserID:       pi.Metadata[metadataUserID],
		PayerEmail:        pi.ReceiptEmail,
		Amount:            decimal.New(pi.Amount, -2),
		Currency:          string(pi.Currency),
	}
	payment.Tier, _ = strconv.Atoi(pi.Metadata[metadataTier])
	if payment.Status == PaymentStatusApproved {
		payment.ApprovedAt = time.Unix(pi.Created, 0)
		if pi.LatestCharge != nil && pi.LatestCharge.Created != 0 {
			payment.ApprovedAt = time.Unix(pi.LatestCharge.Created, 0)
		}
	}

	listParams := &stripe.CheckoutSessionListParams{
		PaymentIntent: stripe.String(pi.ID),
	}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	iter := checkoutsession.List(listParams)
	for iter.Next() {
		session := iter.CheckoutSession()
		if payment.ExternalReference == "" {
			payment.ExternalReference = session.ClientReferenceID
		}
		if payment.PayerUserID == "" {
			payment.PayerUserID = session.Metadata[metadataUserID]
		}
		if payment.PayerEmail == "" && session.CustomerDetails != nil {
			payment.PayerEmail = session.CustomerDetails.Email
		}
		break
	}
	if err := iter.Err(); err != nil {
		return nil, convertStripeError(err)
	}

	return payment, nil
}

// VerifyWebhookSignature validates the Stripe-Signature header.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if signature == "" || secret == "" {
		return ErrInvalidWebhookSignature
	}
	if err := webhook.ValidatePayload(payload, signature, secret); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}
	return nil
}

// ParseNotification reads a Stripe event and extracts the payment intent id
// for payment_intent.* and checkout.session.* events.
func (s *StripeProvider) ParseNotification(payload []byte) (*Notification, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	n := &Notification{EventID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return n, nil
	}

	switch {
	case strings.HasPrefix(n.Type, "payment_intent."):
		n.PaymentID, _ = event.Data.Object["id"].(string)
	case strings.HasPrefix(n.Type, "checkout.session."):
		n.PaymentID, _ = event.Data.Object["payment_intent"].(string)
	}

	return n, nil
}

// stripePaymentStatus maps a payment intent to a normalised status.
func stripePaymentStatus(pi *stripe.PaymentIntent) PaymentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return PaymentStatusApproved
	case stripe.PaymentIntentStatusCanceled:
		return PaymentStatusRejected
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A failed attempt returns the intent to requires_payment_method.
		if pi.LastPaymentError != nil {
			return PaymentStatusRejected
		}
		return PaymentStatusPending
	default:
		return PaymentStatusPending
	}
}

func stripeStatusDetail(pi *stripe.PaymentIntent) string {
	if pi.LastPaymentError != nil {
		if pi.LastPaymentError.DeclineCode != "" {
			return string(pi.LastPaymentError.DeclineCode)
		}
		if pi.LastPaymentError.Code != "" {
			return string(pi.LastPaymentError.Code)
		}
	}
	if pi.CancellationReason != "" {
		return string(pi.CancellationReason)
	}
	return string(pi.Status)
}

// convertStripeError maps SDK errors to billing errors.
func convertStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("%w: %s", ErrPaymentNotFound, stripeErr.Msg)
		}
		if stripeErr.HTTPStatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrInvalidAPIKey, stripeErr.Msg)
		}
		return &GatewayError{
			Gateway:       "stripe",
			Message:       stripeErr.Msg,
			Code:          string(stripeErr.Code),
			StatusCode:    stripeErr.HTTPStatusCode,
			RequestID:     stripeErr.RequestID,
			OriginalError: err,
		}
	}

	return &GatewayError{
		Gateway:       "stripe",
		Message:       err.Error(),
		Code:          "api_connection_error",
		OriginalError: err,
	}
}
