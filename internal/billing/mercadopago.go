package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const mercadoPagoAPIURL = "https://api.mercadopago.com"

// MercadoPagoConfig contains configuration for the Mercado Pago provider.
type MercadoPagoConfig struct {
	// AccessToken is the seller access token (APP_USR-... or TEST-...)
	AccessToken string

	// WebhookSecret signs notifications; the x-mp-signature header carries
	// the hex HMAC-SHA256 of the body.
	WebhookSecret string

	// ReturnURL is the front-end base URL for back_urls.
	ReturnURL string

	// NotificationURL is where Mercado Pago posts payment notifications.
	NotificationURL string

	// BaseURL overrides the API host (tests).
	BaseURL string

	// TimeoutSeconds is the HTTP timeout for API calls. Default: 10
	TimeoutSeconds int

	// Transport overrides the HTTP transport (tracing, tests).
	Transport http.RoundTripper
}

// Validate checks that required configuration is present.
func (c *MercadoPagoConfig) Validate() error {
	if c.AccessToken == "" {
		return errors.New("mercadopago: access token is required")
	}
	if c.WebhookSecret == "" {
		return errors.New("mercadopago: webhook secret is required")
	}
	return nil
}

// IsTestMode returns true if using a sandbox access token.
func (c *MercadoPagoConfig) IsTestMode() bool {
	return strings.HasPrefix(c.AccessToken, "TEST-")
}

// MercadoPagoProvider implements Provider against the Mercado Pago REST API.
// The preference id is the external reference.
type MercadoPagoProvider struct {
	config  MercadoPagoConfig
	baseURL string
	client  *http.Client
}

// NewMercadoPagoProvider creates a new Mercado Pago provider.
func NewMercadoPagoProvider(config MercadoPagoConfig) (*MercadoPagoProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = mercadoPagoAPIURL
	}

	timeout := 10 * time.Second
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	return &MercadoPagoProvider{
		config:  config,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout, Transport: config.Transport},
	}, nil
}

// Name implements Provider.
func (m *MercadoPagoProvider) Name() string {
	return "mercadopago"
}

type mpPreferenceItem struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Quantity   int         `json:"quantity"`
	UnitPrice  json.Number `json:"unit_price"`
	CurrencyID string      `json:"currency_id,omitempty"`
}

type mpPreferenceRequest struct {
	Items             []mpPreferenceItem `json:"items"`
	Payer             *mpPayer           `json:"payer,omitempty"`
	BackURLs          map[string]string  `json:"back_urls,omitempty"`
	AutoReturn        string             `json:"auto_return,omitempty"`
	NotificationURL   string             `json:"notification_url,omitempty"`
	ExternalReference string             `json:"external_reference,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
}

type mpPayer struct {
	Email string `json:"email,omitempty"`
}

type mpPreferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
	DateCreated      string `json:"date_created"`
}

type mpPaymentResponse struct {
	ID                json.Number     `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CurrencyID        string          `json:"currency_id"`
	DateApproved      *time.Time      `json:"date_approved"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
	Metadata map[string]any `json:"metadata"`
}

type mpErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}

// CreatePreference creates a Checkout Pro preference.
func (m *MercadoPagoProvider) CreatePreference(ctx context.Context, params CreatePreferenceParams) (*Preference, error) {
	if !params.Amount.IsPositive() {
		return nil, ErrAmountTooSmall
	}

	body := mpPreferenceRequest{
		Items: []mpPreferenceItem{
			{
				ID:         params.Title,
				Title:      params.Title,
				Quantity:   1,
				UnitPrice:  json.Number(params.Amount.StringFixed(2)),
				CurrencyID: strings.ToUpper(params.Currency),
			},
		},
		NotificationURL:   m.config.NotificationURL,
		ExternalReference: params.ExternalReference,
		Metadata: map[string]string{
			metadataUserID: params.UserID,
			metadataTier:   strconv.Itoa(params.Tier),
		},
	}
	if params.Email != "" {
		body.Payer = &mpPayer{Email: params.Email}
	}
	if m.config.ReturnURL != "" {
		body.BackURLs = map[string]string{
			"success": m.config.ReturnURL + "/success",
			"failure": m.config.ReturnURL + "/failure",
			"pending": m.config.ReturnURL + "/pending",
		}
		body.AutoReturn = "approved"
	}

	headers := map[string]string{}
	if params.IdempotencyKey != "" {
		headers["X-Idempotency-Key"] = params.IdempotencyKey
	}

	var resp mpPreferenceResponse
	if err := m.do(ctx, http.MethodPost, "/checkout/preferences", body, headers, &resp); err != nil {
		return nil, err
	}

	checkoutURL := resp.InitPoint
	if m.config.IsTestMode() && resp.SandboxInitPoint != "" {
		checkoutURL = resp.SandboxInitPoint
	}

	pref := &Preference{ID: resp.ID, CheckoutURL: checkoutURL, CreatedAt: time.Now()}
	if t, err := time.Parse(time.RFC3339, resp.DateCreated); err == nil {
		pref.CreatedAt = t
	}
	return pref, nil
}

// GetPayment fetches /v1/payments/{id}.
func (m *MercadoPagoProvider) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if paymentID == "" {
		return nil, ErrPaymentNotFound
	}

	var resp mpPaymentResponse
	if err := m.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, nil, &resp); err != nil {
		return nil, err
	}

	payment := &Payment{
		ID:                resp.ID.String(),
		RawStatus:         resp.Status,
		Status:            mercadoPagoPaymentStatus(resp.Status),
		StatusDetail:      resp.StatusDetail,
		ExternalReference: resp.ExternalReference,
		PayerEmail:        resp.Payer.Email,
		Amount:            resp.TransactionAmount,
		Currency:          strings.ToLower(resp.CurrencyID),
	}
	payment.PayerUserID = metadataString(resp.Metadata[metadataUserID])
	payment.Tier, _ = strconv.Atoi(metadataString(resp.Metadata[metadataTier]))
	if resp.DateApproved != nil {
		payment.ApprovedAt = *resp.DateApproved
	}

	return payment, nil
}

// metadataString reads a metadata value that Mercado Pago may return as a
// JSON string or number.
func metadataString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// VerifyWebhookSignature compares the hex HMAC-SHA256 of the body with the header.
func (m *MercadoPagoProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if signature == "" || secret == "" {
		return ErrInvalidWebhookSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || !hmac.Equal(expected, got) {
		return ErrInvalidWebhookSignature
	}
	return nil
}

// ParseNotification reads {"type":"payment","data":{"id":...}} bodies.
// The id may be a JSON string or number.
func (m *MercadoPagoProvider) ParseNotification(payload []byte) (*Notification, error) {
	var body struct {
		ID     json.RawMessage `json:"id"`
		Type   string          `json:"type"`
		Action string          `json:"action"`
		Data   struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	n := &Notification{EventID: rawID(body.ID), Type: body.Type}
	if n.Type == "" {
		n.Type = body.Action
	}
	if body.Type == "payment" || strings.HasPrefix(body.Action, "payment.") {
		n.PaymentID = rawID(body.Data.ID)
	}
	return n, nil
}

// rawID renders a JSON string or number id as a plain string.
func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}

func mercadoPagoPaymentStatus(status string) PaymentStatus {
	switch status {
	case "approved":
		return PaymentStatusApproved
	case "rejected", "cancelled", "refunded", "charged_back":
		return PaymentStatusRejected
	default:
		// pending, in_process, authorized, in_mediation
		return PaymentStatusPending
	}
}

// do performs an authenticated JSON request and decodes the response into out.
func (m *MercadoPagoProvider) do(ctx context.Context, method, path string, in any, headers map[string]string, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("mercadopago: failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("mercadopago: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.config.AccessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return &GatewayError{
			Gateway:       "mercadopago",
			Message:       err.Error(),
			Code:          "api_connection_error",
			OriginalError: err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &GatewayError{Gateway: "mercadopago", Message: "failed to read response", StatusCode: resp.StatusCode, OriginalError: err}
	}

	if resp.StatusCode >= 300 {
		var apiErr mpErrorResponse
		_ = json.Unmarshal(data, &apiErr)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrPaymentNotFound, apiErr.Message)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrInvalidAPIKey, apiErr.Message)
		}
		return &GatewayError{
			Gateway:    "mercadopago",
			Message:    apiErr.Message,
			Code:       apiErr.Error,
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get("X-Request-Id"),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &GatewayError{Gateway: "mercadopago", Message: "invalid response body", StatusCode: resp.StatusCode, OriginalError: err}
	}
	return nil
}
