package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMercadoPago(t *testing.T, handler http.HandlerFunc) *MercadoPagoProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewMercadoPagoProvider(MercadoPagoConfig{
		AccessToken:     "APP_USR-test-token",
		WebhookSecret:   "mp-secret",
		ReturnURL:       "https://app.example.com/checkout",
		NotificationURL: "https://api.example.com/webhooks/mercadopago",
		BaseURL:         srv.URL,
		TimeoutSeconds:  2,
	})
	require.NoError(t, err)
	return p
}

func TestNewMercadoPagoProvider_Validation(t *testing.T) {
	_, err := NewMercadoPagoProvider(MercadoPagoConfig{WebhookSecret: "s"})
	assert.Error(t, err)

	_, err = NewMercadoPagoProvider(MercadoPagoConfig{AccessToken: "APP_USR-x"})
	assert.Error(t, err)
}

func TestMercadoPago_CreatePreference(t *testing.T) {
	var got map[string]any
	p := newTestMercadoPago(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer APP_USR-test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "order-key-1", r.Header.Get("X-Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"123-pref","init_point":"https://mp.example.com/init/123","sandbox_init_point":"https://sandbox.example.com/123","date_created":"2024-05-01T10:00:00Z"}`))
	})

	pref, err := p.CreatePreference(context.Background(), CreatePreferenceParams{
		UserID:            "0d7c5a2e-2f5b-4bd0-9a57-3f8f6ad3c1f1",
		Email:             "payer@example.com",
		Tier:              2,
		Title:             "plan-starter-002",
		Amount:            decimal.RequireFromString("29.9"),
		Currency:          "brl",
		ExternalReference: "7b1e0c64-5a7e-5f0b-9f59-2d8f0c9d3a11",
		IdempotencyKey:    "order-key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "123-pref", pref.ID)
	assert.Equal(t, "https://mp.example.com/init/123", pref.CheckoutURL)
	assert.Equal(t, 2024, pref.CreatedAt.Year())

	items := got["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, 29.9, item["unit_price"])
	assert.Equal(t, "BRL", item["currency_id"])
	assert.Equal(t, float64(1), item["quantity"])

	meta := got["metadata"].(map[string]any)
	assert.Equal(t, "0d7c5a2e-2f5b-4bd0-9a57-3f8f6ad3c1f1", meta["user_id"])
	assert.Equal(t, "2", meta["tier"])
	assert.Equal(t, "7b1e0c64-5a7e-5f0b-9f59-2d8f0c9d3a11", got["external_reference"])
	assert.Equal(t, "approved", got["auto_return"])
}

func TestMercadoPago_CreatePreference_RejectsZeroAmount(t *testing.T) {
	p := newTestMercadoPago(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gateway must not be called")
	})

	_, err := p.CreatePreference(context.Background(), CreatePreferenceParams{Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrAmountTooSmall)
}

func TestMercadoPago_GetPayment(t *testing.T) {
	p := newTestMercadoPago(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payments/987654":
			_, _ = w.Write([]byte(`{
				"id": 987654,
				"status": "approved",
				"status_detail": "accredited",
				"external_reference": "",
				"transaction_amount": 29.9,
				"currency_id": "BRL",
				"date_approved": "2024-05-01T10:05:00.000-04:00",
				"payer": {"email": "payer@example.com"},
				"metadata": {"user_id": "u-1", "tier": "2"}
			}`))
		case "/v1/payments/987655":
			_, _ = w.Write([]byte(`{
				"id": 987655,
				"status": "pending",
				"external_reference": "7b1e0c64-5a7e-5f0b-9f59-2d8f0c9d3a11",
				"transaction_amount": 1,
				"currency_id": "BRL",
				"metadata": {"user_id": "u-2", "tier": 1}
			}`))
		case "/v1/payments/404":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Payment not found","error":"not_found","status":404}`))
		case "/v1/payments/500":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"message":"upstream","error":"bad_gateway","status":502}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()

	t.Run("maps approved payment", func(t *testing.T) {
		pay, err := p.GetPayment(ctx, "987654")
		require.NoError(t, err)
		assert.Equal(t, "987654", pay.ID)
		assert.Equal(t, PaymentStatusApproved, pay.Status)
		assert.Equal(t, "approved", pay.RawStatus)
		assert.Equal(t, "accredited", pay.StatusDetail)
		assert.Equal(t, "u-1", pay.PayerUserID)
		assert.Equal(t, 2, pay.Tier)
		assert.Empty(t, pay.ExternalReference)
		assert.Equal(t, "payer@example.com", pay.PayerEmail)
		assert.True(t, decimal.RequireFromString("29.90").Equal(pay.Amount))
		assert.Equal(t, "brl", pay.Currency)
		assert.False(t, pay.ApprovedAt.IsZero())
	})

	t.Run("echoes order reference and numeric metadata", func(t *testing.T) {
		pay, err := p.GetPayment(ctx, "987655")
		require.NoError(t, err)
		assert.Equal(t, "7b1e0c64-5a7e-5f0b-9f59-2d8f0c9d3a11", pay.ExternalReference)
		assert.Equal(t, "u-2", pay.PayerUserID)
		assert.Equal(t, 1, pay.Tier)
		assert.True(t, pay.ApprovedAt.IsZero())
	})

	t.Run("not found", func(t *testing.T) {
		_, err := p.GetPayment(ctx, "404")
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})

	t.Run("server error is temporary", func(t *testing.T) {
		_, err := p.GetPayment(ctx, "500")
		var ge *GatewayError
		require.ErrorAs(t, err, &ge)
		assert.Equal(t, http.StatusBadGateway, ge.StatusCode)
		assert.True(t, IsTemporary(err))
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := p.GetPayment(ctx, "")
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})
}

func TestMercadoPago_GetPayment_Unreachable(t *testing.T) {
	p, err := NewMercadoPagoProvider(MercadoPagoConfig{
		AccessToken:    "APP_USR-x",
		WebhookSecret:  "s",
		BaseURL:        "http://127.0.0.1:1",
		TimeoutSeconds: 1,
	})
	require.NoError(t, err)

	_, err = p.GetPayment(context.Background(), "1")
	assert.True(t, IsTemporary(err))
}

func TestMercadoPagoPaymentStatus(t *testing.T) {
	tests := map[string]PaymentStatus{
		"approved":     PaymentStatusApproved,
		"pending":      PaymentStatusPending,
		"in_process":   PaymentStatusPending,
		"authorized":   PaymentStatusPending,
		"in_mediation": PaymentStatusPending,
		"rejected":     PaymentStatusRejected,
		"cancelled":    PaymentStatusRejected,
		"refunded":     PaymentStatusRejected,
		"charged_back": PaymentStatusRejected,
	}
	for raw, want := range tests {
		t.Run(raw, func(t *testing.T) {
			assert.Equal(t, want, mercadoPagoPaymentStatus(raw))
		})
	}
}

func TestMercadoPago_VerifyWebhookSignature(t *testing.T) {
	p := &MercadoPagoProvider{}
	payload := []byte(`{"type":"payment","data":{"id":"123"}}`)

	mac := hmac.New(sha256.New, []byte("mp-secret"))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	assert.NoError(t, p.VerifyWebhookSignature(payload, sig, "mp-secret"))
	assert.ErrorIs(t, p.VerifyWebhookSignature(payload, sig, "other"), ErrInvalidWebhookSignature)
	assert.ErrorIs(t, p.VerifyWebhookSignature(payload, "zz-not-hex", "mp-secret"), ErrInvalidWebhookSignature)
	assert.ErrorIs(t, p.VerifyWebhookSignature(payload, "", "mp-secret"), ErrInvalidWebhookSignature)
	assert.ErrorIs(t, p.VerifyWebhookSignature([]byte(`{}`), sig, "mp-secret"), ErrInvalidWebhookSignature)
}

func TestMercadoPago_ParseNotification(t *testing.T) {
	p := &MercadoPagoProvider{}

	tests := []struct {
		name          string
		payload       string
		wantType      string
		wantPaymentID string
		wantErr       bool
	}{
		{"string id", `{"id":"evt-1","type":"payment","action":"payment.updated","data":{"id":"123"}}`, "payment", "123", false},
		{"numeric id", `{"id":42,"type":"payment","data":{"id":987654321}}`, "payment", "987654321", false},
		{"action only", `{"action":"payment.created","data":{"id":"55"}}`, "payment.created", "55", false},
		{"merchant order", `{"type":"merchant_order","data":{"id":"9"}}`, "merchant_order", "", false},
		{"malformed", `nope`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := p.ParseNotification([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedNotification)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, n.Type)
			assert.Equal(t, tt.wantPaymentID, n.PaymentID)
		})
	}
}
