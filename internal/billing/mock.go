package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockProvider is a mock billing provider for testing.
// Simulates a gateway in memory without calling any external API.
type MockProvider struct {
	// CreatePreferenceFunc allows customizing preference creation behavior
	CreatePreferenceFunc func(ctx context.Context, params CreatePreferenceParams) (*Preference, error)

	// GetPaymentFunc allows customizing payment retrieval behavior
	GetPaymentFunc func(ctx context.Context, paymentID string) (*Payment, error)

	// VerifyWebhookSignatureFunc allows customizing webhook verification behavior
	VerifyWebhookSignatureFunc func(payload []byte, signature string, secret string) error

	// ParseNotificationFunc allows customizing notification parsing behavior
	ParseNotificationFunc func(payload []byte) (*Notification, error)

	// Preferences stores created preferences for retrieval
	Preferences map[string]*Preference

	// Payments stores payments returned by GetPayment
	Payments map[string]*Payment

	// CallLog tracks method calls for test assertions
	CallLog []string

	mu sync.Mutex
}

// NewMockProvider creates a new mock billing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Preferences: make(map[string]*Preference),
		Payments:    make(map[string]*Payment),
		CallLog:     []string{},
	}
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	return "mock"
}

// CreatePreference creates a mock preference.
func (m *MockProvider) CreatePreference(ctx context.Context, params CreatePreferenceParams) (*Preference, error) {
	m.log(fmt.Sprintf("CreatePreference(%s, %d, %s)", params.UserID, params.Tier, params.Amount.StringFixed(2)))

	if m.CreatePreferenceFunc != nil {
		return m.CreatePreferenceFunc(ctx, params)
	}

	if !params.Amount.IsPositive() {
		return nil, ErrAmountTooSmall
	}

	id := "pref_" + uuid.New().String()
	checkoutURL := "https://checkout.example.com/" + id
	if params.ExternalReference != "" {
		checkoutURL += "?external_reference=" + params.ExternalReference
	}
	pref := &Preference{
		ID:          id,
		CheckoutURL: checkoutURL,
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	m.Preferences[id] = pref
	m.mu.Unlock()
	return pref, nil
}

// GetPayment returns a stored payment.
func (m *MockProvider) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	m.log(fmt.Sprintf("GetPayment(%s)", paymentID))

	if m.GetPaymentFunc != nil {
		return m.GetPaymentFunc(ctx, paymentID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Payments[paymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

// VerifyWebhookSignature accepts any non-empty signature by default.
func (m *MockProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	m.log("VerifyWebhookSignature")

	if m.VerifyWebhookSignatureFunc != nil {
		return m.VerifyWebhookSignatureFunc(payload, signature, secret)
	}

	if signature == "" {
		return ErrInvalidWebhookSignature
	}
	return nil
}

// ParseNotification reads the Mercado Pago style body by default.
func (m *MockProvider) ParseNotification(payload []byte) (*Notification, error) {
	m.log("ParseNotification")

	if m.ParseNotificationFunc != nil {
		return m.ParseNotificationFunc(payload)
	}

	return (&MercadoPagoProvider{}).ParseNotification(payload)
}

// SetPayment registers a payment for GetPayment.
func (m *MockProvider) SetPayment(p *Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payments[p.ID] = p
}

// Calls returns a copy of the call log.
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}

// Reset clears all mock state.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Preferences = make(map[string]*Preference)
	m.Payments = make(map[string]*Payment)
	m.CallLog = []string{}
}

func (m *MockProvider) log(call string) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, call)
	m.mu.Unlock()
}
