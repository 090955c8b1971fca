package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/billing"
	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test fixtures
// ============================================================================

var testLogger = slog.New(slog.DiscardHandler)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingNotifier captures activation events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.PlanActivatedEvent
	err    error
}

func (n *recordingNotifier) NotifyPlanActivated(ctx context.Context, event domain.PlanActivatedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) Events() []domain.PlanActivatedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.PlanActivatedEvent(nil), n.events...)
}

// fixture wires every service against the in-memory store and the mock gateway.
type fixture struct {
	clock      *testClock
	store      *memory.Store
	provider   *billing.MockProvider
	catalog    *domain.PlanCatalog
	notifier   *recordingNotifier
	quota      QuotaEnforcer
	activation PlanActivationService
	orders     OrderService
	reconciler WebhookReconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:    newTestClock(),
		provider: billing.NewMockProvider(),
		catalog:  domain.DefaultPlanCatalog(),
		notifier: &recordingNotifier{},
	}
	f.store = memory.NewStore().WithClock(f.clock.Now)

	f.quota = NewQuotaEnforcer(f.store, f.catalog, testLogger)

	activation := NewPlanActivationService(f.store, f.catalog, f.notifier, testLogger)
	activation.(*planActivationService).now = f.clock.Now
	f.activation = activation

	orders := NewOrderService(f.store, f.store, f.catalog, f.provider, OrderServiceConfig{}, testLogger)
	orders.(*orderService).now = f.clock.Now
	f.orders = orders

	reconciler := NewWebhookReconciler(f.store, f.store, f.provider, f.activation, nil, ReconcilerConfig{WebhookSecret: "whsec"}, testLogger)
	reconciler.(*webhookReconciler).now = f.clock.Now
	f.reconciler = reconciler

	return f
}

// newUser registers a fresh free-tier user.
func (f *fixture) newUser(t *testing.T) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := f.activation.EnsureUser(context.Background(), id, id.String()[:8]+"@example.com")
	require.NoError(t, err)
	return id
}

func (f *fixture) user(t *testing.T, id uuid.UUID) *domain.UserPlanState {
	t.Helper()

	u, err := f.store.GetUserPlan(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) order(t *testing.T, ref string) *domain.Order {
	t.Helper()

	o, err := f.store.GetOrderByExternalReference(context.Background(), ref)
	require.NoError(t, err)
	return o
}

// paymentWebhook is a Mercado Pago style notification for paymentID.
func paymentWebhook(paymentID string) WebhookRequest {
	return WebhookRequest{
		Payload:   []byte(`{"id":"evt_1","type":"payment","action":"payment.updated","data":{"id":"` + paymentID + `"}}`),
		Signature: "valid-signature",
	}
}
