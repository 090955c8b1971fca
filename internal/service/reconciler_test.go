package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/billing"
	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/domain/mock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// purchase creates an order for a fresh user and returns both.
func purchase(t *testing.T, f *fixture, tier int) (uuid.UUID, *domain.Order) {
	t.Helper()

	userID := f.newUser(t)
	order, err := f.orders.CreateOrder(context.Background(), userID, tier)
	require.NoError(t, err)
	return userID, order
}

func TestReconciler_ApprovedPaymentActivatesPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID, order := purchase(t, f, domain.TierStarter)

	approvedAt := f.clock.Now().Add(2 * time.Minute)
	f.provider.SetPayment(&billing.Payment{
		ID:                "pay_1",
		Status:            billing.PaymentStatusApproved,
		StatusDetail:      "accredited",
		ExternalReference: order.ExternalReference,
		ApprovedAt:        approvedAt,
	})

	result, err := f.reconciler.Reconcile(ctx, paymentWebhook("pay_1"))
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.True(t, result.Activated)
	assert.Equal(t, OutcomeActivated, result.Outcome)
	assert.Equal(t, domain.OrderStatusCreated, result.Previous)
	assert.Equal(t, domain.OrderStatusApproved, result.Status)

	stored := f.order(t, order.ExternalReference)
	assert.Equal(t, domain.OrderStatusApproved, stored.Status)
	assert.Equal(t, "pay_1", stored.ExternalPaymentID)
	assert.Equal(t, "accredited", stored.StatusDetail)

	user := f.user(t, userID)
	assert.Equal(t, domain.TierStarter, user.Tier)
	assert.Equal(t, f.catalog.Get(domain.TierStarter).MaxRequestsPerCycle, user.QuotaRemaining)
	require.NotNil(t, user.PlanExpiration)
	assert.True(t, user.PlanExpiration.Equal(approvedAt.Add(30*24*time.Hour)))
	assert.Empty(t, user.PendingOrderRef)
	assert.True(t, f.activation.IsPlanActive(user, f.clock.Now()))

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, userID, events[0].UserID)
	assert.Equal(t, "plan-starter-001", events[0].PlanName)
	assert.Equal(t, user.Email, events[0].Email)
}

func TestReconciler_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID, order := purchase(t, f, domain.TierPro)

	f.provider.SetPayment(&billing.Payment{
		ID:                "pay_2",
		Status:            billing.PaymentStatusApproved,
		ExternalReference: order.ExternalReference,
		ApprovedAt:        f.clock.Now(),
	})

	_, err := f.reconciler.Reconcile(ctx, paymentWebhook("pay_2"))
	require.NoError(t, err)

	require.NoError(t, f.quota.DecrementQuota(ctx, userID))
	quotaBefore := f.user(t, userID).QuotaRemaining
	updatedBefore := f.order(t, order.ExternalReference).UpdatedAt

	f.clock.Advance(time.Hour)
	result, err := f.reconciler.Reconcile(ctx, paymentWebhook("pay_2"))
	require.NoError(t, err)

	assert.False(t, result.Changed)
	assert.False(t, result.Activated)
	assert.Equal(t, OutcomeUnchanged, result.Outcome)
	assert.Equal(t, quotaBefore, f.user(t, userID).QuotaRemaining, "quota must not be reset again")
	assert.Equal(t, updatedBefore, f.order(t, order.ExternalReference).UpdatedAt, "no second status write")
	assert.Len(t, f.notifier.Events(), 1)
}

func TestReconciler_InvalidSignatureTouchesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	// No expectations: any store call fails the test.
	orders := mock.NewMockOrderStore(ctrl)
	users := mock.NewMockUserPlanStore(ctrl)

	provider := billing.NewMockProvider()
	provider.VerifyWebhookSignatureFunc = func(payload []byte, signature, secret string) error {
		assert.Equal(t, "whsec", secret)
		return billing.ErrInvalidWebhookSignature
	}

	activation := NewPlanActivationService(users, domain.DefaultPlanCatalog(), nil, testLogger)
	r := NewWebhookReconciler(orders, users, provider, activation, nil, ReconcilerConfig{WebhookSecret: "whsec"}, testLogger)

	result, err := r.Reconcile(context.Background(), WebhookRequest{
		Payload:   []byte(`{"type":"payment","data":{"id":"pay_1"}}`),
		Signature: "forged",
	})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
	assert.Equal(t, []string{"VerifyWebhookSignature"}, provider.Calls())
}

func TestReconciler_ResolvesByPendingOrderRef(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID, order := purchase(t, f, domain.TierStarter)

	// The gateway does not echo the preference id, only the payer metadata.
	f.provider.SetPayment(&billing.Payment{
		ID:          "pay_3",
		Status:      billing.PaymentStatusApproved,
		PayerUserID: userID.String(),
		ApprovedAt:  f.clock.Now(),
	})

	result, err := f.reconciler.Reconcile(ctx, paymentWebhook("pay_3"))
	require.NoError(t, err)

	assert.Equal(t, order.ID, result.OrderID)
	assert.True(t, result.Activated)
	assert.Equal(t, domain.TierStarter, f.user(t, userID).Tier)
}

func TestReconciler_UnknownReferenceFallsBackToPendingOrder(t *testing.T) {
	f := newFixture(t)
	userID, order := purchase(t, f, domain.TierStarter)

	f.provider.SetPayment(&billing.Payment{
		ID:                "pay_4",
		Status:            billing.PaymentStatusPending,
		ExternalReference: "pref_unknown",
		PayerUserID:       userID.String(),
	})

	result, err := f.reconciler.Reconcile(context.Background(), paymentWebhook("pay_4"))
	require.NoError(t, err)

	assert.Equal(t, order.ID, result.OrderID)
	assert.Equal(t, domain.OrderStatusPending, result.Status)
	assert.False(t, result.Activated)
}

func TestReconciler_OrderNotFound(t *testing.T) {
	tests := []struct {
		name    string
		payment func(userID uuid.UUID) *billing.Payment
	}{
		{
			name: "no reference and no payer",
			payment: func(uuid.UUID) *billing.Payment {
				return &billing.Payment{ID: "pay_x", Status: billing.PaymentStatusApproved}
			},
		},
		{
			name: "unknown payer",
			payment: func(uuid.UUID) *billing.Payment {
				return &billing.Payment{ID: "pay_x", Status: billing.PaymentStatusApproved, PayerUserID: uuid.NewString()}
			},
		},
		{
			name: "payer without pending order",
			payment: func(userID uuid.UUID) *billing.Payment {
				return &billing.Payment{ID: "pay_x", Status: billing.PaymentStatusApproved, PayerUserID: userID.String()}
			},
		},
		{
			name: "malformed payer id",
			payment: func(uuid.UUID) *billing.Payment {
				return &billing.Payment{ID: "pay_x", Status: billing.PaymentStatusApproved, PayerUserID: "not-a-uuid"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			userID := f.newUser(t)
			f.provider.SetPayment(tt.payment(userID))

			_, err := f.reconciler.Reconcile(context.Background(), paymentWebhook("pay_x"))

			assert.ErrorIs(t, err, domain.ErrOrderNotFound)
			assert.Equal(t, domain.TierFree, f.user(t, userID).Tier)
		})
	}
}

func TestReconciler_RejectedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID, order := purchase(t, f, domain.TierStarter)

	f.provider.SetPayment(&billing.Payment{
		ID:                "pay_5",
		Status:            billing.PaymentStatusRejected,
		StatusDetail:      "cc_rejected_insufficient_amount",
		ExternalReference: order.ExternalReference,
	})

	result, err := f.reconciler.Reconcile(ctx, paymentWebhook("pay_5"))
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.False(t, result.Activated)
	assert.Equal(t, domain.OrderStatusRejected, f.order(t, order.ExternalReference).Status)
	assert.Equal(t, domain.TierFree, f.user(t, userID).Tier)
	assert.Empty(t, f.notifier.Events())
}

func TestReconciler_PendingThenApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID, order := purchase(t, f, domain.TierPro)

	payment := &billing.Payment{ID: "pay_6", Status: billing.PaymentStatusPending, ExternalReference: order.ExternalReference}
	f.provider.SetPayment(payment)

	result, err := f.reconciler.Reconcile(ctx, paymentWebhook("pay_6"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, result.Status)
	assert.Equal(t, domain.TierFree, f.user(t, userID).Tier)

	approved := *payment
	approved.Status = billing.PaymentStatusApproved
	f.provider.SetPayment(&approved)

	result, err = f.reconciler.Reconcile(ctx, paymentWebhook("pay_6"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, result.Previous)
	assert.True(t, result.Activated)
	assert.Equal(t, domain.TierPro, f.user(t, userID).Tier)
}

func TestReconciler_TerminalOrderIgnoresLaterStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID, order := purchase(t, f, domain.TierStarter)

	f.provider.SetPayment(&billing.Payment{ID: "pay_7", Status: billing.PaymentStatusApproved, ExternalReference: order.ExternalReference})
	_, err := f.reconciler.Reconcile(ctx, paymentWebhook("pay_7"))
	require.NoError(t, err)

	f.provider.SetPayment(&billing.Payment{ID: "pay_7", Status: billing.PaymentStatusRejected, ExternalReference: order.ExternalReference})
	result, err := f.reconciler.Reconcile(ctx, paymentWebhook("pay_7"))
	require.NoError(t, err)

	assert.False(t, result.Changed)
	assert.Equal(t, domain.OrderStatusApproved, f.order(t, order.ExternalReference).Status)
	assert.Equal(t, domain.TierStarter, f.user(t, userID).Tier)
}

func TestReconciler_ConcurrentDeliveriesActivateOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID, order := purchase(t, f, domain.TierStarter)

	f.provider.SetPayment(&billing.Payment{ID: "pay_8", Status: billing.PaymentStatusApproved, ExternalReference: order.ExternalReference})

	const deliveries = 10
	var wg sync.WaitGroup
	results := make(chan *ReconcileResult, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.reconciler.Reconcile(ctx, paymentWebhook("pay_8"))
			if assert.NoError(t, err) {
				results <- r
			}
		}()
	}
	wg.Wait()
	close(results)

	activated := 0
	for r := range results {
		if r.Activated {
			activated++
		}
	}
	assert.Equal(t, 1, activated)
	assert.Len(t, f.notifier.Events(), 1)
	assert.Equal(t, f.catalog.Get(domain.TierStarter).MaxRequestsPerCycle, f.user(t, userID).QuotaRemaining)
}

func TestReconciler_LostRaceSkipsActivation(t *testing.T) {
	ctrl := gomock.NewController(t)
	orders := mock.NewMockOrderStore(ctrl)
	users := mock.NewMockUserPlanStore(ctrl)
	provider := billing.NewMockProvider()

	order := &domain.Order{ID: uuid.New(), ExternalReference: "pref_1", UserID: uuid.New(), Tier: 1, Status: domain.OrderStatusCreated}
	provider.SetPayment(&billing.Payment{ID: "pay_9", Status: billing.PaymentStatusApproved, ExternalReference: "pref_1"})

	orders.EXPECT().GetOrderByExternalReference(gomock.Any(), "pref_1").Return(order, nil)
	orders.EXPECT().UpdateOrderStatus(gomock.Any(), gomock.Any()).Return(false, nil)
	// ApplyPlan is never expected.

	activation := NewPlanActivationService(users, domain.DefaultPlanCatalog(), nil, testLogger)
	r := NewWebhookReconciler(orders, users, provider, activation, nil, ReconcilerConfig{}, testLogger)

	result, err := r.ReconcilePayment(context.Background(), "pay_9")
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.False(t, result.Activated)
}

func TestReconciler_ActivationFailureRollsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	orders := mock.NewMockOrderStore(ctrl)
	users := mock.NewMockUserPlanStore(ctrl)
	provider := billing.NewMockProvider()

	order := &domain.Order{ID: uuid.New(), ExternalReference: "pref_2", UserID: uuid.New(), Tier: 2, Status: domain.OrderStatusPending}
	provider.SetPayment(&billing.Payment{ID: "pay_10", Status: billing.PaymentStatusApproved, ExternalReference: "pref_2"})

	gomock.InOrder(
		orders.EXPECT().GetOrderByExternalReference(gomock.Any(), "pref_2").Return(order, nil),
		orders.EXPECT().UpdateOrderStatus(gomock.Any(), domain.UpdateOrderStatusParams{
			ID:                order.ID,
			ExpectedStatus:    domain.OrderStatusPending,
			Status:            domain.OrderStatusApproved,
			ExternalPaymentID: "pay_10",
		}).Return(true, nil),
		users.EXPECT().ApplyPlan(gomock.Any(), gomock.Any()).Return(errors.New("deadlock detected")),
		orders.EXPECT().UpdateOrderStatus(gomock.Any(), domain.UpdateOrderStatusParams{
			ID:                order.ID,
			ExpectedStatus:    domain.OrderStatusApproved,
			Status:            domain.OrderStatusPending,
			StatusDetail:      "activation_failed",
			ExternalPaymentID: "pay_10",
		}).Return(true, nil),
	)

	activation := NewPlanActivationService(users, domain.DefaultPlanCatalog(), nil, testLogger)
	r := NewWebhookReconciler(orders, users, provider, activation, nil, ReconcilerConfig{}, testLogger)

	_, err := r.ReconcilePayment(context.Background(), "pay_10")
	assert.ErrorIs(t, err, domain.ErrPersistenceFailure)
}

func TestReconciler_GatewayErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"unknown payment", billing.ErrPaymentNotFound, ErrPaymentNotFound},
		{"gateway down", &billing.GatewayError{Gateway: "mock", Message: "unavailable", StatusCode: 503}, domain.ErrGatewayUnavailable},
		{"timeout", context.DeadlineExceeded, domain.ErrGatewayUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.provider.GetPaymentFunc = func(ctx context.Context, paymentID string) (*billing.Payment, error) {
				return nil, tt.err
			}

			_, err := f.reconciler.Reconcile(context.Background(), paymentWebhook("pay_1"))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReconciler_IgnoresNonPaymentNotifications(t *testing.T) {
	f := newFixture(t)

	result, err := f.reconciler.Reconcile(context.Background(), WebhookRequest{
		Payload:   []byte(`{"id":"evt_2","type":"merchant_order","data":{"id":"mo_1"}}`),
		Signature: "valid-signature",
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeIgnored, result.Outcome)
	assert.NotContains(t, f.provider.Calls(), "GetPayment(mo_1)")
}

func TestReconciler_QueryPaymentIDMatchingBody(t *testing.T) {
	f := newFixture(t)
	_, order := purchase(t, f, domain.TierStarter)
	f.provider.SetPayment(&billing.Payment{ID: "pay_q", Status: billing.PaymentStatusPending, ExternalReference: order.ExternalReference})

	req := paymentWebhook("pay_q")
	req.PaymentID = "pay_q"
	result, err := f.reconciler.Reconcile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "pay_q", result.PaymentID)
	assert.True(t, result.Changed)
}

func TestReconciler_QueryPaymentIDMismatchRejected(t *testing.T) {
	tests := []struct {
		name string
		req  WebhookRequest
	}{
		{
			name: "different id than the signed body",
			req:  WebhookRequest{Payload: paymentWebhook("pay_cheap").Payload, Signature: "valid-signature", PaymentID: "pay_other"},
		},
		{
			name: "signed body without an id",
			req:  WebhookRequest{Payload: []byte(`{}`), Signature: "valid-signature", PaymentID: "pay_other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			userID, order := purchase(t, f, domain.TierPro)
			f.provider.SetPayment(&billing.Payment{ID: "pay_other", Status: billing.PaymentStatusApproved, ExternalReference: order.ExternalReference})

			result, err := f.reconciler.Reconcile(context.Background(), tt.req)

			assert.Nil(t, result)
			assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
			assert.NotContains(t, f.provider.Calls(), "GetPayment(pay_other)")
			assert.Equal(t, domain.OrderStatusCreated, f.order(t, order.ExternalReference).Status)
			assert.Equal(t, domain.TierFree, f.user(t, userID).Tier)
		})
	}
}

func TestReconciler_MalformedBody(t *testing.T) {
	f := newFixture(t)

	_, err := f.reconciler.Reconcile(context.Background(), WebhookRequest{Payload: []byte(`{not json`), Signature: "valid-signature"})

	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

type stubLocker struct {
	ok  bool
	err error
}

func (l stubLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, l.ok, l.err
}

func TestReconciler_LockHeldSkipsPayment(t *testing.T) {
	f := newFixture(t)
	r := NewWebhookReconciler(f.store, f.store, f.provider, f.activation, stubLocker{ok: false}, ReconcilerConfig{}, testLogger)

	result, err := r.ReconcilePayment(context.Background(), "pay_locked")
	require.NoError(t, err)

	assert.Equal(t, OutcomeInProgress, result.Outcome)
	assert.NotContains(t, f.provider.Calls(), "GetPayment(pay_locked)")
}

func TestReconciler_LockErrorContinues(t *testing.T) {
	f := newFixture(t)
	_, order := purchase(t, f, domain.TierStarter)
	f.provider.SetPayment(&billing.Payment{ID: "pay_l", Status: billing.PaymentStatusPending, ExternalReference: order.ExternalReference})

	r := NewWebhookReconciler(f.store, f.store, f.provider, f.activation, stubLocker{err: errors.New("redis down")}, ReconcilerConfig{}, testLogger)

	result, err := r.ReconcilePayment(context.Background(), "pay_l")
	require.NoError(t, err)
	assert.True(t, result.Changed)
}

func TestReconciler_OldOrderPaidAfterReplacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sentRefs := map[int]string{}
	f.provider.CreatePreferenceFunc = func(ctx context.Context, params billing.CreatePreferenceParams) (*billing.Preference, error) {
		sentRefs[params.Tier] = params.ExternalReference
		return &billing.Preference{ID: "pref_" + uuid.NewString(), CheckoutURL: "https://pay.example.com"}, nil
	}

	userID := f.newUser(t)
	orderA, err := f.orders.CreateOrder(ctx, userID, domain.TierStarter)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	orderB, err := f.orders.CreateOrder(ctx, userID, domain.TierPro)
	require.NoError(t, err)
	require.Equal(t, orderB.ExternalReference, f.user(t, userID).PendingOrderRef)

	// The payer completes the first checkout. The gateway echoes the
	// reference it was given for that preference.
	f.provider.SetPayment(&billing.Payment{
		ID:                "pay-A",
		Status:            billing.PaymentStatusApproved,
		ExternalReference: sentRefs[domain.TierStarter],
		PayerUserID:       userID.String(),
		Tier:              domain.TierStarter,
		Amount:            orderA.Amount,
		ApprovedAt:        f.clock.Now(),
	})

	result, err := f.reconciler.Reconcile(ctx, paymentWebhook("pay-A"))
	require.NoError(t, err)

	assert.Equal(t, orderA.ID, result.OrderID)
	assert.True(t, result.Activated)
	assert.Equal(t, domain.OrderStatusApproved, f.order(t, orderA.ExternalReference).Status)
	assert.Equal(t, domain.OrderStatusCreated, f.order(t, orderB.ExternalReference).Status)
	assert.Equal(t, domain.TierStarter, f.user(t, userID).Tier)
}

func TestReconciler_PendingOrderFallbackChecksTierAndAmount(t *testing.T) {
	tests := []struct {
		name    string
		payment func(order *domain.Order) *billing.Payment
	}{
		{
			name: "tier differs from the pending order",
			payment: func(order *domain.Order) *billing.Payment {
				return &billing.Payment{Tier: domain.TierStarter, Amount: order.Amount}
			},
		},
		{
			name: "amount differs from the pending order",
			payment: func(order *domain.Order) *billing.Payment {
				return &billing.Payment{Tier: order.Tier, Amount: order.Amount.Sub(decimal.NewFromInt(1))}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			userID, order := purchase(t, f, domain.TierPro)

			// No reference echoed: only the payer metadata links the payment.
			payment := tt.payment(order)
			payment.ID = "pay_old"
			payment.Status = billing.PaymentStatusApproved
			payment.PayerUserID = userID.String()
			f.provider.SetPayment(payment)

			_, err := f.reconciler.Reconcile(context.Background(), paymentWebhook("pay_old"))

			assert.ErrorIs(t, err, domain.ErrOrderNotFound)
			assert.Equal(t, domain.OrderStatusCreated, f.order(t, order.ExternalReference).Status)
			assert.Equal(t, domain.TierFree, f.user(t, userID).Tier)
		})
	}
}
