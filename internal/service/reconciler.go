package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/billing"
	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/telemetry"
	"github.com/google/uuid"
)

// Webhook outcomes, used as the outcome label on processed webhooks.
const (
	OutcomeIgnored    = "ignored"
	OutcomeUnchanged  = "unchanged"
	OutcomeUpdated    = "updated"
	OutcomeActivated  = "activated"
	OutcomeInProgress = "in_progress"
)

// WebhookReconciler turns gateway notifications into order status changes
// and plan activations.
type WebhookReconciler interface {
	// Reconcile authenticates and parses a webhook, then reconciles the
	// payment it names. Returns domain.ErrSignatureInvalid before touching
	// any state when the signature does not verify.
	Reconcile(ctx context.Context, req WebhookRequest) (*ReconcileResult, error)

	// ReconcilePayment fetches paymentID from the gateway and applies its
	// status to the matching local order. Safe to call repeatedly.
	ReconcilePayment(ctx context.Context, paymentID string) (*ReconcileResult, error)
}

// WebhookRequest is a raw webhook delivery.
type WebhookRequest struct {
	Payload   []byte
	Signature string

	// PaymentID is the id some gateways repeat in the query string. It is
	// not covered by the signature, so it must match the id in the body.
	PaymentID string
}

// ReconcileResult describes what a reconciliation did.
type ReconcileResult struct {
	PaymentID string
	OrderID   uuid.UUID
	UserID    uuid.UUID
	Previous  domain.OrderStatus
	Status    domain.OrderStatus
	Outcome   string
	Changed   bool
	Activated bool
}

// Locker serialises work on a key across processes.
type Locker interface {
	// TryLock returns ok=false without blocking when the key is held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// NoopLocker always grants the lock.
type NoopLocker struct{}

func (NoopLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

// ReconcilerConfig configures a WebhookReconciler.
type ReconcilerConfig struct {
	// WebhookSecret is the gateway's signing secret.
	WebhookSecret string

	// GatewayTimeout bounds each gateway call. Default: 10s
	GatewayTimeout time.Duration

	// LockTTL is how long a payment stays locked. Default: 30s
	LockTTL time.Duration
}

type webhookReconciler struct {
	orders     domain.OrderStore
	users      domain.UserPlanStore
	provider   billing.Provider
	activation PlanActivationService
	locker     Locker
	config     ReconcilerConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewWebhookReconciler creates a new WebhookReconciler. locker may be nil.
func NewWebhookReconciler(
	orders domain.OrderStore,
	users domain.UserPlanStore,
	provider billing.Provider,
	activation PlanActivationService,
	locker Locker,
	config ReconcilerConfig,
	logger *slog.Logger,
) WebhookReconciler {
	if locker == nil {
		locker = NoopLocker{}
	}
	if config.GatewayTimeout <= 0 {
		config.GatewayTimeout = 10 * time.Second
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 30 * time.Second
	}
	return &webhookReconciler{
		orders:     orders,
		users:      users,
		provider:   provider,
		activation: activation,
		locker:     locker,
		config:     config,
		logger:     logger.With("service", "reconciler", "gateway", provider.Name()),
		now:        time.Now,
	}
}

func (r *webhookReconciler) Reconcile(ctx context.Context, req WebhookRequest) (*ReconcileResult, error) {
	const op = "service.WebhookReconciler.Reconcile"

	if err := r.provider.VerifyWebhookSignature(req.Payload, req.Signature, r.config.WebhookSecret); err != nil {
		r.logger.WarnContext(ctx, "webhook signature verification failed",
			"security_event", true,
			"signature_present", req.Signature != "",
			"error", err,
		)
		if telemetry.Business != nil {
			telemetry.Business.WebhookSignatureFailures.WithLabelValues(r.provider.Name()).Inc()
		}
		return nil, domain.ErrSignatureInvalid.Wrap(op, err)
	}

	n, err := r.provider.ParseNotification(req.Payload)
	if err != nil {
		// A body we can read but not parse will never parse; there is
		// nothing to retry.
		r.logger.WarnContext(ctx, "unparseable webhook body", "error", err)
		r.recordFailed("malformed")
		return nil, domain.Invalid(op, "malformed notification")
	}

	if telemetry.Business != nil {
		telemetry.Business.WebhookReceived.WithLabelValues(r.provider.Name(), n.Type).Inc()
	}

	paymentID := n.PaymentID
	if req.PaymentID != "" && req.PaymentID != paymentID {
		r.logger.WarnContext(ctx, "webhook payment id does not match signed body",
			"security_event", true,
			"body_payment_id", paymentID,
			"query_payment_id", req.PaymentID,
		)
		r.recordFailed("payment_id_mismatch")
		return nil, domain.ErrSignatureInvalid.Wrap(op, errors.New("payment id does not match signed notification"))
	}
	if paymentID == "" {
		r.logger.DebugContext(ctx, "ignoring notification without payment",
			"event_id", n.EventID,
			"event_type", n.Type,
		)
		r.recordProcessed(OutcomeIgnored)
		return &ReconcileResult{Outcome: OutcomeIgnored}, nil
	}

	return r.ReconcilePayment(ctx, paymentID)
}

// ReconcilePayment applies the gateway's view of a payment.
//
// Flow:
//  1. Fetch the payment (ground truth)
//  2. Resolve the local order by external reference, then by the payer's
//     pending order
//  3. Conditionally move the order to the reported status
//  4. Activate the plan on a real transition into approved
func (r *webhookReconciler) ReconcilePayment(ctx context.Context, paymentID string) (*ReconcileResult, error) {
	const op = "service.WebhookReconciler.ReconcilePayment"

	release, ok, err := r.locker.TryLock(ctx, r.provider.Name()+":"+paymentID, r.config.LockTTL)
	switch {
	case err != nil:
		r.logger.WarnContext(ctx, "reconcile lock unavailable, continuing without it",
			"payment_id", paymentID,
			"error", err,
		)
	case !ok:
		r.logger.InfoContext(ctx, "payment already being reconciled", "payment_id", paymentID)
		r.recordProcessed(OutcomeInProgress)
		return &ReconcileResult{PaymentID: paymentID, Outcome: OutcomeInProgress}, nil
	default:
		defer release()
	}

	payment, err := r.fetchPayment(ctx, paymentID)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to fetch payment",
			"payment_id", paymentID,
			"temporary", billing.IsTemporary(err),
			"error", err,
		)
		r.recordFailed("gateway")
		return nil, gatewayError(op, err)
	}

	order, err := r.resolveOrder(ctx, payment)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			r.reportOrderNotFound(ctx, payment)
			return nil, domain.ErrOrderNotFound.WithOp(op)
		}
		r.logger.ErrorContext(ctx, "failed to resolve order", "payment_id", paymentID, "error", err)
		r.recordFailed("persistence")
		return nil, storeError(op, err)
	}

	result := &ReconcileResult{
		PaymentID: payment.ID,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Previous:  order.Status,
		Status:    order.Status,
		Outcome:   OutcomeUnchanged,
	}
	target := domain.OrderStatus(payment.Status)

	if order.Status == target {
		r.recordProcessed(OutcomeUnchanged)
		return result, nil
	}
	if !order.Status.CanTransition(target) {
		r.logger.WarnContext(ctx, "ignoring status change on settled order",
			"order_id", order.ID,
			"payment_id", payment.ID,
			"current", order.Status,
			"reported", target,
		)
		r.recordProcessed(OutcomeUnchanged)
		return result, nil
	}

	changed, err := r.orders.UpdateOrderStatus(ctx, domain.UpdateOrderStatusParams{
		ID:                order.ID,
		ExpectedStatus:    order.Status,
		Status:            target,
		StatusDetail:      payment.StatusDetail,
		ExternalPaymentID: payment.ID,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to update order status",
			"order_id", order.ID,
			"user_id", order.UserID,
			"external_reference", order.ExternalReference,
			"payment_id", payment.ID,
			"error", err,
		)
		telemetry.CaptureErrorFromContext(ctx, err, map[string]interface{}{
			"order_id":   order.ID.String(),
			"payment_id": payment.ID,
		})
		r.recordFailed("persistence")
		return nil, storeError(op, err)
	}
	if !changed {
		// Another delivery moved the order first and owns any activation.
		r.logger.InfoContext(ctx, "order status changed concurrently",
			"order_id", order.ID,
			"payment_id", payment.ID,
		)
		r.recordProcessed(OutcomeUnchanged)
		return result, nil
	}

	result.Status = target
	result.Changed = true
	result.Outcome = OutcomeUpdated

	r.logger.InfoContext(ctx, "order status updated",
		"order_id", order.ID,
		"user_id", order.UserID,
		"payment_id", payment.ID,
		"from", order.Status,
		"to", target,
		"detail", payment.StatusDetail,
	)
	if telemetry.Business != nil {
		telemetry.Business.OrderStatusChanges.WithLabelValues(r.provider.Name(), string(order.Status), string(target)).Inc()
	}
	telemetry.AddBreadcrumb("reconcile", "order status changed", map[string]interface{}{
		"order_id":   order.ID.String(),
		"payment_id": payment.ID,
		"from":       string(order.Status),
		"to":         string(target),
	})

	if target == domain.OrderStatusApproved {
		if err := r.activation.Activate(ctx, order.UserID, order.Tier, payment.ApprovedAt); err != nil {
			r.rollbackApproval(ctx, order, payment.ID, err)
			r.recordFailed("activation")
			return nil, err
		}
		result.Activated = true
		result.Outcome = OutcomeActivated
	}

	r.recordProcessed(result.Outcome)
	return result, nil
}

func (r *webhookReconciler) fetchPayment(ctx context.Context, paymentID string) (*billing.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.GatewayTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if telemetry.Business != nil {
			telemetry.Business.GatewayAPILatency.WithLabelValues(r.provider.Name(), "get_payment").Observe(time.Since(start).Seconds())
		}
	}()

	return r.provider.GetPayment(ctx, paymentID)
}

// resolveOrder finds the order a payment belongs to. Payments without a
// known external reference are matched through the payer's pending order,
// but only when the tier and amount the gateway reports agree with it.
func (r *webhookReconciler) resolveOrder(ctx context.Context, payment *billing.Payment) (*domain.Order, error) {
	if payment.ExternalReference != "" {
		order, err := r.orders.GetOrderByExternalReference(ctx, payment.ExternalReference)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, domain.ErrOrderNotFound) {
			return nil, err
		}
	}

	userID, err := uuid.Parse(payment.PayerUserID)
	if err != nil {
		return nil, domain.ErrOrderNotFound
	}

	user, err := r.users.GetUserPlan(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	if user.PendingOrderRef == "" {
		return nil, domain.ErrOrderNotFound
	}

	order, err := r.orders.GetOrderByExternalReference(ctx, user.PendingOrderRef)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	if payment.Tier != 0 && payment.Tier != order.Tier {
		return nil, domain.ErrOrderNotFound
	}
	if !payment.Amount.IsZero() && !payment.Amount.Equal(order.Amount) {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *webhookReconciler) reportOrderNotFound(ctx context.Context, payment *billing.Payment) {
	r.logger.ErrorContext(ctx, "payment does not match any order",
		"payment_id", payment.ID,
		"external_reference", payment.ExternalReference,
		"payer_user_id", payment.PayerUserID,
		"status", payment.Status,
	)
	telemetry.CaptureErrorFromContext(ctx, domain.ErrOrderNotFound, map[string]interface{}{
		"payment_id":         payment.ID,
		"external_reference": payment.ExternalReference,
		"payer_user_id":      payment.PayerUserID,
		"gateway":            r.provider.Name(),
	})
	if telemetry.Business != nil {
		telemetry.Business.OrdersNotFound.WithLabelValues(r.provider.Name()).Inc()
	}
	r.recordFailed("order_not_found")
}

// rollbackApproval returns an order to its previous status when the plan
// could not be applied, so the stale-order sweeper retries the approval.
func (r *webhookReconciler) rollbackApproval(ctx context.Context, order *domain.Order, paymentID string, cause error) {
	r.logger.ErrorContext(ctx, "plan activation failed for approved order",
		"order_id", order.ID,
		"user_id", order.UserID,
		"tier", order.Tier,
		"payment_id", paymentID,
		"error", cause,
	)
	telemetry.CaptureErrorFromContext(ctx, cause, map[string]interface{}{
		"order_id":   order.ID.String(),
		"user_id":    order.UserID.String(),
		"payment_id": paymentID,
	})

	if _, err := r.orders.UpdateOrderStatus(ctx, domain.UpdateOrderStatusParams{
		ID:                order.ID,
		ExpectedStatus:    domain.OrderStatusApproved,
		Status:            order.Status,
		StatusDetail:      "activation_failed",
		ExternalPaymentID: paymentID,
	}); err != nil {
		r.logger.ErrorContext(ctx, "failed to roll back order after activation failure",
			"order_id", order.ID,
			"error", err,
		)
	}
}

func (r *webhookReconciler) recordProcessed(outcome string) {
	if telemetry.Business != nil {
		telemetry.Business.WebhookProcessed.WithLabelValues(r.provider.Name(), outcome).Inc()
	}
}

func (r *webhookReconciler) recordFailed(reason string) {
	if telemetry.Business != nil {
		telemetry.Business.WebhookFailed.WithLabelValues(r.provider.Name(), reason).Inc()
	}
}
