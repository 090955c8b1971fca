package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/billing"
	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/telemetry"
	"github.com/google/uuid"
)

// OrderService provides business logic for plan purchases.
type OrderService interface {
	// CreateOrder registers a purchase of tier with the gateway, persists the
	// order in the created status and links it to the user as the pending
	// order. The returned order carries the gateway checkout URL.
	CreateOrder(ctx context.Context, userID uuid.UUID, tier int) (*domain.Order, error)

	// ListOrders returns the user's orders, newest first.
	ListOrders(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
}

// OrderServiceConfig tunes order creation.
type OrderServiceConfig struct {
	// Currency is the ISO 4217 code for preferences. Default: brl
	Currency string

	// GatewayTimeout bounds each gateway call. Default: 10s
	GatewayTimeout time.Duration

	// PendingOrderTTL is how long an open order blocks a new purchase.
	// Default: 30m
	PendingOrderTTL time.Duration
}

func (c OrderServiceConfig) withDefaults() OrderServiceConfig {
	if c.Currency == "" {
		c.Currency = "brl"
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = 10 * time.Second
	}
	if c.PendingOrderTTL <= 0 {
		c.PendingOrderTTL = 30 * time.Minute
	}
	return c
}

type orderService struct {
	orders   domain.OrderStore
	users    domain.UserPlanStore
	catalog  *domain.PlanCatalog
	provider billing.Provider
	config   OrderServiceConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrderService creates a new OrderService instance.
func NewOrderService(
	orders domain.OrderStore,
	users domain.UserPlanStore,
	catalog *domain.PlanCatalog,
	provider billing.Provider,
	config OrderServiceConfig,
	logger *slog.Logger,
) OrderService {
	return &orderService{
		orders:   orders,
		users:    users,
		catalog:  catalog,
		provider: provider,
		config:   config.withDefaults(),
		logger:   logger.With("service", "order", "gateway", provider.Name()),
		now:      time.Now,
	}
}

// CreateOrder creates a purchase for tier.
//
// Flow:
//  1. Validate the tier (paid tiers only)
//  2. Load the user and refuse while a recent order is still open
//  3. Derive the order's external reference and create the gateway
//     preference carrying it, under a timeout
//  4. Persist the order (created)
//  5. Store the external reference as the user's pending order
//
// The external reference is generated locally so every payment made
// against the preference names the order it pays for.
//
// A gateway failure leaves local state untouched. A store failure after
// step 3 leaves a preference with no local order; it is logged as a
// dangling order and reported.
func (s *orderService) CreateOrder(ctx context.Context, userID uuid.UUID, tier int) (*domain.Order, error) {
	const op = "service.OrderService.CreateOrder"

	plan, ok := s.catalog.Lookup(tier)
	if !ok || !plan.IsPaid() {
		return nil, domain.ErrInvalidPlan.WithOp(op)
	}

	user, err := s.users.GetUserPlan(ctx, userID)
	if err != nil {
		return nil, storeError(op, err)
	}

	now := s.now()
	if err := s.checkPendingOrder(ctx, user, now); err != nil {
		return nil, err
	}

	idempotencyKey := orderIdempotencyKey(user.UserID, plan.Tier, now)
	ref := orderReference(idempotencyKey)

	pref, err := s.createPreference(ctx, user, plan, ref, idempotencyKey)
	if err != nil {
		s.logger.WarnContext(ctx, "gateway unavailable while creating order",
			"user_id", userID,
			"tier", tier,
			"error", err,
		)
		s.recordCreateFailed("gateway_unavailable")
		return nil, domain.ErrGatewayUnavailable.Wrap(op, err)
	}

	order, err := s.orders.CreateOrder(ctx, domain.CreateOrderParams{
		ExternalReference: ref,
		UserID:            userID,
		Tier:              plan.Tier,
		Amount:            plan.Price,
		Currency:          s.config.Currency,
		Gateway:           s.provider.Name(),
	})
	if err != nil {
		// The same idempotency key returned an existing preference.
		if domain.IsCode(err, domain.ECONFLICT) {
			return nil, domain.ErrPurchaseInProgress.WithOp(op)
		}
		s.reportDangling(ctx, "order insert failed", userID, plan.Tier, ref, err)
		return nil, domain.ErrPersistenceFailure.Wrap(op, err)
	}

	if err := s.users.SetPendingOrderRef(ctx, userID, ref); err != nil {
		s.reportDangling(ctx, "pending order reference not stored", userID, plan.Tier, ref, err)
		return nil, domain.ErrPersistenceFailure.Wrap(op, err)
	}

	s.logger.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"user_id", userID,
		"tier", plan.Tier,
		"amount", plan.Price.StringFixed(2),
		"external_reference", ref,
		"preference_id", pref.ID,
	)
	if telemetry.Business != nil {
		telemetry.Business.OrdersCreated.WithLabelValues(s.provider.Name(), tierLabel(plan.Tier)).Inc()
	}

	order.CheckoutURL = pref.CheckoutURL
	return order, nil
}

// checkPendingOrder returns ErrPurchaseInProgress while the user's pending
// order is open and younger than the TTL. Missing, terminal or old pending
// orders are overwritten.
func (s *orderService) checkPendingOrder(ctx context.Context, user *domain.UserPlanState, now time.Time) error {
	const op = "service.OrderService.CreateOrder"

	if user.PendingOrderRef == "" {
		return nil
	}

	pending, err := s.orders.GetOrderByExternalReference(ctx, user.PendingOrderRef)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil
		}
		return storeError(op, err)
	}

	if pending.Status.IsTerminal() || now.Sub(pending.CreatedAt) >= s.config.PendingOrderTTL {
		if !pending.Status.IsTerminal() {
			s.logger.InfoContext(ctx, "replacing expired pending order",
				"user_id", user.UserID,
				"order_id", pending.ID,
				"external_reference", pending.ExternalReference,
			)
		}
		return nil
	}

	if telemetry.Business != nil {
		telemetry.Business.PurchasesInProgress.WithLabelValues(tierLabel(pending.Tier)).Inc()
	}
	return domain.ErrPurchaseInProgress.WithOp(op)
}

// orderIdempotencyKey collapses double submits within the same minute.
func orderIdempotencyKey(userID uuid.UUID, tier int, now time.Time) string {
	return fmt.Sprintf("order-%s-%d-%d", userID, tier, now.Truncate(time.Minute).Unix())
}

// orderReference derives the external reference from the idempotency key, so
// a double submit maps to the same order and fails the unique insert.
func orderReference(idempotencyKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(idempotencyKey)).String()
}

func (s *orderService) createPreference(ctx context.Context, user *domain.UserPlanState, plan domain.Plan, ref, idempotencyKey string) (*billing.Preference, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.GatewayTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if telemetry.Business != nil {
			telemetry.Business.GatewayAPILatency.WithLabelValues(s.provider.Name(), "create_preference").Observe(time.Since(start).Seconds())
		}
	}()

	return s.provider.CreatePreference(ctx, billing.CreatePreferenceParams{
		UserID:            user.UserID.String(),
		Email:             user.Email,
		Tier:              plan.Tier,
		Title:             plan.DisplayName,
		Amount:            plan.Price,
		Currency:          s.config.Currency,
		ExternalReference: ref,
		IdempotencyKey:    idempotencyKey,
	})
}

func (s *orderService) reportDangling(ctx context.Context, reason string, userID uuid.UUID, tier int, ref string, err error) {
	s.logger.ErrorContext(ctx, "dangling order",
		"reason", reason,
		"user_id", userID,
		"tier", tier,
		"external_reference", ref,
		"error", err,
	)
	telemetry.CaptureErrorFromContext(ctx, err, map[string]interface{}{
		"reason":             reason,
		"user_id":            userID.String(),
		"tier":               tier,
		"external_reference": ref,
		"gateway":            s.provider.Name(),
	})
	if telemetry.Business != nil {
		telemetry.Business.DanglingOrders.WithLabelValues(s.provider.Name()).Inc()
	}
	s.recordCreateFailed("persistence")
}

func (s *orderService) recordCreateFailed(reason string) {
	if telemetry.Business != nil {
		telemetry.Business.OrderCreateFailed.WithLabelValues(s.provider.Name(), reason).Inc()
	}
}

func (s *orderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	const op = "service.OrderService.ListOrders"

	orders, err := s.orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, storeError(op, err)
	}
	return orders, nil
}
