package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/telemetry"
	"github.com/google/uuid"
)

// QuotaEnforcer gates analysis requests on the user's remaining quota.
type QuotaEnforcer interface {
	// CheckQuota reports whether the user has at least one request left.
	CheckQuota(ctx context.Context, userID uuid.UUID) (bool, error)

	// DecrementQuota consumes one request. Returns domain.ErrQuotaExceeded
	// when nothing is left; the quota never drops below zero.
	DecrementQuota(ctx context.Context, userID uuid.UUID) error

	// ResetQuota sets the quota to the plan maximum for tier without touching
	// the tier or expiration. Plan activation does not call it: ApplyPlan
	// writes the quota in the same update as the tier.
	ResetQuota(ctx context.Context, userID uuid.UUID, tier int) error
}

type quotaEnforcer struct {
	users   domain.UserPlanStore
	catalog *domain.PlanCatalog
	logger  *slog.Logger
}

// NewQuotaEnforcer creates a new QuotaEnforcer.
func NewQuotaEnforcer(users domain.UserPlanStore, catalog *domain.PlanCatalog, logger *slog.Logger) QuotaEnforcer {
	return &quotaEnforcer{
		users:   users,
		catalog: catalog,
		logger:  logger.With("service", "quota"),
	}
}

func (q *quotaEnforcer) CheckQuota(ctx context.Context, userID uuid.UUID) (bool, error) {
	const op = "service.QuotaEnforcer.CheckQuota"

	user, err := q.users.GetUserPlan(ctx, userID)
	if err != nil {
		return false, storeError(op, err)
	}
	return user.QuotaRemaining > 0, nil
}

// DecrementQuota relies on the store's conditional decrement and never
// writes back a value it read.
func (q *quotaEnforcer) DecrementQuota(ctx context.Context, userID uuid.UUID) error {
	const op = "service.QuotaEnforcer.DecrementQuota"

	remaining, err := q.users.DecrementQuota(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			return domain.ErrQuotaExceeded.WithOp(op)
		}
		q.logger.ErrorContext(ctx, "failed to decrement quota", "user_id", userID, "error", err)
		return storeError(op, err)
	}

	q.logger.DebugContext(ctx, "quota consumed", "user_id", userID, "remaining", remaining)
	return nil
}

func (q *quotaEnforcer) ResetQuota(ctx context.Context, userID uuid.UUID, tier int) error {
	const op = "service.QuotaEnforcer.ResetQuota"

	plan := q.catalog.Get(tier)
	if err := q.users.SetQuota(ctx, userID, plan.MaxRequestsPerCycle); err != nil {
		q.logger.ErrorContext(ctx, "failed to reset quota", "user_id", userID, "tier", tier, "error", err)
		return storeError(op, err)
	}
	return nil
}

func tierLabel(tier int) string {
	return strconv.Itoa(tier)
}

func recordQuotaConsumed(tier int) {
	if telemetry.Business != nil {
		telemetry.Business.QuotaConsumed.WithLabelValues(tierLabel(tier)).Inc()
	}
}

func recordQuotaExceeded(tier int) {
	if telemetry.Business != nil {
		telemetry.Business.QuotaExceeded.WithLabelValues(tierLabel(tier)).Inc()
	}
}
