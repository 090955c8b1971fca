package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/telemetry"
	"github.com/google/uuid"
)

const expireBatchSize = 100

// PlanActivationService owns the tier and expiration fields of a user.
type PlanActivationService interface {
	// EnsureUser registers a user at the free tier with the free quota.
	// Existing users are returned unchanged.
	EnsureUser(ctx context.Context, userID uuid.UUID, email string) (*domain.UserPlanState, error)

	// Activate applies tier to the user: expiration = approvedAt + 30 days,
	// quota reset to the plan maximum, pending reference cleared.
	Activate(ctx context.Context, userID uuid.UUID, tier int, approvedAt time.Time) error

	// IsPlanActive reports whether state holds an unexpired paid plan at now.
	IsPlanActive(state *domain.UserPlanState, now time.Time) bool

	// PlanStatus returns the read-only plan view for a user.
	PlanStatus(ctx context.Context, userID uuid.UUID) (*PlanStatus, error)

	// ExpirePlans downgrades every user whose plan expired before now and
	// returns how many were changed.
	ExpirePlans(ctx context.Context, now time.Time) (int, error)
}

// ActivationNotifier is told about every applied plan. Failures are logged
// and never undo the activation.
type ActivationNotifier interface {
	NotifyPlanActivated(ctx context.Context, event domain.PlanActivatedEvent) error
}

// PlanStatus is the plan-status read model.
type PlanStatus struct {
	UserID          uuid.UUID
	Tier            int
	PlanName        string
	AIModel         string
	Active          bool
	PlanExpiration  *time.Time
	QuotaRemaining  int
	MaxRequests     int
	PendingOrderRef string
}

type planActivationService struct {
	users    domain.UserPlanStore
	catalog  *domain.PlanCatalog
	notifier ActivationNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewPlanActivationService creates a new PlanActivationService.
// notifier may be nil.
func NewPlanActivationService(users domain.UserPlanStore, catalog *domain.PlanCatalog, notifier ActivationNotifier, logger *slog.Logger) PlanActivationService {
	return &planActivationService{
		users:    users,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger.With("service", "plan_activation"),
		now:      time.Now,
	}
}

func (s *planActivationService) EnsureUser(ctx context.Context, userID uuid.UUID, email string) (*domain.UserPlanState, error) {
	const op = "service.PlanActivationService.EnsureUser"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "user id is required")
	}

	user, err := s.users.EnsureUser(ctx, domain.CreateUserParams{
		UserID:         userID,
		Email:          email,
		QuotaRemaining: s.catalog.Get(domain.TierFree).MaxRequestsPerCycle,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to ensure user", "user_id", userID, "error", err)
		return nil, storeError(op, err)
	}
	return user, nil
}

func (s *planActivationService) Activate(ctx context.Context, userID uuid.UUID, tier int, approvedAt time.Time) error {
	const op = "service.PlanActivationService.Activate"

	if approvedAt.IsZero() {
		approvedAt = s.now()
	}

	plan := s.catalog.Get(tier)
	expiresAt := approvedAt.Add(domain.CycleLength)

	err := s.users.ApplyPlan(ctx, domain.ApplyPlanParams{
		UserID:         userID,
		Tier:           plan.Tier,
		PlanExpiration: expiresAt,
		QuotaRemaining: plan.MaxRequestsPerCycle,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to apply plan",
			"user_id", userID,
			"tier", plan.Tier,
			"error", err,
		)
		return storeError(op, err)
	}

	s.logger.InfoContext(ctx, "plan activated",
		"user_id", userID,
		"tier", plan.Tier,
		"plan", plan.DisplayName,
		"expires_at", expiresAt,
		"quota", plan.MaxRequestsPerCycle,
	)
	if telemetry.Business != nil {
		telemetry.Business.PlanActivations.WithLabelValues(tierLabel(plan.Tier)).Inc()
	}

	s.notify(ctx, userID, plan, expiresAt)
	return nil
}

func (s *planActivationService) notify(ctx context.Context, userID uuid.UUID, plan domain.Plan, expiresAt time.Time) {
	if s.notifier == nil {
		return
	}

	event := domain.PlanActivatedEvent{
		UserID:         userID,
		Tier:           plan.Tier,
		PlanName:       plan.DisplayName,
		QuotaRemaining: plan.MaxRequestsPerCycle,
		ExpiresAt:      expiresAt,
	}
	if user, err := s.users.GetUserPlan(ctx, userID); err == nil {
		event.Email = user.Email
	}

	if err := s.notifier.NotifyPlanActivated(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to enqueue plan activation notice",
			"user_id", userID,
			"error", err,
		)
	}
}

func (s *planActivationService) IsPlanActive(state *domain.UserPlanState, now time.Time) bool {
	return state.IsPlanActive(now)
}

func (s *planActivationService) PlanStatus(ctx context.Context, userID uuid.UUID) (*PlanStatus, error) {
	const op = "service.PlanActivationService.PlanStatus"

	user, err := s.users.GetUserPlan(ctx, userID)
	if err != nil {
		return nil, storeError(op, err)
	}

	now := s.now()
	active := user.IsPlanActive(now)

	// An expired plan reads as the free plan until the sweeper downgrades it.
	plan := s.catalog.Get(domain.TierFree)
	if active {
		plan = s.catalog.Get(user.Tier)
	}

	return &PlanStatus{
		UserID:          user.UserID,
		Tier:            user.Tier,
		PlanName:        plan.DisplayName,
		AIModel:         plan.AIModel,
		Active:          active,
		PlanExpiration:  user.PlanExpiration,
		QuotaRemaining:  user.QuotaRemaining,
		MaxRequests:     s.catalog.Get(user.Tier).MaxRequestsPerCycle,
		PendingOrderRef: user.PendingOrderRef,
	}, nil
}

func (s *planActivationService) ExpirePlans(ctx context.Context, now time.Time) (int, error) {
	const op = "service.PlanActivationService.ExpirePlans"

	freeQuota := s.catalog.Get(domain.TierFree).MaxRequestsPerCycle
	total := 0

	for {
		users, err := s.users.ListExpiredPlans(ctx, now, expireBatchSize)
		if err != nil {
			return total, storeError(op, err)
		}
		if len(users) == 0 {
			return total, nil
		}

		changed := 0
		for _, u := range users {
			ok, err := s.users.ExpirePlan(ctx, u.UserID, now, freeQuota)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to expire plan", "user_id", u.UserID, "error", err)
				continue
			}
			if ok {
				changed++
				s.logger.InfoContext(ctx, "plan expired",
					"user_id", u.UserID,
					"tier", u.Tier,
					"expired_at", u.PlanExpiration,
				)
			}
		}

		total += changed
		if telemetry.Business != nil {
			telemetry.Business.PlanExpirations.Add(float64(changed))
		}

		// Nothing moved in this batch; retrying would loop on the same rows.
		if changed == 0 || len(users) < expireBatchSize {
			return total, nil
		}
	}
}
