package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserPlanState is the plan-related subset of a user record.
// QuotaRemaining is never negative.
type UserPlanState struct {
	UserID          uuid.UUID
	Email           string
	Tier            int
	PlanExpiration  *time.Time
	QuotaRemaining  int
	PendingOrderRef string
	EmailVerified   bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsPlanActive reports whether the user holds a paid plan that has not expired.
func (u *UserPlanState) IsPlanActive(now time.Time) bool {
	if u == nil || u.Tier <= TierFree || u.PlanExpiration == nil {
		return false
	}
	return !now.After(*u.PlanExpiration)
}

// CreateUserParams holds the fields for a new user plan record.
type CreateUserParams struct {
	UserID         uuid.UUID
	Email          string
	QuotaRemaining int
}

// ApplyPlanParams sets tier, expiration and quota in one write and clears
// the pending order reference.
type ApplyPlanParams struct {
	UserID         uuid.UUID
	Tier           int
	PlanExpiration time.Time
	QuotaRemaining int
}

// UserPlanStore persists per-user plan fields.
type UserPlanStore interface {
	// EnsureUser inserts the user at the free tier unless it already exists,
	// and returns the stored record.
	EnsureUser(ctx context.Context, params CreateUserParams) (*UserPlanState, error)

	// GetUserPlan returns ErrUserNotFound when the user does not exist.
	GetUserPlan(ctx context.Context, userID uuid.UUID) (*UserPlanState, error)

	// SetPendingOrderRef stores the external reference of the newest order.
	SetPendingOrderRef(ctx context.Context, userID uuid.UUID, ref string) error

	// ApplyPlan writes tier, expiration and quota, and clears the pending reference.
	ApplyPlan(ctx context.Context, params ApplyPlanParams) error

	// SetQuota overwrites the remaining quota.
	SetQuota(ctx context.Context, userID uuid.UUID, quota int) error

	// DecrementQuota atomically subtracts one while the quota is positive and
	// returns the new value. It returns ErrQuotaExceeded when the quota is
	// already zero and ErrUserNotFound when the user does not exist.
	DecrementQuota(ctx context.Context, userID uuid.UUID) (int, error)

	// ListExpiredPlans returns users on a paid tier whose expiration is before now.
	ListExpiredPlans(ctx context.Context, now time.Time, limit int) ([]UserPlanState, error)

	// ExpirePlan moves the user back to the free tier with freeQuota, only if
	// the stored expiration is still before now. It reports whether a row changed.
	ExpirePlan(ctx context.Context, userID uuid.UUID, now time.Time, freeQuota int) (bool, error)
}
