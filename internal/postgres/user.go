package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserPlanStore implements domain.UserPlanStore using PostgreSQL.
type UserPlanStore struct {
	db DBTX
}

// Compile-time check to ensure UserPlanStore implements domain.UserPlanStore.
var _ domain.UserPlanStore = (*UserPlanStore)(nil)

// NewUserPlanStore creates a new UserPlanStore.
func NewUserPlanStore(db DBTX) *UserPlanStore {
	return &UserPlanStore{db: db}
}

const userColumns = `id, email, email_verified, plan_tier, plan_expiration,
	quota_remaining, pending_order_ref, created_at, updated_at`

// =============================================================================
// Reads
// =============================================================================

// EnsureUser inserts the user unless it exists. An existing user keeps its
// plan fields; only a blank email is filled in.
func (s *UserPlanStore) EnsureUser(ctx context.Context, params domain.CreateUserParams) (*domain.UserPlanState, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, plan_tier, quota_remaining)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (id) DO UPDATE
		SET email = CASE WHEN users.email = '' THEN EXCLUDED.email ELSE users.email END
		RETURNING `+userColumns,
		params.UserID, params.Email, params.QuotaRemaining,
	)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return user, nil
}

// GetUserPlan returns domain.ErrUserNotFound when the user does not exist.
func (s *UserPlanStore) GetUserPlan(ctx context.Context, userID uuid.UUID) (*domain.UserPlanState, error) {
	const op = "postgres.UserPlanStore.GetUserPlan"

	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	user, err := scanUser(row)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrUserNotFound.WithOp(op)
		}
		return nil, fmt.Errorf("failed to get user plan: %w", err)
	}
	return user, nil
}

// ListExpiredPlans returns paid users whose expiration is before now.
func (s *UserPlanStore) ListExpiredPlans(ctx context.Context, now time.Time, limit int) ([]domain.UserPlanState, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE plan_tier > 0 AND plan_expiration < $1
		ORDER BY plan_expiration
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired plans: %w", err)
	}
	defer rows.Close()

	var users []domain.UserPlanState
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// =============================================================================
// Writes
// =============================================================================

// SetPendingOrderRef stores the external reference of the user's newest order.
func (s *UserPlanStore) SetPendingOrderRef(ctx context.Context, userID uuid.UUID, ref string) error {
	return s.execUser(ctx, "postgres.UserPlanStore.SetPendingOrderRef", `
		UPDATE users SET pending_order_ref = $2, updated_at = NOW() WHERE id = $1`,
		userID, ref)
}

// ApplyPlan writes tier, expiration and quota in one statement and clears
// the pending reference.
func (s *UserPlanStore) ApplyPlan(ctx context.Context, params domain.ApplyPlanParams) error {
	return s.execUser(ctx, "postgres.UserPlanStore.ApplyPlan", `
		UPDATE users
		SET plan_tier = $2,
		    plan_expiration = $3,
		    quota_remaining = $4,
		    pending_order_ref = '',
		    updated_at = NOW()
		WHERE id = $1`,
		params.UserID, params.Tier, params.PlanExpiration, params.QuotaRemaining)
}

// SetQuota overwrites the remaining quota.
func (s *UserPlanStore) SetQuota(ctx context.Context, userID uuid.UUID, quota int) error {
	if quota < 0 {
		quota = 0
	}
	return s.execUser(ctx, "postgres.UserPlanStore.SetQuota", `
		UPDATE users SET quota_remaining = $2, updated_at = NOW() WHERE id = $1`,
		userID, quota)
}

// DecrementQuota subtracts one in a single conditional statement, so
// concurrent callers can never drive the quota below zero.
func (s *UserPlanStore) DecrementQuota(ctx context.Context, userID uuid.UUID) (int, error) {
	const op = "postgres.UserPlanStore.DecrementQuota"

	var remaining int
	err := s.db.QueryRow(ctx, `
		UPDATE users
		SET quota_remaining = quota_remaining - 1, updated_at = NOW()
		WHERE id = $1 AND quota_remaining > 0
		RETURNING quota_remaining`, userID).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !isNotFound(err) {
		return 0, fmt.Errorf("failed to decrement quota: %w", err)
	}

	// No row updated: either the user is missing or the quota is already zero.
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return 0, domain.ErrUserNotFound.WithOp(op)
	}
	return 0, domain.ErrQuotaExceeded.WithOp(op)
}

// ExpirePlan drops the user to the free tier if the stored expiration is
// still before now.
func (s *UserPlanStore) ExpirePlan(ctx context.Context, userID uuid.UUID, now time.Time, freeQuota int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET plan_tier = 0,
		    plan_expiration = NULL,
		    quota_remaining = $3,
		    updated_at = NOW()
		WHERE id = $1 AND plan_tier > 0 AND plan_expiration < $2`,
		userID, now, freeQuota)
	if err != nil {
		return false, fmt.Errorf("failed to expire plan: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *UserPlanStore) execUser(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound.WithOp(op)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.UserPlanState, error) {
	var u domain.UserPlanState
	err := row.Scan(
		&u.UserID,
		&u.Email,
		&u.EmailVerified,
		&u.Tier,
		&u.PlanExpiration,
		&u.QuotaRemaining,
		&u.PendingOrderRef,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
