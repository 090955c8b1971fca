// Package memory provides in-process order and user plan stores for
// development and tests. All operations are serialised by one mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/google/uuid"
)

// Store implements domain.OrderStore and domain.UserPlanStore.
type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	orders map[uuid.UUID]*domain.Order
	byRef  map[string]uuid.UUID
	users  map[uuid.UUID]*domain.UserPlanState
}

var (
	_ domain.OrderStore    = (*Store)(nil)
	_ domain.UserPlanStore = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		now:    time.Now,
		orders: make(map[uuid.UUID]*domain.Order),
		byRef:  make(map[string]uuid.UUID),
		users:  make(map[uuid.UUID]*domain.UserPlanState),
	}
}

// WithClock replaces the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// =============================================================================
// Orders
// =============================================================================

func (s *Store) CreateOrder(ctx context.Context, params domain.CreateOrderParams) (*domain.Order, error) {
	const op = "memory.Store.CreateOrder"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byRef[params.ExternalReference]; ok {
		return nil, domain.Errorf(domain.ECONFLICT, op, "order with reference %s already exists", params.ExternalReference)
	}
	if _, ok := s.users[params.UserID]; !ok {
		return nil, domain.ErrUserNotFound.WithOp(op)
	}

	now := s.now()
	o := &domain.Order{
		ID:                uuid.New(),
		ExternalReference: params.ExternalReference,
		UserID:            params.UserID,
		Tier:              params.Tier,
		Amount:            params.Amount,
		Currency:          params.Currency,
		Status:            domain.OrderStatusCreated,
		Gateway:           params.Gateway,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.orders[o.ID] = o
	s.byRef[o.ExternalReference] = o.ID

	cp := *o
	return &cp, nil
}

func (s *Store) GetOrderByExternalReference(ctx context.Context, ref string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRef[ref]
	if !ok {
		return nil, domain.ErrOrderNotFound.WithOp("memory.Store.GetOrderByExternalReference")
	}
	cp := *s.orders[id]
	return &cp, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, params domain.UpdateOrderStatusParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[params.ID]
	if !ok || o.Status != params.ExpectedStatus {
		return false, nil
	}
	o.Status = params.Status
	o.StatusDetail = params.StatusDetail
	if params.ExternalPaymentID != "" {
		o.ExternalPaymentID = params.ExternalPaymentID
	}
	o.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListStaleOrders(ctx context.Context, since, cutoff time.Time, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, o := range s.orders {
		if !o.Status.IsTerminal() && !o.UpdatedAt.Before(since) && o.UpdatedAt.Before(cutoff) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) EnsureUser(ctx context.Context, params domain.CreateUserParams) (*domain.UserPlanState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[params.UserID]
	if !ok {
		now := s.now()
		u = &domain.UserPlanState{
			UserID:         params.UserID,
			Email:          params.Email,
			Tier:           domain.TierFree,
			QuotaRemaining: params.QuotaRemaining,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		s.users[params.UserID] = u
	} else if u.Email == "" {
		u.Email = params.Email
	}
	return copyUser(u), nil
}

func (s *Store) GetUserPlan(ctx context.Context, userID uuid.UUID) (*domain.UserPlanState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound.WithOp("memory.Store.GetUserPlan")
	}
	return copyUser(u), nil
}

func (s *Store) SetPendingOrderRef(ctx context.Context, userID uuid.UUID, ref string) error {
	return s.updateUser(userID, "memory.Store.SetPendingOrderRef", func(u *domain.UserPlanState) {
		u.PendingOrderRef = ref
	})
}

func (s *Store) ApplyPlan(ctx context.Context, params domain.ApplyPlanParams) error {
	return s.updateUser(params.UserID, "memory.Store.ApplyPlan", func(u *domain.UserPlanState) {
		exp := params.PlanExpiration
		u.Tier = params.Tier
		u.PlanExpiration = &exp
		u.QuotaRemaining = params.QuotaRemaining
		u.PendingOrderRef = ""
	})
}

func (s *Store) SetQuota(ctx context.Context, userID uuid.UUID, quota int) error {
	if quota < 0 {
		quota = 0
	}
	return s.updateUser(userID, "memory.Store.SetQuota", func(u *domain.UserPlanState) {
		u.QuotaRemaining = quota
	})
}

func (s *Store) DecrementQuota(ctx context.Context, userID uuid.UUID) (int, error) {
	const op = "memory.Store.DecrementQuota"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound.WithOp(op)
	}
	if u.QuotaRemaining <= 0 {
		return 0, domain.ErrQuotaExceeded.WithOp(op)
	}
	u.QuotaRemaining--
	u.UpdatedAt = s.now()
	return u.QuotaRemaining, nil
}

func (s *Store) ListExpiredPlans(ctx context.Context, now time.Time, limit int) ([]domain.UserPlanState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.UserPlanState
	for _, u := range s.users {
		if u.Tier > domain.TierFree && u.PlanExpiration != nil && u.PlanExpiration.Before(now) {
			out = append(out, *copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlanExpiration.Before(*out[j].PlanExpiration) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ExpirePlan(ctx context.Context, userID uuid.UUID, now time.Time, freeQuota int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || u.Tier <= domain.TierFree || u.PlanExpiration == nil || !u.PlanExpiration.Before(now) {
		return false, nil
	}
	u.Tier = domain.TierFree
	u.PlanExpiration = nil
	u.QuotaRemaining = freeQuota
	u.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) updateUser(userID uuid.UUID, op string, fn func(*domain.UserPlanState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound.WithOp(op)
	}
	fn(u)
	u.UpdatedAt = s.now()
	return nil
}

func copyUser(u *domain.UserPlanState) *domain.UserPlanState {
	cp := *u
	if u.PlanExpiration != nil {
		exp := *u.PlanExpiration
		cp.PlanExpiration = &exp
	}
	return &cp
}
