package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan tiers.
const (
	TierFree    = 0
	TierStarter = 1
	TierPro     = 2
)

// CycleLength is how long a paid plan stays active after approval.
const CycleLength = 30 * 24 * time.Hour

// Plan is an immutable plan catalog entry.
type Plan struct {
	Tier                int
	DisplayName         string
	AIModel             string
	Price               decimal.Decimal
	MaxRequestsPerCycle int
}

// IsPaid reports whether the plan can be purchased.
func (p Plan) IsPaid() bool {
	return p.Tier > TierFree && p.Price.IsPositive()
}

// PlanCatalog maps tiers to plans. Tier 0 is always present and is the
// fallback for unknown tiers. The zero value is not usable; build one with
// NewPlanCatalog or DefaultPlanCatalog.
type PlanCatalog struct {
	plans map[int]Plan
}

// NewPlanCatalog validates and builds a catalog.
func NewPlanCatalog(plans ...Plan) (*PlanCatalog, error) {
	m := make(map[int]Plan, len(plans))
	for _, p := range plans {
		if _, dup := m[p.Tier]; dup {
			return nil, fmt.Errorf("plan catalog: duplicate tier %d", p.Tier)
		}
		if p.MaxRequestsPerCycle < 0 {
			return nil, fmt.Errorf("plan catalog: tier %d has negative quota", p.Tier)
		}
		if p.Price.IsNegative() {
			return nil, fmt.Errorf("plan catalog: tier %d has negative price", p.Tier)
		}
		m[p.Tier] = p
	}
	if _, ok := m[TierFree]; !ok {
		return nil, fmt.Errorf("plan catalog: tier %d is required", TierFree)
	}
	return &PlanCatalog{plans: m}, nil
}

// DefaultPlanCatalog returns the production catalog.
func DefaultPlanCatalog() *PlanCatalog {
	c, err := NewPlanCatalog(
		Plan{
			Tier:                TierFree,
			DisplayName:         "plan-starter-000",
			AIModel:             "gpt-3.5-turbo",
			Price:               decimal.Zero,
			MaxRequestsPerCycle: 1000,
		},
		Plan{
			Tier:                TierStarter,
			DisplayName:         "plan-starter-001",
			AIModel:             "gpt-4o-mini",
			Price:               decimal.RequireFromString("1.00"),
			MaxRequestsPerCycle: 25,
		},
		Plan{
			Tier:                TierPro,
			DisplayName:         "plan-starter-002",
			AIModel:             "gpt-4o",
			Price:               decimal.RequireFromString("29.90"),
			MaxRequestsPerCycle: 60,
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the plan for tier, or the free plan when tier is unknown.
func (c *PlanCatalog) Get(tier int) Plan {
	if p, ok := c.plans[tier]; ok {
		return p
	}
	return c.plans[TierFree]
}

// Lookup returns the plan for tier without falling back.
func (c *PlanCatalog) Lookup(tier int) (Plan, bool) {
	p, ok := c.plans[tier]
	return p, ok
}

// Plans lists every plan ordered by tier.
func (c *PlanCatalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

// PlanActivatedEvent describes a plan that was just applied to a user.
type PlanActivatedEvent struct {
	UserID         uuid.UUID
	Email          string
	Tier           int
	PlanName       string
	QuotaRemaining int
	ExpiresAt      time.Time
}
