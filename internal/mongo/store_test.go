package mongo

import (
	"testing"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderDoc_ToDomain(t *testing.T) {
	id, userID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	o, err := orderDoc{
		ID:                id.String(),
		ExternalReference: "pref-1",
		UserID:            userID.String(),
		Tier:              2,
		Amount:            "29.90",
		Currency:          "brl",
		Status:            "pending",
		Gateway:           "mercadopago",
		CreatedAt:         now,
		UpdatedAt:         now,
	}.toDomain()
	require.NoError(t, err)

	assert.Equal(t, id, o.ID)
	assert.Equal(t, userID, o.UserID)
	assert.True(t, decimal.RequireFromString("29.9").Equal(o.Amount))
	assert.Equal(t, domain.OrderStatusPending, o.Status)

	_, err = orderDoc{ID: "bad", UserID: userID.String(), Amount: "1"}.toDomain()
	assert.Error(t, err)

	_, err = orderDoc{ID: id.String(), UserID: userID.String(), Amount: "x"}.toDomain()
	assert.Error(t, err)
}

func TestUserDoc_ToDomain(t *testing.T) {
	id := uuid.New()
	exp := time.Now().Add(time.Hour).UTC()

	u, err := userDoc{ID: id.String(), PlanTier: 1, PlanExpiration: &exp, QuotaRemaining: 25}.toDomain()
	require.NoError(t, err)
	assert.Equal(t, id, u.UserID)
	assert.True(t, u.IsPlanActive(time.Now()))

	_, err = userDoc{ID: "nope"}.toDomain()
	assert.Error(t, err)
}
