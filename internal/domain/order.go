package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the reconciliation state of a purchase.
type OrderStatus string

const (
	OrderStatusCreated  OrderStatus = "created"
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusApproved OrderStatus = "approved"
	OrderStatusRejected OrderStatus = "rejected"
)

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusApproved || s == OrderStatusRejected
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPending, OrderStatusApproved, OrderStatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether an order in status s may move to next.
// created may move to pending, approved or rejected; pending may move to
// approved or rejected; terminal states never move.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.IsTerminal() || s == next || !next.Valid() {
		return false
	}
	return next != OrderStatusCreated
}

// Order is the local record of a purchase attempt.
type Order struct {
	ID                uuid.UUID
	ExternalReference string
	ExternalPaymentID string
	UserID            uuid.UUID
	Tier              int
	Amount            decimal.Decimal
	Currency          string
	Status            OrderStatus
	StatusDetail      string
	Gateway           string
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// CheckoutURL is returned by the gateway at creation time. Not persisted.
	CheckoutURL string
}

// CreateOrderParams holds the fields of a new order. Status is always created.
type CreateOrderParams struct {
	ExternalReference string
	UserID            uuid.UUID
	Tier              int
	Amount            decimal.Decimal
	Currency          string
	Gateway           string
}

// UpdateOrderStatusParams describes a conditional status write. The update
// only applies while the stored status still equals ExpectedStatus.
type UpdateOrderStatusParams struct {
	ID                uuid.UUID
	ExpectedStatus    OrderStatus
	Status            OrderStatus
	StatusDetail      string
	ExternalPaymentID string
}

// OrderStore persists orders.
type OrderStore interface {
	// CreateOrder inserts an order in the created status.
	CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error)

	// GetOrderByExternalReference returns ErrOrderNotFound when nothing matches.
	GetOrderByExternalReference(ctx context.Context, ref string) (*Order, error)

	// UpdateOrderStatus applies params only if the stored status equals
	// params.ExpectedStatus. It reports whether a row changed.
	UpdateOrderStatus(ctx context.Context, params UpdateOrderStatusParams) (bool, error)

	// ListOrdersByUser returns the user's orders, newest first.
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)

	// ListStaleOrders returns non-terminal orders last updated in
	// [since, cutoff), oldest first.
	ListStaleOrders(ctx context.Context, since, cutoff time.Time, limit int) ([]Order, error)
}
