package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	db DBTX
}

// Compile-time check to ensure OrderStore implements domain.OrderStore.
var _ domain.OrderStore = (*OrderStore)(nil)

// NewOrderStore creates a new OrderStore.
func NewOrderStore(db DBTX) *OrderStore {
	return &OrderStore{db: db}
}

const orderColumns = `id, external_reference, external_payment_id, user_id, tier,
	amount::text, currency, status, status_detail, gateway, created_at, updated_at`

// CreateOrder inserts an order in the created status.
func (s *OrderStore) CreateOrder(ctx context.Context, params domain.CreateOrderParams) (*domain.Order, error) {
	const op = "postgres.OrderStore.CreateOrder"

	row := s.db.QueryRow(ctx, `
		INSERT INTO orders (external_reference, user_id, tier, amount, currency, status, gateway)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		RETURNING `+orderColumns,
		params.ExternalReference,
		params.UserID,
		params.Tier,
		params.Amount.StringFixed(2),
		params.Currency,
		string(domain.OrderStatusCreated),
		params.Gateway,
	)

	order, err := scanOrder(row)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, domain.Errorf(domain.ECONFLICT, op, "order with reference %s already exists", params.ExternalReference)
		}
		if isForeignKeyViolation(err) {
			return nil, domain.ErrUserNotFound.WithOp(op)
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

// GetOrderByExternalReference returns domain.ErrOrderNotFound when nothing matches.
func (s *OrderStore) GetOrderByExternalReference(ctx context.Context, ref string) (*domain.Order, error) {
	const op = "postgres.OrderStore.GetOrderByExternalReference"

	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_reference = $1`, ref)
	order, err := scanOrder(row)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrOrderNotFound.WithOp(op)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// UpdateOrderStatus applies the update only while the stored status equals
// params.ExpectedStatus.
func (s *OrderStore) UpdateOrderStatus(ctx context.Context, params domain.UpdateOrderStatusParams) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $3,
		    status_detail = $4,
		    external_payment_id = COALESCE(NULLIF($5, ''), external_payment_id),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		params.ID,
		string(params.ExpectedStatus),
		string(params.Status),
		params.StatusDetail,
		params.ExternalPaymentID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListOrdersByUser returns the user's orders, newest first.
func (s *OrderStore) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return collectOrders(rows)
}

// ListStaleOrders returns created or pending orders last touched in [since, cutoff).
func (s *OrderStore) ListStaleOrders(ctx context.Context, since, cutoff time.Time, limit int) ([]domain.Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status IN ('created', 'pending') AND updated_at >= $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`, since, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale orders: %w", err)
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o      domain.Order
		amount string
		status string
	)
	err := row.Scan(
		&o.ID,
		&o.ExternalReference,
		&o.ExternalPaymentID,
		&o.UserID,
		&o.Tier,
		&amount,
		&o.Currency,
		&status,
		&o.StatusDetail,
		&o.Gateway,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	o.Status = domain.OrderStatus(status)
	return &o, nil
}
