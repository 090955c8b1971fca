// Package mongo implements the order and user plan stores on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Config holds connection settings.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	RetryAttempts  int
	RetryInterval  time.Duration
}

// Connect opens a client, retrying until the server answers a ping.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	var lastErr error
	for i := range cfg.RetryAttempts {
		client, err := mongo.Connect(options.Client().
			ApplyURI(cfg.URI).
			SetConnectTimeout(cfg.ConnectTimeout))
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return client, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err
		time.Sleep(time.Duration(i+1) * cfg.RetryInterval)
	}
	return nil, fmt.Errorf("failed to connect to mongo: %w", lastErr)
}

// Store implements domain.OrderStore and domain.UserPlanStore.
// Identifiers are stored as canonical UUID strings and amounts as decimal strings.
type Store struct {
	orders *mongo.Collection
	users  *mongo.Collection
}

var (
	_ domain.OrderStore    = (*Store)(nil)
	_ domain.UserPlanStore = (*Store)(nil)
)

// NewStore binds the store to db and creates its indexes.
func NewStore(ctx context.Context, db *mongo.Database) (*Store, error) {
	s := &Store{
		orders: db.Collection("orders"),
		users:  db.Collection("users"),
	}

	_, err := s.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "externalReference", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create order indexes: %w", err)
	}

	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "planTier", Value: 1}, {Key: "planExpiration", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user indexes: %w", err)
	}

	return s, nil
}

type orderDoc struct {
	ID                string    `bson:"_id"`
	ExternalReference string    `bson:"externalReference"`
	ExternalPaymentID string    `bson:"externalPaymentId"`
	UserID            string    `bson:"userId"`
	Tier              int       `bson:"tier"`
	Amount            string    `bson:"amount"`
	Currency          string    `bson:"currency"`
	Status            string    `bson:"status"`
	StatusDetail      string    `bson:"statusDetail"`
	Gateway           string    `bson:"gateway"`
	CreatedAt         time.Time `bson:"createdAt"`
	UpdatedAt         time.Time `bson:"updatedAt"`
}

func (d orderDoc) toDomain() (*domain.Order, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", d.ID, err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", d.UserID, err)
	}
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", d.Amount, err)
	}
	return &domain.Order{
		ID:                id,
		ExternalReference: d.ExternalReference,
		ExternalPaymentID: d.ExternalPaymentID,
		UserID:            userID,
		Tier:              d.Tier,
		Amount:            amount,
		Currency:          d.Currency,
		Status:            domain.OrderStatus(d.Status),
		StatusDetail:      d.StatusDetail,
		Gateway:           d.Gateway,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}, nil
}

type userDoc struct {
	ID              string     `bson:"_id"`
	Email           string     `bson:"email"`
	EmailVerified   bool       `bson:"emailVerified"`
	PlanTier        int        `bson:"planTier"`
	PlanExpiration  *time.Time `bson:"planExpiration"`
	QuotaRemaining  int        `bson:"quotaRemaining"`
	PendingOrderRef string     `bson:"pendingOrderRef"`
	CreatedAt       time.Time  `bson:"createdAt"`
	UpdatedAt       time.Time  `bson:"updatedAt"`
}

func (d userDoc) toDomain() (*domain.UserPlanState, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", d.ID, err)
	}
	return &domain.UserPlanState{
		UserID:          id,
		Email:           d.Email,
		EmailVerified:   d.EmailVerified,
		Tier:            d.PlanTier,
		PlanExpiration:  d.PlanExpiration,
		QuotaRemaining:  d.QuotaRemaining,
		PendingOrderRef: d.PendingOrderRef,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

// =============================================================================
// Orders
// =============================================================================

func (s *Store) CreateOrder(ctx context.Context, params domain.CreateOrderParams) (*domain.Order, error) {
	const op = "mongo.Store.CreateOrder"

	n, err := s.users.CountDocuments(ctx, bson.M{"_id": params.UserID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrUserNotFound.WithOp(op)
	}

	now := time.Now().UTC()
	doc := orderDoc{
		ID:                uuid.NewString(),
		ExternalReference: params.ExternalReference,
		UserID:            params.UserID.String(),
		Tier:              params.Tier,
		Amount:            params.Amount.StringFixed(2),
		Currency:          params.Currency,
		Status:            string(domain.OrderStatusCreated),
		Gateway:           params.Gateway,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := s.orders.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.Errorf(domain.ECONFLICT, op, "order with reference %s already exists", params.ExternalReference)
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return doc.toDomain()
}

func (s *Store) GetOrderByExternalReference(ctx context.Context, ref string) (*domain.Order, error) {
	var doc orderDoc
	err := s.orders.FindOne(ctx, bson.M{"externalReference": ref}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrOrderNotFound.WithOp("mongo.Store.GetOrderByExternalReference")
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return doc.toDomain()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, params domain.UpdateOrderStatusParams) (bool, error) {
	set := bson.M{
		"status":       string(params.Status),
		"statusDetail": params.StatusDetail,
		"updatedAt":    time.Now().UTC(),
	}
	if params.ExternalPaymentID != "" {
		set["externalPaymentId"] = params.ExternalPaymentID
	}

	res, err := s.orders.UpdateOne(ctx,
		bson.M{"_id": params.ID.String(), "status": string(params.ExpectedStatus)},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return s.findOrders(ctx,
		bson.M{"userId": userID.String()},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
}

func (s *Store) ListStaleOrders(ctx context.Context, since, cutoff time.Time, limit int) ([]domain.Order, error) {
	return s.findOrders(ctx,
		bson.M{
			"status":    bson.M{"$in": bson.A{string(domain.OrderStatusCreated), string(domain.OrderStatusPending)}},
			"updatedAt": bson.M{"$gte": since, "$lt": cutoff},
		},
		options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}}).SetLimit(int64(limit)),
	)
}

func (s *Store) findOrders(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]domain.Order, error) {
	cursor, err := s.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	var docs []orderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) EnsureUser(ctx context.Context, params domain.CreateUserParams) (*domain.UserPlanState, error) {
	now := time.Now().UTC()
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": params.UserID.String()},
		bson.M{"$setOnInsert": bson.M{
			"email":           params.Email,
			"emailVerified":   false,
			"planTier":        domain.TierFree,
			"planExpiration":  nil,
			"quotaRemaining":  params.QuotaRemaining,
			"pendingOrderRef": "",
			"createdAt":       now,
			"updatedAt":       now,
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	if params.Email != "" {
		_, err = s.users.UpdateOne(ctx,
			bson.M{"_id": params.UserID.String(), "email": ""},
			bson.M{"$set": bson.M{"email": params.Email}},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to set user email: %w", err)
		}
	}

	return s.GetUserPlan(ctx, params.UserID)
}

func (s *Store) GetUserPlan(ctx context.Context, userID uuid.UUID) (*domain.UserPlanState, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.M{"_id": userID.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound.WithOp("mongo.Store.GetUserPlan")
		}
		return nil, fmt.Errorf("failed to get user plan: %w", err)
	}
	return doc.toDomain()
}

func (s *Store) SetPendingOrderRef(ctx context.Context, userID uuid.UUID, ref string) error {
	return s.setUser(ctx, "mongo.Store.SetPendingOrderRef", userID, bson.M{"pendingOrderRef": ref})
}

func (s *Store) ApplyPlan(ctx context.Context, params domain.ApplyPlanParams) error {
	return s.setUser(ctx, "mongo.Store.ApplyPlan", params.UserID, bson.M{
		"planTier":        params.Tier,
		"planExpiration":  params.PlanExpiration.UTC(),
		"quotaRemaining":  params.QuotaRemaining,
		"pendingOrderRef": "",
	})
}

func (s *Store) SetQuota(ctx context.Context, userID uuid.UUID, quota int) error {
	if quota < 0 {
		quota = 0
	}
	return s.setUser(ctx, "mongo.Store.SetQuota", userID, bson.M{"quotaRemaining": quota})
}

// DecrementQuota uses a single filtered $inc so the quota cannot go below zero.
func (s *Store) DecrementQuota(ctx context.Context, userID uuid.UUID) (int, error) {
	const op = "mongo.Store.DecrementQuota"

	var doc userDoc
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": userID.String(), "quotaRemaining": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"quotaRemaining": -1},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.QuotaRemaining, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("failed to decrement quota: %w", err)
	}

	n, err := s.users.CountDocuments(ctx, bson.M{"_id": userID.String()})
	if err != nil {
		return 0, fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return 0, domain.ErrUserNotFound.WithOp(op)
	}
	return 0, domain.ErrQuotaExceeded.WithOp(op)
}

func (s *Store) ListExpiredPlans(ctx context.Context, now time.Time, limit int) ([]domain.UserPlanState, error) {
	cursor, err := s.users.Find(ctx,
		bson.M{"planTier": bson.M{"$gt": domain.TierFree}, "planExpiration": bson.M{"$lt": now}},
		options.Find().SetSort(bson.D{{Key: "planExpiration", Value: 1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired plans: %w", err)
	}

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	users := make([]domain.UserPlanState, 0, len(docs))
	for _, d := range docs {
		u, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

func (s *Store) ExpirePlan(ctx context.Context, userID uuid.UUID, now time.Time, freeQuota int) (bool, error) {
	res, err := s.users.UpdateOne(ctx,
		bson.M{
			"_id":            userID.String(),
			"planTier":       bson.M{"$gt": domain.TierFree},
			"planExpiration": bson.M{"$lt": now},
		},
		bson.M{"$set": bson.M{
			"planTier":       domain.TierFree,
			"planExpiration": nil,
			"quotaRemaining": freeQuota,
			"updatedAt":      time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire plan: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) setUser(ctx context.Context, op string, userID uuid.UUID, fields bson.M) error {
	fields["updatedAt"] = time.Now().UTC()
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID.String()}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound.WithOp(op)
	}
	return nil
}
