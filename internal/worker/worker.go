// Package worker runs the periodic background loops: the stale order
// sweeper and the plan expiry schedule.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/service"
	"github.com/RomuloBreno/project-easy-briefing/internal/telemetry"
)

// Config holds sweeper configuration
type Config struct {
	// WorkerID uniquely identifies this worker instance
	WorkerID string

	// PollInterval is how often to look for stale orders
	PollInterval time.Duration

	// MaxConcurrency is the maximum number of orders reconciled at once
	MaxConcurrency int

	// StaleAfter is how long an order may sit in created or pending
	// before the sweeper asks the gateway about it
	StaleAfter time.Duration

	// MaxAge bounds how far back the sweeper looks
	MaxAge time.Duration

	// BatchSize caps the orders fetched per poll
	BatchSize int
}

// PaymentReconciler is the part of the webhook reconciler the sweeper uses.
type PaymentReconciler interface {
	ReconcilePayment(ctx context.Context, paymentID string) (*service.ReconcileResult, error)
}

// Sweeper re-reconciles orders whose webhook never arrived or failed.
type Sweeper struct {
	config     Config
	orders     domain.OrderStore
	reconciler PaymentReconciler
	gateway    string
	logger     *slog.Logger
	now        func() time.Time
}

// NewSweeper creates a new stale order sweeper
func NewSweeper(orders domain.OrderStore, reconciler PaymentReconciler, gateway string, config Config, logger *slog.Logger) *Sweeper {
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("sweeper-%s", uuid.New().String()[:8])
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Minute
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 5
	}
	if config.StaleAfter == 0 {
		config.StaleAfter = 15 * time.Minute
	}
	if config.MaxAge == 0 {
		config.MaxAge = 7 * 24 * time.Hour
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	return &Sweeper{
		config:     config,
		orders:     orders,
		reconciler: reconciler,
		gateway:    gateway,
		logger:     logger.With("component", "sweeper", "worker_id", config.WorkerID),
		now:        time.Now,
	}
}

// Start sweeps on every tick until the context is cancelled. A tick is
// skipped while the previous sweep is still running.
func (w *Sweeper) Start(ctx context.Context) error {
	w.logger.Info("sweeper starting",
		"poll_interval", w.config.PollInterval,
		"stale_after", w.config.StaleAfter,
		"max_concurrency", w.config.MaxConcurrency,
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	busy := make(chan struct{}, 1)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sweeper shutting down")
			wg.Wait()
			return ctx.Err()

		case <-ticker.C:
			select {
			case busy <- struct{}{}:
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer func() { <-busy }()
					if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
						w.logger.Error("sweep failed", "error", err)
					}
				}()
			default:
			}
		}
	}
}

// SweepStats summarises one sweep.
type SweepStats struct {
	Checked   int
	Activated int
	Updated   int
	Dangling  int
	Failed    int
}

// Sweep runs a single pass over the stale orders.
func (w *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	now := w.now()
	cutoff := now.Add(-w.config.StaleAfter)
	since := now.Add(-w.config.MaxAge)

	orders, err := w.orders.ListStaleOrders(ctx, since, cutoff, w.config.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("list stale orders: %w", err)
	}
	if len(orders) == 0 {
		return stats, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, w.config.MaxConcurrency)
	)

	for _, order := range orders {
		if order.ExternalPaymentID == "" {
			// No payment was ever seen for this order. Report it once, on
			// the first sweep after it went stale.
			if !order.UpdatedAt.Before(cutoff.Add(-w.config.PollInterval)) {
				w.reportDangling(ctx, order)
				stats.Dangling++
			}
			continue
		}

		stats.Checked++
		sem <- struct{}{}
		wg.Add(1)
		go func(order domain.Order) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := w.reconciler.ReconcilePayment(ctx, order.ExternalPaymentID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				w.logger.Warn("stale order reconcile failed",
					"order_id", order.ID,
					"payment_id", order.ExternalPaymentID,
					"error", err,
				)
				return
			}
			switch {
			case result.Activated:
				stats.Activated++
			case result.Changed:
				stats.Updated++
			}
		}(order)
	}
	wg.Wait()

	w.logger.Info("sweep completed",
		"checked", stats.Checked,
		"activated", stats.Activated,
		"updated", stats.Updated,
		"dangling", stats.Dangling,
		"failed", stats.Failed,
	)
	return stats, nil
}

func (w *Sweeper) reportDangling(ctx context.Context, order domain.Order) {
	w.logger.Warn("order has no payment",
		"order_id", order.ID,
		"user_id", order.UserID,
		"external_reference", order.ExternalReference,
		"status", order.Status,
		"updated_at", order.UpdatedAt,
	)
	if telemetry.Business != nil {
		telemetry.Business.DanglingOrders.WithLabelValues(w.gateway).Inc()
	}
}
