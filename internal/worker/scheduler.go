package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultExpirySchedule runs the plan expiry sweep every 15 minutes.
const DefaultExpirySchedule = "*/15 * * * *"

// PlanExpirer downgrades expired plans.
type PlanExpirer interface {
	ExpirePlans(ctx context.Context, now time.Time) (int, error)
}

// Scheduler runs cron-driven maintenance jobs.
type Scheduler struct {
	cron    *cron.Cron
	expirer PlanExpirer
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewScheduler registers the plan expiry job on schedule. An empty schedule
// uses DefaultExpirySchedule.
func NewScheduler(expirer PlanExpirer, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultExpirySchedule
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		expirer: expirer,
		logger:  logger.With("component", "scheduler"),
		now:     time.Now,
		timeout: 5 * time.Minute,
	}

	if _, err := s.cron.AddFunc(schedule, s.expirePlans); err != nil {
		return nil, fmt.Errorf("schedule plan expiry %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the scheduler until ctx is cancelled, then waits for running
// jobs to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) expirePlans() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.expirer.ExpirePlans(ctx, s.now())
	if err != nil {
		s.logger.Error("plan expiry failed", "error", err, "expired", n)
		return
	}
	if n > 0 {
		s.logger.Info("expired plans", "count", n)
	}
}
