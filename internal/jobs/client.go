package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/telemetry"
)

// RedisConfig holds the Redis connection used by the queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) clientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client enqueues background jobs.
type Client struct {
	client enqueuer
	logger *slog.Logger
}

// NewClient creates a job client for enqueueing tasks.
func NewClient(cfg RedisConfig, logger *slog.Logger) *Client {
	return newClient(asynq.NewClient(cfg.clientOpt()), logger)
}

func newClient(e enqueuer, logger *slog.Logger) *Client {
	return &Client{
		client: e,
		logger: logger.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// NotifyPlanActivated queues the post-purchase email. A task already queued
// for the same activation is not an error.
func (c *Client) NotifyPlanActivated(ctx context.Context, event domain.PlanActivatedEvent) error {
	task, err := NewPlanActivatedTask(payloadFromEvent(event))
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			c.logger.DebugContext(ctx, "plan activated email already queued", "user_id", event.UserID)
			return nil
		}
		c.logger.ErrorContext(ctx, "failed to enqueue plan activated email",
			"user_id", event.UserID,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.InfoContext(ctx, "plan activated email queued",
		"task_id", info.ID,
		"user_id", event.UserID,
		"queue", info.Queue,
	)
	if telemetry.Business != nil {
		telemetry.Business.JobsEnqueued.WithLabelValues(TypeEmailPlanActivated).Inc()
	}
	return nil
}

// InlineNotifier sends the post-purchase email in the caller's goroutine.
// Used when no queue is configured.
type InlineNotifier struct {
	handler *EmailTaskHandler
}

// NewInlineNotifier creates an InlineNotifier.
func NewInlineNotifier(handler *EmailTaskHandler) *InlineNotifier {
	return &InlineNotifier{handler: handler}
}

func (n *InlineNotifier) NotifyPlanActivated(ctx context.Context, event domain.PlanActivatedEvent) error {
	task, err := NewPlanActivatedTask(payloadFromEvent(event))
	if err != nil {
		return err
	}
	return n.handler.HandlePlanActivated(ctx, task)
}

func payloadFromEvent(event domain.PlanActivatedEvent) PlanActivatedPayload {
	return PlanActivatedPayload{
		UserID:         event.UserID,
		Email:          event.Email,
		Tier:           event.Tier,
		PlanName:       event.PlanName,
		QuotaRemaining: event.QuotaRemaining,
		ExpiresAt:      event.ExpiresAt,
	}
}
