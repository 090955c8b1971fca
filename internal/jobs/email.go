// Package jobs defines background tasks and their handlers, queued through
// asynq on Redis.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/RomuloBreno/project-easy-briefing/internal/email"
	"github.com/RomuloBreno/project-easy-briefing/internal/telemetry"
)

// Task types for email jobs
const (
	TypeEmailPlanActivated = "email:plan_activated"
)

const queueEmail = "email"

// PlanActivatedPayload is the payload of the post-purchase email.
type PlanActivatedPayload struct {
	UserID         uuid.UUID `json:"user_id"`
	Email          string    `json:"email"`
	Tier           int       `json:"tier"`
	PlanName       string    `json:"plan_name"`
	QuotaRemaining int       `json:"quota_remaining"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// NewPlanActivatedTask creates the post-purchase email task. The task id is
// derived from the user and the expiration, so one activation queues one email.
func NewPlanActivatedTask(payload PlanActivatedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan activated payload: %w", err)
	}
	return asynq.NewTask(
		TypeEmailPlanActivated,
		data,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
		asynq.Queue(queueEmail),
		asynq.TaskID(fmt.Sprintf("plan_activated:%s:%d", payload.UserID, payload.ExpiresAt.Unix())),
		asynq.Retention(24*time.Hour),
	), nil
}

// PlanActivatedSender sends the post-purchase email.
type PlanActivatedSender interface {
	SendPlanActivated(ctx context.Context, data email.PlanActivatedEmail) error
}

// EmailTaskHandler processes email tasks.
type EmailTaskHandler struct {
	sender       PlanActivatedSender
	dashboardURL string
	logger       *slog.Logger
}

// NewEmailTaskHandler creates an EmailTaskHandler.
func NewEmailTaskHandler(sender PlanActivatedSender, dashboardURL string, logger *slog.Logger) *EmailTaskHandler {
	return &EmailTaskHandler{
		sender:       sender,
		dashboardURL: dashboardURL,
		logger:       logger.With("component", "email_tasks"),
	}
}

// HandlePlanActivated sends the post-purchase email. Payloads that can never
// succeed are not retried.
func (h *EmailTaskHandler) HandlePlanActivated(ctx context.Context, t *asynq.Task) error {
	var p PlanActivatedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		recordJob(TypeEmailPlanActivated, false)
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Email == "" {
		h.logger.WarnContext(ctx, "skipping plan activated email without recipient", "user_id", p.UserID)
		recordJob(TypeEmailPlanActivated, true)
		return nil
	}

	err := h.sender.SendPlanActivated(ctx, email.PlanActivatedEmail{
		Email:          p.Email,
		PlanName:       p.PlanName,
		QuotaRemaining: p.QuotaRemaining,
		ExpiresAt:      p.ExpiresAt,
		DashboardURL:   h.dashboardURL,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to send plan activated email",
			"user_id", p.UserID,
			"error", err,
		)
		recordEmail("plan_activated", false)
		recordJob(TypeEmailPlanActivated, false)

		var ee *email.EmailError
		if errors.As(err, &ee) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	h.logger.InfoContext(ctx, "plan activated email sent", "user_id", p.UserID, "tier", p.Tier)
	recordEmail("plan_activated", true)
	recordJob(TypeEmailPlanActivated, true)
	return nil
}

func recordJob(jobType string, ok bool) {
	if telemetry.Business == nil {
		return
	}
	if ok {
		telemetry.Business.JobsProcessed.WithLabelValues(jobType).Inc()
	} else {
		telemetry.Business.JobsFailed.WithLabelValues(jobType).Inc()
	}
}

func recordEmail(emailType string, ok bool) {
	if telemetry.Business == nil {
		return
	}
	if ok {
		telemetry.Business.EmailSent.WithLabelValues(emailType).Inc()
	} else {
		telemetry.Business.EmailFailed.WithLabelValues(emailType).Inc()
	}
}
