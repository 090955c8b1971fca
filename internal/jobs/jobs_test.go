package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/email"
)

var testLogger = slog.New(slog.DiscardHandler)

type fakeSender struct {
	sent []email.PlanActivatedEmail
	err  error
}

func (f *fakeSender) SendPlanActivated(ctx context.Context, data email.PlanActivatedEmail) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, data)
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: queueEmail, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func testEvent() domain.PlanActivatedEvent {
	return domain.PlanActivatedEvent{
		UserID:         uuid.New(),
		Email:          "ana@example.com",
		Tier:           2,
		PlanName:       "plan-starter-002",
		QuotaRemaining: 60,
		ExpiresAt:      time.Date(2025, 4, 9, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewPlanActivatedTask(t *testing.T) {
	event := testEvent()

	task, err := NewPlanActivatedTask(payloadFromEvent(event))
	require.NoError(t, err)

	assert.Equal(t, TypeEmailPlanActivated, task.Type())

	var p PlanActivatedPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, event.UserID, p.UserID)
	assert.Equal(t, "ana@example.com", p.Email)
	assert.True(t, event.ExpiresAt.Equal(p.ExpiresAt))
}

func TestClient_NotifyPlanActivated(t *testing.T) {
	e := &fakeEnqueuer{}
	c := newClient(e, testLogger)

	require.NoError(t, c.NotifyPlanActivated(context.Background(), testEvent()))
	require.Len(t, e.tasks, 1)
	assert.Equal(t, TypeEmailPlanActivated, e.tasks[0].Type())
}

func TestClient_NotifyPlanActivated_Duplicate(t *testing.T) {
	c := newClient(&fakeEnqueuer{err: asynq.ErrTaskIDConflict}, testLogger)

	assert.NoError(t, c.NotifyPlanActivated(context.Background(), testEvent()))
}

func TestClient_NotifyPlanActivated_Error(t *testing.T) {
	c := newClient(&fakeEnqueuer{err: errors.New("redis: connection refused")}, testLogger)

	assert.Error(t, c.NotifyPlanActivated(context.Background(), testEvent()))
}

func TestEmailTaskHandler_HandlePlanActivated(t *testing.T) {
	sender := &fakeSender{}
	h := NewEmailTaskHandler(sender, "https://easybriefing.app/dashboard", testLogger)

	task, err := NewPlanActivatedTask(payloadFromEvent(testEvent()))
	require.NoError(t, err)

	require.NoError(t, h.HandlePlanActivated(context.Background(), task))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ana@example.com", sender.sent[0].Email)
	assert.Equal(t, "plan-starter-002", sender.sent[0].PlanName)
	assert.Equal(t, "https://easybriefing.app/dashboard", sender.sent[0].DashboardURL)
}

func TestEmailTaskHandler_BadPayloadSkipsRetry(t *testing.T) {
	h := NewEmailTaskHandler(&fakeSender{}, "", testLogger)

	err := h.HandlePlanActivated(context.Background(), asynq.NewTask(TypeEmailPlanActivated, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEmailTaskHandler_NoRecipient(t *testing.T) {
	sender := &fakeSender{}
	h := NewEmailTaskHandler(sender, "", testLogger)

	event := testEvent()
	event.Email = ""
	task, err := NewPlanActivatedTask(payloadFromEvent(event))
	require.NoError(t, err)

	assert.NoError(t, h.HandlePlanActivated(context.Background(), task))
	assert.Empty(t, sender.sent)
}

func TestEmailTaskHandler_SendFailure(t *testing.T) {
	task, err := NewPlanActivatedTask(payloadFromEvent(testEvent()))
	require.NoError(t, err)

	transient := NewEmailTaskHandler(&fakeSender{err: errors.New("dial tcp: timeout")}, "", testLogger)
	err = transient.HandlePlanActivated(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	permanent := NewEmailTaskHandler(&fakeSender{err: email.ErrInvalidToAddress}, "", testLogger)
	err = permanent.HandlePlanActivated(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestInlineNotifier(t *testing.T) {
	sender := &fakeSender{}
	n := NewInlineNotifier(NewEmailTaskHandler(sender, "", testLogger))

	require.NoError(t, n.NotifyPlanActivated(context.Background(), testEvent()))
	assert.Len(t, sender.sent, 1)
}
