package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	Redis       RedisConfig
	Concurrency int
}

// Worker processes queued jobs.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewWorker creates a worker with the email handlers registered.
func NewWorker(cfg WorkerConfig, emailHandler *EmailTaskHandler, logger *slog.Logger) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	logger = logger.With("component", "job_worker")

	server := asynq.NewServer(
		cfg.Redis.clientOpt(),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueEmail: 5,
				"default":  1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.ErrorContext(ctx, "job failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailPlanActivated, emailHandler.HandlePlanActivated)

	return &Worker{
		server: server,
		mux:    mux,
		logger: logger,
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting job worker")
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("worker error: %w", err)
	}

	<-ctx.Done()
	w.logger.Info("stopping job worker")
	w.server.Shutdown()
	return nil
}
