package scheduler

import (
	"context"
	"fmt"

	"support_router_backend/internal/queue"
	"support_router_backend/platform/config"
	"support_router_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	enqueuer Enqueuer
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, enqueuer Enqueuer, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		enqueuer: enqueuer,
		log:      log,
	}

	mux.HandleFunc(TaskAwaitingHumanReminder, w.handleReminder)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleReminder hands the reminder to the conversation queue so it runs in
// order with the key's other jobs.
func (w *Worker) handleReminder(_ context.Context, task *asynq.Task) error {
	payload, err := ParseReminderPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	return w.enqueuer.Enqueue(queue.Job{
		Kind:     queue.KindReminder,
		Key:      payload.UserKey,
		TicketID: payload.TicketID,
	})
}
