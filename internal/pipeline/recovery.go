package pipeline

import (
	"context"
	"fmt"

	"support_router_backend/internal/conversation"
	"support_router_backend/internal/queue"
	"support_router_backend/platform/logger"
)

// PendingSource lists conversations that still hold an accepted human answer.
type PendingSource interface {
	PendingKeys(ctx context.Context) ([]string, error)
	Get(ctx context.Context, key string) (*conversation.Conversation, error)
}

// Enqueuer queues a job for its key.
type Enqueuer interface {
	Enqueue(job queue.Job) error
}

// RequeuePending queues a resolution job for every undelivered human answer
// found in src. It runs at startup so answers accepted before a restart are
// still delivered.
func RequeuePending(ctx context.Context, src PendingSource, q Enqueuer, log *logger.Logger) (int, error) {
	keys, err := src.PendingKeys(ctx)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, key := range keys {
		conv, err := src.Get(ctx, key)
		if err != nil {
			return queued, fmt.Errorf("load conversation %s: %w", key, err)
		}
		if conv.Pending == nil {
			continue
		}
		p := conv.Pending
		if err := q.Enqueue(queue.Job{
			Kind:     queue.KindResolution,
			Key:      key,
			TicketID: p.TicketID,
			Question: p.Question,
			Answer:   p.Answer,
		}); err != nil {
			return queued, fmt.Errorf("requeue answer for %s: %w", key, err)
		}
		log.WithConversation(key).Info("requeued undelivered human answer", "ticketId", p.TicketID)
		queued++
	}
	return queued, nil
}
