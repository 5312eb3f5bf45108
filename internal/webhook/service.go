package webhook

import (
	"context"
	"time"

	"support_router_backend/internal/conversation"
	"support_router_backend/internal/queue"
	"support_router_backend/internal/tickets"
	"support_router_backend/platform/apperr"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/sanitize"
)

// Ingestor dedupes, appends and queues an inbound message.
type Ingestor interface {
	Submit(ctx context.Context, msg queue.Inbound) (bool, error)
	Enqueue(job queue.Job) error
	Accepting() bool
}

// PendingStore keeps an accepted answer on the conversation until it is
// delivered.
type PendingStore interface {
	Update(ctx context.Context, key string, fn func(*conversation.Conversation) error) error
}

// Resolver applies a human answer to a ticket.
type Resolver interface {
	Resolve(ctx context.Context, id, answer string) tickets.Resolution
}

// Service turns verified webhook payloads into queued work.
type Service struct {
	ingestor       Ingestor
	resolver       Resolver
	pending        PendingStore
	businessNumber string
	region         string
	log            *logger.Logger
	now            func() time.Time
}

// NewService creates the webhook service.
func NewService(ingestor Ingestor, resolver Resolver, pending PendingStore, businessNumber, region string, log *logger.Logger) *Service {
	return &Service{
		ingestor:       ingestor,
		resolver:       resolver,
		pending:        pending,
		businessNumber: businessNumber,
		region:         region,
		log:            log,
		now:            time.Now,
	}
}

// Ingest queues every new text message in env. Retried deliveries and our
// own echoes are counted as duplicates.
func (s *Service) Ingest(ctx context.Context, env Envelope) (IngestResult, error) {
	ex := extractMessages(env, s.businessNumber, s.region, s.now())
	result := IngestResult{Ignored: ex.ignored}

	for _, msg := range ex.messages {
		accepted, err := s.ingestor.Submit(ctx, msg)
		if err != nil {
			return result, err
		}
		if accepted {
			result.Accepted++
		} else {
			result.Duplicates++
			s.log.WithConversation(msg.Key).Debug("duplicate inbound message dropped", "messageId", msg.MessageID)
		}
	}
	return result, nil
}

// AnswerTicket resolves a ticket, stores the answer on the conversation and
// queues its delivery. While the queue is shutting down the answer is refused
// so the helpdesk retries it against the next instance.
func (s *Service) AnswerTicket(ctx context.Context, req TicketAnswerRequest) (tickets.Outcome, error) {
	answer := sanitize.Text(sanitize.StripHTML(req.Answer))
	if answer == "" {
		return tickets.Ignored, apperr.Validation("answer is empty after cleaning")
	}
	if !s.ingestor.Accepting() {
		return tickets.Ignored, apperr.Transient("not accepting ticket answers while shutting down", nil)
	}

	res := s.resolver.Resolve(ctx, req.TicketID, answer)
	if res.Outcome != tickets.Applied {
		s.log.Info("ticket answer ignored", "ticketId", req.TicketID)
		return tickets.Ignored, nil
	}
	log := s.log.WithConversation(res.UserKey)

	stored := s.storePending(ctx, res)
	if err := s.ingestor.Enqueue(queue.Job{
		Kind:     queue.KindResolution,
		Key:      res.UserKey,
		TicketID: res.TicketID,
		Question: res.Question,
		Answer:   res.Answer,
	}); err != nil {
		if stored {
			log.Warn("resolution job not queued, answer kept pending", "ticketId", res.TicketID, "error", err)
			return tickets.Applied, nil
		}
		log.Error("resolution job not queued", "ticketId", res.TicketID, "error", err)
		return tickets.Applied, err
	}
	return tickets.Applied, nil
}

// storePending records the answer on the conversation. A stored answer is
// delivered by the next turn, reminder or restart even if its job is lost.
func (s *Service) storePending(ctx context.Context, res tickets.Resolution) bool {
	err := s.pending.Update(ctx, res.UserKey, func(c *conversation.Conversation) error {
		c.Pending = &conversation.PendingReply{
			TicketID:   res.TicketID,
			Question:   res.Question,
			Answer:     res.Answer,
			AcceptedAt: s.now(),
		}
		return nil
	})
	if err != nil {
		s.log.WithConversation(res.UserKey).Error("answer not stored on conversation", "ticketId", res.TicketID, "error", err)
		return false
	}
	return true
}
