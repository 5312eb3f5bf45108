package pipeline

import (
	"context"
	"testing"
	"time"

	"support_router_backend/internal/agent"
	"support_router_backend/internal/conversation"
	"support_router_backend/internal/queue"
	"support_router_backend/platform/logger"
)

type jobSink struct {
	jobs []queue.Job
}

func (s *jobSink) Enqueue(job queue.Job) error {
	s.jobs = append(s.jobs, job)
	return nil
}

func TestRequeuePendingQueuesStoredAnswers(t *testing.T) {
	ctx := context.Background()
	store := conversation.NewMemoryStore(time.Hour)
	err := store.Update(ctx, "569-a", func(c *conversation.Conversation) error {
		c.Stage = conversation.StageAwaitingHuman
		c.Pending = &conversation.PendingReply{TicketID: "t-1", Question: "¿Boleta?", Answer: "Sí."}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Update(ctx, "569-b", func(c *conversation.Conversation) error {
		c.Stage = conversation.StageResolved
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sink := &jobSink{}
	n, err := RequeuePending(ctx, store, sink, logger.Nop())
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 1 || len(sink.jobs) != 1 {
		t.Fatalf("expected one job, got %d %+v", n, sink.jobs)
	}
	job := sink.jobs[0]
	if job.Kind != queue.KindResolution || job.Key != "569-a" || job.TicketID != "t-1" || job.Answer != "Sí." {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestRequeuedAnswerIsDeliveredOnce(t *testing.T) {
	h := newHarness()
	h.classifier.result = agent.Classification{Escalate: true}
	h.turn(t, user, "¿Aceptan transferencia?")
	ticketID := h.conv(t, user).OpenTicketID

	res := h.manager.Resolve(context.Background(), ticketID, "Sí, también transferencia.")
	err := h.store.Update(context.Background(), user, func(c *conversation.Conversation) error {
		c.Pending = &conversation.PendingReply{TicketID: res.TicketID, Question: res.Question, Answer: res.Answer}
		return nil
	})
	if err != nil {
		t.Fatalf("persist pending: %v", err)
	}

	sink := &jobSink{}
	if _, err := RequeuePending(context.Background(), h.store, sink, logger.Nop()); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if len(sink.jobs) != 1 {
		t.Fatalf("expected one requeued job, got %+v", sink.jobs)
	}
	h.handle(t, sink.jobs[0])
	// The job queued before the restart may still run afterwards.
	h.handle(t, sink.jobs[0])

	got := h.channel.messages()
	if got[len(got)-1] != "Sí, también transferencia." {
		t.Fatalf("answer not delivered after requeue: %v", got)
	}
	sent := 0
	for _, m := range got {
		if m == "Sí, también transferencia." {
			sent++
		}
	}
	if sent != 1 {
		t.Fatalf("answer delivered %d times", sent)
	}
	keys, _ := h.store.PendingKeys(context.Background())
	if len(keys) != 0 {
		t.Fatalf("pending answer left behind: %v", keys)
	}
}
