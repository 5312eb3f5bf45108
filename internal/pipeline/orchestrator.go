// Package pipeline runs the escalation state machine for each queued job:
// SIMPLE classifier, then KNOWLEDGE lookup, then a human ticket.
package pipeline

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"support_router_backend/internal/agent"
	"support_router_backend/internal/conversation"
	"support_router_backend/internal/events"
	"support_router_backend/internal/knowledge"
	"support_router_backend/internal/queue"
	"support_router_backend/internal/tickets"
	"support_router_backend/platform/apperr"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/retry"
)

// Classifier answers or defers a message given recent history.
type Classifier interface {
	Classify(ctx context.Context, history []conversation.Turn) (agent.Classification, error)
}

// KnowledgeSearcher looks up prior answers.
type KnowledgeSearcher interface {
	Query(ctx context.Context, text string) ([]knowledge.Candidate, error)
}

// Escalator opens human tickets.
type Escalator interface {
	Escalate(ctx context.Context, key, question string) (string, error)
	OpenTicket(key string) (tickets.Ticket, bool)
}

// Dispatcher sends replies to the user.
type Dispatcher interface {
	Send(ctx context.Context, key, text string) (string, error)
}

// WriteBacker stores answered questions for future lookups.
type WriteBacker interface {
	WriteBack(ctx context.Context, question, answer string)
}

// ReminderScheduler arranges a later reminder job for a waiting conversation.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, key, ticketID string, after time.Duration) error
}

// Options tunes the orchestrator.
type Options struct {
	HistoryWindow int
	Threshold     float64
	Retry         retry.Policy
	ReminderAfter time.Duration
}

// Deps groups the orchestrator's collaborators. Bus, WriteBack and Reminders
// may be nil.
type Deps struct {
	Store      conversation.Store
	Classifier Classifier
	Knowledge  KnowledgeSearcher
	Tickets    Escalator
	Dispatcher Dispatcher
	WriteBack  WriteBacker
	Reminders  ReminderScheduler
	Bus        events.Bus
}

// errSkipUpdate aborts a store update that has nothing to write.
var errSkipUpdate = errors.New("nothing to update")

// Orchestrator implements queue.Handler.
type Orchestrator struct {
	Deps
	replies Replies
	opts    Options
	log     *logger.Logger
	now     func() time.Time
}

// New creates an orchestrator.
func New(deps Deps, replies Replies, opts Options, log *logger.Logger) *Orchestrator {
	if opts.HistoryWindow < 1 {
		opts.HistoryWindow = 10
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.8
	}
	return &Orchestrator{
		Deps:    deps,
		replies: replies,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}
}

// Handle dispatches a job by kind.
func (o *Orchestrator) Handle(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.KindTurn:
		return o.handleTurn(ctx, job)
	case queue.KindResolution:
		return o.handleResolution(ctx, job)
	case queue.KindReminder:
		return o.handleReminder(ctx, job)
	default:
		return apperr.Validation("unknown job kind")
	}
}

func (o *Orchestrator) handleTurn(ctx context.Context, job queue.Job) error {
	conv, err := o.Store.Get(ctx, job.Key)
	if err != nil {
		return err
	}
	job, ok := withoutEchoes(conv, job)
	if !ok {
		o.log.WithConversation(job.Key).Debug("dropping turn made of our own messages", "messageIds", job.MessageIDs)
		return nil
	}

	if conv.Pending != nil {
		delivered, err := o.deliverPending(ctx, job.Key, *conv.Pending)
		if err != nil || !delivered {
			return err
		}
		if conversation.EntryStage(conv.Stage) == conversation.StageAwaitingHuman {
			return nil
		}
		if conv, err = o.Store.Get(ctx, job.Key); err != nil {
			return err
		}
	}

	if conversation.EntryStage(conv.Stage) == conversation.StageAwaitingHuman {
		if _, open := o.Tickets.OpenTicket(job.Key); open {
			o.send(ctx, job.Key, o.replies.Holding)
			return nil
		}
		o.log.WithConversation(job.Key).Info("no open ticket while awaiting human, re-entering")
	}

	err = o.advance(ctx, job.Key, conversation.StageSimple, func(c *conversation.Conversation) {
		c.OpenTicketID = ""
	})
	if err != nil {
		return err
	}
	return o.runSimple(ctx, job.Key, conv.RecentUntil(lastID(job.MessageIDs), o.opts.HistoryWindow), job.Text)
}

func (o *Orchestrator) runSimple(ctx context.Context, key string, history []conversation.Turn, question string) error {
	var cls agent.Classification
	err := retry.Do(ctx, o.opts.Retry, func(ctx context.Context) error {
		var err error
		cls, err = o.Classifier.Classify(ctx, history)
		return err
	})
	if err != nil {
		return o.degrade(ctx, key, "classify", err)
	}

	if cls.Direct() {
		return o.answer(ctx, key, cls.Answer, events.SourceSimple)
	}

	if err := o.advance(ctx, key, conversation.StageKnowledge, nil); err != nil {
		return err
	}
	return o.runKnowledge(ctx, key, question)
}

func (o *Orchestrator) runKnowledge(ctx context.Context, key, question string) error {
	var candidates []knowledge.Candidate
	err := retry.Do(ctx, o.opts.Retry, func(ctx context.Context) error {
		var err error
		candidates, err = o.Knowledge.Query(ctx, question)
		return err
	})
	if err != nil {
		return o.degrade(ctx, key, "knowledge query", err)
	}

	if best, ok := topCandidate(candidates); ok && best.Score >= o.opts.Threshold {
		return o.answer(ctx, key, best.Answer, events.SourceKnowledge)
	}
	return o.escalate(ctx, key, question)
}

func (o *Orchestrator) escalate(ctx context.Context, key, question string) error {
	var ticketID string
	err := retry.Do(ctx, o.opts.Retry, func(ctx context.Context) error {
		var err error
		ticketID, err = o.Tickets.Escalate(ctx, key, question)
		return err
	})
	if err != nil {
		return o.degrade(ctx, key, "escalate", err)
	}

	err = o.advance(ctx, key, conversation.StageAwaitingHuman, func(c *conversation.Conversation) {
		c.OpenTicketID = ticketID
	})
	if err != nil {
		return err
	}

	o.send(ctx, key, o.replies.Handoff)
	o.scheduleReminder(ctx, key, ticketID)
	return nil
}

// answer sends text and resolves the conversation. A failed send leaves the
// stage where it was.
func (o *Orchestrator) answer(ctx context.Context, key, text, source string) error {
	if _, err := o.Dispatcher.Send(ctx, key, text); err != nil {
		return o.degrade(ctx, key, "send answer", err)
	}
	if err := o.advance(ctx, key, conversation.StageResolved, nil); err != nil {
		return err
	}
	o.publishResolved(ctx, key, source)
	return nil
}

// handleResolution delivers an accepted human answer. The answer may already
// be stored on the conversation, and a turn may already have delivered it.
func (o *Orchestrator) handleResolution(ctx context.Context, job queue.Job) error {
	pending := conversation.PendingReply{
		TicketID:   job.TicketID,
		Question:   job.Question,
		Answer:     job.Answer,
		AcceptedAt: o.now(),
	}
	delivered := false
	err := o.Store.Update(ctx, job.Key, func(c *conversation.Conversation) error {
		switch {
		case c.DeliveredTicketID == job.TicketID:
			delivered = true
			return errSkipUpdate
		case c.Pending != nil && c.Pending.TicketID == job.TicketID:
			pending = *c.Pending
			return errSkipUpdate
		}
		c.Pending = &pending
		return nil
	})
	if err != nil && !errors.Is(err, errSkipUpdate) {
		return err
	}
	if delivered {
		o.log.WithConversation(job.Key).Debug("answer already delivered", "ticketId", job.TicketID)
		return nil
	}
	_, err = o.deliverPending(ctx, job.Key, pending)
	return err
}

// deliverPending sends a human answer and reports whether it went out. On
// failure the answer stays on the conversation and a reminder is scheduled
// to try again.
func (o *Orchestrator) deliverPending(ctx context.Context, key string, p conversation.PendingReply) (bool, error) {
	log := o.log.WithConversation(key)

	if _, err := o.Dispatcher.Send(ctx, key, p.Answer); err != nil {
		log.Warn("human answer not delivered, keeping it pending", "ticketId", p.TicketID, "error", err)
		o.scheduleReminder(ctx, key, p.TicketID)
		return false, nil
	}

	var from conversation.Stage
	err := o.Store.Update(ctx, key, func(c *conversation.Conversation) error {
		from = c.Stage
		if c.Pending != nil && c.Pending.TicketID == p.TicketID {
			c.Pending = nil
		}
		if c.OpenTicketID == p.TicketID {
			c.OpenTicketID = ""
		}
		c.DeliveredTicketID = p.TicketID
		if err := c.Transition(conversation.StageResolved); err != nil {
			log.Warn("resolved answer delivered outside the expected stage", "stage", string(c.Stage))
		}
		return nil
	})
	if err != nil {
		return true, err
	}
	if from != conversation.StageResolved {
		o.log.StageTransition(key, string(from), string(conversation.StageResolved))
	}

	if o.WriteBack != nil {
		o.WriteBack.WriteBack(ctx, p.Question, p.Answer)
	}
	o.publishResolved(ctx, key, events.SourceHuman)
	return true, nil
}

func (o *Orchestrator) handleReminder(ctx context.Context, job queue.Job) error {
	conv, err := o.Store.Get(ctx, job.Key)
	if err != nil {
		return err
	}

	switch {
	case conv.Pending != nil && conv.Pending.TicketID == job.TicketID:
		_, err := o.deliverPending(ctx, job.Key, *conv.Pending)
		return err
	case conv.Stage == conversation.StageAwaitingHuman && conv.OpenTicketID == job.TicketID:
		o.send(ctx, job.Key, o.replies.StillHandling)
	}
	return nil
}

// advance moves the conversation to stage and applies mutate in the same
// update.
func (o *Orchestrator) advance(ctx context.Context, key string, to conversation.Stage, mutate func(*conversation.Conversation)) error {
	var from conversation.Stage
	err := o.Store.Update(ctx, key, func(c *conversation.Conversation) error {
		from = c.Stage
		if err := c.Transition(to); err != nil {
			return err
		}
		if mutate != nil {
			mutate(c)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if from != to {
		o.log.StageTransition(key, string(from), string(to))
	}
	return nil
}

// degrade reports a failed collaborator call to the user. The stage is left
// unchanged so the next turn retries from the same point.
func (o *Orchestrator) degrade(ctx context.Context, key, op string, err error) error {
	o.log.WithConversation(key).Error("collaborator failed", "op", op, "kind", apperr.GetKind(err).String(), "error", err)
	o.send(ctx, key, o.replies.Fallback)
	return nil
}

func (o *Orchestrator) send(ctx context.Context, key, text string) {
	if text == "" {
		return
	}
	if _, err := o.Dispatcher.Send(ctx, key, text); err != nil {
		o.log.WithConversation(key).Warn("notice not delivered", "error", err)
	}
}

func (o *Orchestrator) scheduleReminder(ctx context.Context, key, ticketID string) {
	if o.Reminders == nil || o.opts.ReminderAfter <= 0 {
		return
	}
	if err := o.Reminders.ScheduleReminder(ctx, key, ticketID, o.opts.ReminderAfter); err != nil {
		o.log.WithConversation(key).Warn("reminder not scheduled", "ticketId", ticketID, "error", err)
	}
}

func (o *Orchestrator) publishResolved(ctx context.Context, key, source string) {
	if o.Bus == nil {
		return
	}
	o.Bus.Publish(ctx, events.ConversationResolved{
		BaseEvent: events.NewBaseEvent(),
		UserKey:   key,
		Source:    source,
	})
}

// withoutEchoes removes ids of messages we sent from a turn job. Such ids come
// from echoes queued before their send was recorded. When some remain the
// text is rebuilt from their turns; ok is false when none remain.
func withoutEchoes(c *conversation.Conversation, job queue.Job) (queue.Job, bool) {
	var kept []string
	for _, id := range job.MessageIDs {
		if !c.SentByUs(id) {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(job.MessageIDs) {
		return job, true
	}
	if len(kept) == 0 {
		return job, false
	}

	texts := make([]string, 0, len(kept))
	for _, t := range c.Turns {
		if t.Direction == conversation.Inbound && slices.Contains(kept, t.MessageID) {
			texts = append(texts, t.Text)
		}
	}
	job.MessageIDs = kept
	job.Text = strings.Join(texts, "\n")
	return job, true
}

func lastID(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[len(ids)-1]
}

// topCandidate returns the highest scoring candidate. Ties keep store order.
func topCandidate(cs []knowledge.Candidate) (knowledge.Candidate, bool) {
	if len(cs) == 0 {
		return knowledge.Candidate{}, false
	}
	best := cs[0]
	for _, c := range cs[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, true
}

var _ queue.Handler = (*Orchestrator)(nil)
