// Package notification reacts to ticket events by notifying the support
// desk. Domain modules publish events and never talk to mail providers.
package notification

import (
	"context"

	"support_router_backend/internal/email"
	"support_router_backend/internal/events"
	"support_router_backend/platform/logger"
)

// Module is the notification event handler.
type Module struct {
	sender    email.Sender
	deskEmail string
	log       *logger.Logger
}

// New creates the notification module. With an empty deskEmail ticket mails
// are skipped.
func New(sender email.Sender, deskEmail string, log *logger.Logger) *Module {
	if sender == nil {
		sender = email.NoopSender{}
	}
	return &Module{sender: sender, deskEmail: deskEmail, log: log}
}

// RegisterHandlers subscribes to the relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.TicketOpened{}.EventName(), m)
	bus.Subscribe(events.TicketAnswered{}.EventName(), m)
	bus.Subscribe(events.ConversationResolved{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.TicketOpened:
		return m.handleTicketOpened(ctx, e)
	case events.TicketAnswered:
		return m.handleTicketAnswered(ctx, e)
	case events.ConversationResolved:
		m.log.WithConversation(e.UserKey).Info("conversation resolved", "source", e.Source)
		return nil
	default:
		return nil
	}
}

func (m *Module) handleTicketOpened(ctx context.Context, e events.TicketOpened) error {
	if m.deskEmail == "" {
		return nil
	}
	err := m.sender.SendTicketOpenedEmail(ctx, m.deskEmail, email.TicketSummary{
		TicketID: e.TicketID,
		UserKey:  e.UserKey,
		Question: e.Question,
		At:       e.OccurredAt(),
	})
	if err != nil {
		m.log.Error("failed to send ticket opened email", "ticketId", e.TicketID, "error", err)
		return err
	}
	m.log.Info("ticket opened email sent", "ticketId", e.TicketID)
	return nil
}

func (m *Module) handleTicketAnswered(ctx context.Context, e events.TicketAnswered) error {
	if m.deskEmail == "" {
		return nil
	}
	err := m.sender.SendTicketAnsweredEmail(ctx, m.deskEmail, email.TicketSummary{
		TicketID: e.TicketID,
		UserKey:  e.UserKey,
		Question: e.Question,
		Answer:   e.Answer,
		At:       e.OccurredAt(),
	})
	if err != nil {
		m.log.Error("failed to send ticket answered email", "ticketId", e.TicketID, "error", err)
		return err
	}
	return nil
}
