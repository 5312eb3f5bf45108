package email

import (
	"context"
	"time"
)

// TicketSummary is the ticket data shown to the support desk.
type TicketSummary struct {
	TicketID string
	UserKey  string
	Question string
	Answer   string
	At       time.Time
}

type Sender interface {
	SendTicketOpenedEmail(ctx context.Context, toEmail string, ticket TicketSummary) error
	SendTicketAnsweredEmail(ctx context.Context, toEmail string, ticket TicketSummary) error
}

type NoopSender struct{}

func (NoopSender) SendTicketOpenedEmail(ctx context.Context, toEmail string, ticket TicketSummary) error {
	return nil
}

func (NoopSender) SendTicketAnsweredEmail(ctx context.Context, toEmail string, ticket TicketSummary) error {
	return nil
}
