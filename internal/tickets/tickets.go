// Package tickets manages human-escalation tickets. A conversation has at
// most one OPEN ticket; a ticket becomes ANSWERED exactly once.
package tickets

import (
	"context"
	"time"
)

type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusAnswered Status = "ANSWERED"
)

// Ticket is a question handed to the human support desk.
type Ticket struct {
	ID         string     `json:"id"`
	UserKey    string     `json:"userKey"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer,omitempty"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
}

// Store is the ticket-store collaborator.
type Store interface {
	Create(ctx context.Context, question, userKey string) (string, error)
}

// AnswerRecorder is implemented by stores that persist answers.
type AnswerRecorder interface {
	MarkAnswered(ctx context.Context, id, answer string, at time.Time) error
}

// OpenLister is implemented by stores that can list OPEN tickets for hydration.
type OpenLister interface {
	ListOpen(ctx context.Context) ([]Ticket, error)
}

// Outcome of a resolve call.
type Outcome string

const (
	Ignored Outcome = "ignored"
	Applied Outcome = "applied"
)

// Resolution is returned by Manager.Resolve.
type Resolution struct {
	Outcome  Outcome
	TicketID string
	UserKey  string
	Question string
	Answer   string
}
