// Package events defines the domain events published by the ticket manager
// and the pipeline. The bus itself lives in platform/events.
package events

import (
	"support_router_backend/platform/events"
	"support_router_backend/platform/logger"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewBaseEventAt = events.NewBaseEventAt
)

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// Resolution sources carried by ConversationResolved.
const (
	SourceSimple    = "simple"
	SourceKnowledge = "knowledge"
	SourceHuman     = "human"
)

// TicketOpened is published when a conversation is escalated to the human desk.
type TicketOpened struct {
	BaseEvent
	TicketID string `json:"ticketId"`
	UserKey  string `json:"userKey"`
	Question string `json:"question"`
}

func (e TicketOpened) EventName() string       { return "tickets.ticket.opened" }
func (e TicketOpened) ConversationKey() string { return e.UserKey }

// TicketAnswered is published once per ticket when the first answer is applied.
type TicketAnswered struct {
	BaseEvent
	TicketID string `json:"ticketId"`
	UserKey  string `json:"userKey"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (e TicketAnswered) EventName() string       { return "tickets.ticket.answered" }
func (e TicketAnswered) ConversationKey() string { return e.UserKey }

// ConversationResolved is published when a conversation reaches RESOLVED.
type ConversationResolved struct {
	BaseEvent
	UserKey string `json:"userKey"`
	Source  string `json:"source"`
}

func (e ConversationResolved) EventName() string       { return "conversation.resolved" }
func (e ConversationResolved) ConversationKey() string { return e.UserKey }
