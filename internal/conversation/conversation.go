// Package conversation holds per-user conversation state: ordered turn
// history, pipeline stage, the dedupe set of processed message ids and any
// human answer still waiting to be delivered.
package conversation

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Direction of a turn.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// maxRecentOutbound bounds Conversation.RecentOutbound.
const maxRecentOutbound = 50

// Turn is one message in a conversation.
type Turn struct {
	Direction Direction `json:"direction"`
	At        time.Time `json:"at"`
	Text      string    `json:"text"`
	MessageID string    `json:"messageId"`
}

// PendingReply is a human answer that was accepted but not yet delivered.
type PendingReply struct {
	TicketID   string    `json:"ticketId"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// Conversation is the state kept for one user key.
type Conversation struct {
	Key          string        `json:"key"`
	Turns        []Turn        `json:"turns"`
	Stage        Stage         `json:"stage"`
	OpenTicketID string        `json:"openTicketId,omitempty"`
	Pending      *PendingReply `json:"pending,omitempty"`

	// DeliveredTicketID is the last ticket whose answer reached the user.
	DeliveredTicketID string    `json:"deliveredTicketId,omitempty"`
	RecentOutbound    []string  `json:"recentOutbound,omitempty"`
	LastActivity      time.Time `json:"lastActivity"`
}

// New returns an empty conversation in StageNew.
func New(key string) *Conversation {
	return &Conversation{Key: key, Stage: StageNew}
}

// Recent returns the last n turns, oldest first.
func (c *Conversation) Recent(n int) []Turn {
	if n <= 0 || n >= len(c.Turns) {
		out := make([]Turn, len(c.Turns))
		copy(out, c.Turns)
		return out
	}
	out := make([]Turn, n)
	copy(out, c.Turns[len(c.Turns)-n:])
	return out
}

// RecentUntil returns up to n turns ending with the turn carrying messageID,
// so later turns are not attributed to an earlier message. It falls back to
// Recent when the id is not in the history.
func (c *Conversation) RecentUntil(messageID string, n int) []Turn {
	if messageID == "" {
		return c.Recent(n)
	}
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].MessageID != messageID {
			continue
		}
		start := 0
		if n > 0 && i+1 > n {
			start = i + 1 - n
		}
		out := make([]Turn, i+1-start)
		copy(out, c.Turns[start:i+1])
		return out
	}
	return c.Recent(n)
}

// LastInbound returns the most recent inbound turn.
func (c *Conversation) LastInbound() (Turn, bool) {
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].Direction == Inbound {
			return c.Turns[i], true
		}
	}
	return Turn{}, false
}

// SentByUs reports whether messageID is one of the recently sent outbound ids.
func (c *Conversation) SentByUs(messageID string) bool {
	for _, id := range c.RecentOutbound {
		if id == messageID {
			return true
		}
	}
	return false
}

// appendTurn adds t to the history. An outbound turn drops any inbound turn
// with the same id, which is an echo that arrived before the send was
// recorded.
func (c *Conversation) appendTurn(t Turn) {
	if t.Direction == Outbound && t.MessageID != "" {
		c.Turns = slices.DeleteFunc(c.Turns, func(prev Turn) bool {
			return prev.Direction == Inbound && prev.MessageID == t.MessageID
		})
	}
	c.Turns = append(c.Turns, t)
	if t.At.After(c.LastActivity) {
		c.LastActivity = t.At
	}
	if t.Direction == Outbound && t.MessageID != "" {
		c.RecentOutbound = append(c.RecentOutbound, t.MessageID)
		if over := len(c.RecentOutbound) - maxRecentOutbound; over > 0 {
			c.RecentOutbound = c.RecentOutbound[over:]
		}
	}
}

func (c *Conversation) clone() *Conversation {
	cp := *c
	cp.Turns = append([]Turn(nil), c.Turns...)
	cp.RecentOutbound = append([]string(nil), c.RecentOutbound...)
	if c.Pending != nil {
		p := *c.Pending
		cp.Pending = &p
	}
	return &cp
}

// Store persists conversations and the dedupe set.
type Store interface {
	// Get returns a copy of the conversation, or a fresh one in StageNew.
	Get(ctx context.Context, key string) (*Conversation, error)
	// AppendInbound records turn.MessageID in the dedupe set and appends the
	// turn. It returns false without mutating anything when the id is known.
	AppendInbound(ctx context.Context, key string, turn Turn) (bool, error)
	// RecordOutbound records a self-sent message id and appends the turn.
	RecordOutbound(ctx context.Context, key string, turn Turn) error
	// Update applies fn to the stored conversation. Nothing is written when fn
	// returns an error. fn must only mutate local state.
	Update(ctx context.Context, key string, fn func(*Conversation) error) error
	// Seen reports whether messageID is in the dedupe set.
	Seen(ctx context.Context, messageID string) (bool, error)
	// PendingKeys lists conversations holding an undelivered human answer.
	PendingKeys(ctx context.Context) ([]string, error)
}

// FormatHistory renders turns as "User:"/"Assistant:" lines for the classifier.
func FormatHistory(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Direction == Inbound {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
