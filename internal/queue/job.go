// Package queue serialises work per conversation key while running
// different keys in parallel on a bounded worker pool.
package queue

import (
	"context"
	"time"
)

// Kind of job.
type Kind int

const (
	// KindTurn processes an inbound user message.
	KindTurn Kind = iota
	// KindResolution delivers a human answer.
	KindResolution
	// KindReminder checks on a conversation still waiting for a human.
	KindReminder
)

func (k Kind) String() string {
	switch k {
	case KindTurn:
		return "turn"
	case KindResolution:
		return "resolution"
	case KindReminder:
		return "reminder"
	default:
		return "unknown"
	}
}

// Job is one unit of work for a conversation key.
type Job struct {
	Kind Kind
	Key  string

	// Turn jobs. Text holds every superseded message joined by newlines.
	Text       string
	MessageIDs []string
	At         time.Time
	Merged     int

	// Resolution and reminder jobs.
	TicketID string
	Question string
	Answer   string
}

// Supersedable reports whether the job may be merged into a newer one.
func (j Job) Supersedable() bool {
	return j.Kind == KindTurn
}

// Handler processes jobs. Calls for one key never overlap.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Inbound is a canonical inbound message ready for ingestion.
type Inbound struct {
	Key       string
	MessageID string
	Text      string
	At        time.Time
}
