// Package knowledge queries and grows the support knowledge base. Answers
// given by human agents are written back so the next identical question is
// answered without escalation.
package knowledge

import (
	"context"
	"time"
)

const (
	// SourceHumanSupport marks documents learned from resolved tickets.
	SourceHumanSupport = "human_support"
	// SourceOperator marks documents loaded by an operator.
	SourceOperator = "operator"
)

// Candidate is one ranked answer.
type Candidate struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

// Document is a stored question/answer pair.
type Document struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Source    string    `json:"source"`
	DateAdded time.Time `json:"date_added"`
}

// Store is the knowledge-store collaborator. Query returns candidates
// ordered by descending score.
type Store interface {
	Query(ctx context.Context, text string) ([]Candidate, error)
	Write(ctx context.Context, question, answer string) (string, error)
}

// Archiver keeps a durable copy of every written document.
type Archiver interface {
	Archive(ctx context.Context, doc Document) error
}
