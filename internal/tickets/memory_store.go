package tickets

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local ticket store.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[string]Ticket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]Ticket)}
}

func (s *MemoryStore) Create(_ context.Context, question, userKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.tickets[id] = Ticket{
		ID:        id,
		UserKey:   userKey,
		Question:  question,
		Status:    StatusOpen,
		CreatedAt: time.Now(),
	}
	return id, nil
}

func (s *MemoryStore) MarkAnswered(_ context.Context, id, answer string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok || t.Status != StatusOpen {
		return nil
	}
	t.Status = StatusAnswered
	t.Answer = answer
	t.AnsweredAt = &at
	s.tickets[id] = t
	return nil
}

func (s *MemoryStore) ListOpen(_ context.Context) ([]Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Ticket
	for _, t := range s.tickets {
		if t.Status == StatusOpen {
			out = append(out, t)
		}
	}
	return out, nil
}
