package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// sweepEvery controls how often expired dedupe entries are purged.
const sweepEvery = 1024

// MemoryStore keeps conversations in process memory. One mutex guards all
// keys; it is held only around local mutation.
type MemoryStore struct {
	mu      sync.Mutex
	convs   map[string]*Conversation
	seen    map[string]time.Time // message id -> expiry
	ttl     time.Duration
	inserts int
	now     func() time.Time
}

// NewMemoryStore creates a store whose dedupe entries live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		convs: make(map[string]*Conversation),
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[key]; ok {
		return c.clone(), nil
	}
	return New(key), nil
}

func (s *MemoryStore) AppendInbound(_ context.Context, key string, turn Turn) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convLocked(key)
	if turn.MessageID != "" {
		if s.seenLocked(turn.MessageID) || c.SentByUs(turn.MessageID) {
			return false, nil
		}
		s.markLocked(turn.MessageID)
	}
	c.appendTurn(turn)
	return true, nil
}

func (s *MemoryStore) RecordOutbound(_ context.Context, key string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.MessageID != "" {
		s.markLocked(turn.MessageID)
	}
	s.convLocked(key).appendTurn(turn)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, key string, fn func(*Conversation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.convLocked(key).clone()
	if err := fn(working); err != nil {
		return err
	}
	s.convs[key] = working
	return nil
}

func (s *MemoryStore) Seen(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seenLocked(messageID), nil
}

func (s *MemoryStore) PendingKeys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key, c := range s.convs {
		if c.Pending != nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) convLocked(key string) *Conversation {
	c, ok := s.convs[key]
	if !ok {
		c = New(key)
		s.convs[key] = c
	}
	return c
}

func (s *MemoryStore) seenLocked(id string) bool {
	exp, ok := s.seen[id]
	if !ok {
		return false
	}
	if s.now().After(exp) {
		delete(s.seen, id)
		return false
	}
	return true
}

func (s *MemoryStore) markLocked(id string) {
	now := s.now()
	s.seen[id] = now.Add(s.ttl)

	s.inserts++
	if s.inserts%sweepEvery != 0 {
		return
	}
	for k, exp := range s.seen {
		if now.After(exp) {
			delete(s.seen, k)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
