package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"

	"support_router_backend/platform/sanitize"

	"github.com/google/uuid"
)

// MemoryStore ranks documents by word overlap (Jaccard). It backs local
// development when no vector database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	docs []Document
}

func NewMemoryStore(seed ...Document) *MemoryStore {
	return &MemoryStore{docs: append([]Document(nil), seed...)}
}

func (s *MemoryStore) Query(_ context.Context, text string) ([]Candidate, error) {
	q := words(text)

	s.mu.RLock()
	out := make([]Candidate, 0, len(s.docs))
	for _, d := range s.docs {
		score := jaccard(q, words(d.Question))
		if score > 0 {
			out = append(out, Candidate{Question: d.Question, Answer: d.Answer, Score: score})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *MemoryStore) Write(_ context.Context, question, answer string) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.docs = append(s.docs, Document{ID: id, Question: question, Answer: answer, Source: SourceHumanSupport})
	s.mu.Unlock()
	return id, nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func words(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(sanitize.Question(text)) {
		w = strings.Trim(w, "¿?¡!.,;:")
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
