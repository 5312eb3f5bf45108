package knowledge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"support_router_backend/platform/apperr"
	"support_router_backend/platform/qdrant"
	"support_router_backend/platform/sanitize"

	"github.com/google/uuid"
)

const defaultSearchLimit = 3

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the subset of the Qdrant client used here.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, size int) error
	Search(ctx context.Context, vector []float32, limit int) ([]qdrant.Point, error)
	Upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error
}

// QdrantStore answers questions by vector similarity.
type QdrantStore struct {
	embedder Embedder
	index    VectorIndex
	limit    int
	now      func() time.Time

	mu      sync.Mutex
	ensured bool
}

func NewQdrantStore(embedder Embedder, index VectorIndex) *QdrantStore {
	return &QdrantStore{
		embedder: embedder,
		index:    index,
		limit:    defaultSearchLimit,
		now:      time.Now,
	}
}

func (s *QdrantStore) Query(ctx context.Context, text string) ([]Candidate, error) {
	vector, err := s.embedder.Embed(ctx, sanitize.Question(text))
	if err != nil {
		return nil, err
	}
	points, err := s.index.Search(ctx, vector, s.limit)
	if err != nil {
		return nil, apperr.Transient("knowledge search failed", err)
	}

	out := make([]Candidate, 0, len(points))
	for _, p := range points {
		answer := p.Payload["answer"]
		if answer == "" {
			continue
		}
		out = append(out, Candidate{Question: p.Payload["question"], Answer: answer, Score: p.Score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *QdrantStore) Write(ctx context.Context, question, answer string) (string, error) {
	vector, err := s.embedder.Embed(ctx, sanitize.Question(question))
	if err != nil {
		return "", err
	}
	if err := s.ensureCollection(ctx, len(vector)); err != nil {
		return "", err
	}

	id := uuid.NewString()
	payload := map[string]any{
		"question":   question,
		"answer":     answer,
		"source":     SourceHumanSupport,
		"date_added": s.now().UTC().Format(time.RFC3339),
	}
	if err := s.index.Upsert(ctx, id, vector, payload); err != nil {
		return "", fmt.Errorf("store knowledge document: %w", err)
	}
	return id, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	if err := s.index.EnsureCollection(ctx, size); err != nil {
		return err
	}
	s.ensured = true
	return nil
}
