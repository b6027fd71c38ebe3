package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
)

type memoryCollection struct {
	dim     int
	vectors map[int64]models.StoredVector
}

// MemoryStore keeps collections in process memory. It is safe for concurrent
// use and is lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *MemoryStore) CreateCollection(ctx context.Context, name string, dim int, metric types.Metric) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", types.ErrInvalidInput, dim)
	}
	if err := checkMetric(metric); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("collection %s: %w", name, types.ErrAlreadyExists)
	}
	s.collections[name] = &memoryCollection{dim: dim, vectors: make(map[int64]models.StoredVector)}
	return nil
}

// Upsert is all-or-nothing: a single bad vector leaves the collection untouched.
func (s *MemoryStore) Upsert(ctx context.Context, name string, vectors []models.StoredVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("collection %s: %w", name, types.ErrCollectionNotFound)
	}
	for _, v := range vectors {
		if len(v.Embedding) != c.dim {
			return fmt.Errorf("%w: vector %d has %d dims, collection %s has %d",
				types.ErrDimensionMismatch, v.ID, len(v.Embedding), name, c.dim)
		}
	}
	for _, v := range vectors {
		v.Embedding = append([]float32(nil), v.Embedding...)
		c.vectors[v.ID] = v
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, name string, vector []float32, k int) ([]models.RetrievalHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, types.ErrCollectionNotFound)
	}
	if len(vector) != c.dim {
		return nil, fmt.Errorf("%w: query has %d dims, collection %s has %d",
			types.ErrDimensionMismatch, len(vector), name, c.dim)
	}
	if k <= 0 {
		return []models.RetrievalHit{}, nil
	}

	hits := make([]models.RetrievalHit, 0, len(c.vectors))
	for _, v := range c.vectors {
		hits = append(hits, models.RetrievalHit{
			ID:    v.ID,
			Page:  v.Payload.Page,
			Text:  v.Payload.Text,
			Score: cosine(vector, v.Embedding),
		})
	}
	SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MemoryStore) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *MemoryStore) Close() {}
