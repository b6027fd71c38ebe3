// Package registry records which documents exist and the collection backing
// each one. Entries are written once after a successful ingestion and never
// mutated.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
)

const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
)

// Memory is a process-lifetime registry. Reads run concurrently; inserts are
// serialized.
type Memory struct {
	mu    sync.RWMutex
	docs  map[string]models.Document
	order []string
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]models.Document)}
}

func (m *Memory) Put(ctx context.Context, doc models.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document id is empty", types.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return fmt.Errorf("document %s: %w", doc.ID, types.ErrAlreadyExists)
	}
	m.docs[doc.ID] = doc
	m.order = append(m.order, doc.ID)
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return models.Document{}, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	return doc, nil
}

// List returns documents in registration order.
func (m *Memory) List(ctx context.Context) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Document, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.docs[id])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
