// Package retriever answers "which chunks of this document match the query".
package retriever

import (
	"context"
	"fmt"

	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
	"github.com/xhad/mrag/pkg/gateway"
	"github.com/xhad/mrag/pkg/store"
)

const DefaultTopK = 5

type RetrieverConfig struct {
	Registry types.Registry
	Gateway  *gateway.Gateway
	TopK     int
}

type Retriever struct {
	config RetrieverConfig
}

func NewWithConfig(config RetrieverConfig) (*Retriever, error) {
	if config.Registry == nil || config.Gateway == nil {
		return nil, fmt.Errorf("%w: retriever needs a registry and a gateway", types.ErrInvalidInput)
	}
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	return &Retriever{config: config}, nil
}

func (r *Retriever) TopK() int { return r.config.TopK }

// Retrieve returns the top-k chunks of docID for query, best first. Unknown
// documents fail with ErrDocumentNotFound before the store is touched.
func (r *Retriever) Retrieve(ctx context.Context, docID, query string) ([]models.RetrievalHit, error) {
	doc, err := r.config.Registry.Get(ctx, docID)
	if err != nil {
		return nil, err
	}

	collection := doc.Collection
	if collection == "" {
		collection = gateway.CollectionName(doc.ID)
	}

	hits, err := r.config.Gateway.Search(ctx, collection, query, r.config.TopK)
	if err != nil {
		return nil, err
	}
	store.SortHits(hits)
	return hits, nil
}
