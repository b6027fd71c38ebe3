// Package gateway turns chunks into vectors and writes them to a document's
// collection.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
	"github.com/xhad/mrag/pkg/logger"
)

const collectionPrefix = "pdf_"

// CollectionName is the collection holding one document's vectors.
func CollectionName(docID string) string {
	return collectionPrefix + docID
}

type GatewayConfig struct {
	Embedder types.Embedder
	Store    types.VectorStore
}

type Gateway struct {
	config GatewayConfig
}

func NewWithConfig(config GatewayConfig) (*Gateway, error) {
	if config.Embedder == nil || config.Store == nil {
		return nil, fmt.Errorf("%w: gateway needs an embedder and a store", types.ErrInvalidInput)
	}
	return &Gateway{config: config}, nil
}

func (g *Gateway) Embedder() types.Embedder { return g.config.Embedder }

func (g *Gateway) Store() types.VectorStore { return g.config.Store }

// Index embeds chunks and upserts them into collection, creating it on first
// use with the embedding's dimension. Ids are the chunk positions. It returns
// only after the store has acknowledged the write, so a search issued right
// after sees every vector. If the collection was created here and the write
// fails, it is dropped again.
func (g *Gateway) Index(ctx context.Context, collection string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return types.ErrNoContent
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := g.config.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	dim := len(embeddings[0])
	vectors := make([]models.StoredVector, len(chunks))
	for i, c := range chunks {
		if len(embeddings[i]) != dim {
			return fmt.Errorf("%w: chunk %d has %d dims, expected %d", types.ErrDimensionMismatch, i, len(embeddings[i]), dim)
		}
		vectors[i] = models.StoredVector{ID: int64(i), Embedding: embeddings[i], Payload: c}
	}

	created, err := g.ensureCollection(ctx, collection, dim)
	if err != nil {
		return err
	}

	if err := g.config.Store.Upsert(ctx, collection, vectors); err != nil {
		if created {
			if derr := g.config.Store.DropCollection(context.WithoutCancel(ctx), collection); derr != nil {
				logger.Warn("failed to drop collection %s after failed upsert: %v", collection, derr)
			}
		}
		return storeError("upsert", collection, err)
	}

	logger.Debug("indexed %d chunks into %s", len(vectors), collection)
	return nil
}

func (g *Gateway) ensureCollection(ctx context.Context, collection string, dim int) (bool, error) {
	exists, err := g.config.Store.CollectionExists(ctx, collection)
	if err != nil {
		return false, storeError("check", collection, err)
	}
	if exists {
		return false, nil
	}

	err = g.config.Store.CreateCollection(ctx, collection, dim, types.MetricCosine)
	if errors.Is(err, types.ErrAlreadyExists) {
		// lost a creation race
		return false, nil
	}
	if err != nil {
		return false, storeError("create", collection, err)
	}
	return true, nil
}

// Search embeds the query and returns the k nearest chunks of collection.
func (g *Gateway) Search(ctx context.Context, collection, query string, k int) ([]models.RetrievalHit, error) {
	vector, err := g.config.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := g.config.Store.Search(ctx, collection, vector, k)
	if err != nil {
		return nil, storeError("search", collection, err)
	}
	return hits, nil
}

// Drop removes a collection.
func (g *Gateway) Drop(ctx context.Context, collection string) error {
	if err := g.config.Store.DropCollection(ctx, collection); err != nil {
		return storeError("drop", collection, err)
	}
	return nil
}

// storeError tags transport failures as ErrStoreUnavailable. Errors the store
// already classified keep their own sentinel.
func storeError(op, collection string, err error) error {
	switch {
	case errors.Is(err, types.ErrStoreUnavailable):
		return err
	case errors.Is(err, types.ErrCollectionNotFound),
		errors.Is(err, types.ErrDimensionMismatch),
		errors.Is(err, types.ErrAlreadyExists),
		errors.Is(err, types.ErrInvalidInput):
		return fmt.Errorf("failed to %s %s: %w", op, collection, err)
	}
	return fmt.Errorf("%w: %s %s: %w", types.ErrStoreUnavailable, op, collection, err)
}
