package retriever_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
	"github.com/xhad/mrag/pkg/gateway"
	"github.com/xhad/mrag/pkg/llm"
	"github.com/xhad/mrag/pkg/registry"
	"github.com/xhad/mrag/pkg/retriever"
	"github.com/xhad/mrag/pkg/store"
)

// countingStore records every search that reaches the store.
type countingStore struct {
	*store.MemoryStore
	searches int
}

func (c *countingStore) Search(ctx context.Context, name string, vector []float32, k int) ([]models.RetrievalHit, error) {
	c.searches++
	return c.MemoryStore.Search(ctx, name, vector, k)
}

func setup(t *testing.T, topK int) (*retriever.Retriever, *countingStore, *gateway.Gateway, types.Registry) {
	s := &countingStore{MemoryStore: store.NewMemoryStore()}
	g, err := gateway.NewWithConfig(gateway.GatewayConfig{Embedder: llm.NewHashEmbedder(0), Store: s})
	require.NoError(t, err)
	reg := registry.NewMemory()
	r, err := retriever.NewWithConfig(retriever.RetrieverConfig{Registry: reg, Gateway: g, TopK: topK})
	require.NoError(t, err)
	return r, s, g, reg
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()
	r, _, g, reg := setup(t, 0)
	assert.Equal(t, retriever.DefaultTopK, r.TopK())

	var chunks []models.Chunk
	for _, text := range []string{
		"revenue grew from 18 to 83",
		"the board met twice",
		"headcount doubled",
		"office moved to Berlin",
		"new logo approved",
		"customer churn fell",
		"revenue targets for next year",
	} {
		chunks = append(chunks, models.Chunk{Page: 0, Text: text})
	}
	require.NoError(t, g.Index(ctx, gateway.CollectionName("doc1"), chunks))
	require.NoError(t, reg.Put(ctx, models.Document{ID: "doc1", Collection: gateway.CollectionName("doc1")}))

	hits, err := r.Retrieve(ctx, "doc1", "revenue grew")
	require.NoError(t, err)
	require.Len(t, hits, 5)
	assert.Equal(t, "revenue grew from 18 to 83", hits[0].Text)
	for i := 1; i < len(hits); i++ {
		prev, cur := hits[i-1], hits[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.ID < cur.ID),
			"hits %d and %d out of order", i-1, i)
	}
}

func TestRetrieve_UnknownDocumentNeverReachesStore(t *testing.T) {
	r, s, _, _ := setup(t, 5)

	_, err := r.Retrieve(context.Background(), "no-such-doc", "anything")
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)
	assert.Zero(t, s.searches)
}

func TestRetrieve_MissingCollection(t *testing.T) {
	ctx := context.Background()
	r, s, _, reg := setup(t, 5)
	require.NoError(t, reg.Put(ctx, models.Document{ID: "ghost"}))

	_, err := r.Retrieve(ctx, "ghost", "anything")
	assert.ErrorIs(t, err, types.ErrCollectionNotFound)
	assert.NotErrorIs(t, err, types.ErrStoreUnavailable)
	assert.Equal(t, 1, s.searches)
}
