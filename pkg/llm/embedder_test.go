package llm_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/mrag/pkg/llm"
)

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(context.Background(), llm.EmbedderConfig{
		Model:   "nomic-embed-text:latest",
		BaseURL: "http://localhost:11434",
	})
	assert.NoError(t, err)
	assert.NotNil(t, emb)

	_, err = llm.NewEmbedderWithConfig(context.Background(), llm.EmbedderConfig{Provider: "word2vec"})
	assert.Error(t, err)
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(context.Background(), llm.EmbedderConfig{Provider: llm.ProviderHash, Dimension: 64})
	require.NoError(t, err)

	ctx := context.Background()
	a, err := emb.EmbedQuery(ctx, "Revenue grew from 18 to 83.")
	require.NoError(t, err)
	b, err := emb.EmbedQuery(ctx, "Revenue grew from 18 to 83.")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	docs, err := emb.EmbedDocuments(ctx, []string{"Revenue grew from 18 to 83."})
	require.NoError(t, err)
	assert.Equal(t, a, docs[0])
}

func TestHashEmbedder_Normalized(t *testing.T) {
	emb := llm.NewHashEmbedder(0)
	assert.Equal(t, 384, emb.Dimension())

	v, err := emb.EmbedQuery(context.Background(), "charts and diagrams of revenue")
	require.NoError(t, err)

	norm := 0.0
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	zero, err := emb.EmbedQuery(context.Background(), "   ")
	require.NoError(t, err)
	for _, x := range zero {
		assert.Zero(t, x)
	}
}
