package store

import (
	"context"
	"fmt"

	"github.com/xhad/mrag/internal/types"
)

type Config struct {
	Backend  string
	PgVector PgVectorConfig
	Qdrant   QdrantConfig
}

// New opens the configured backend.
func New(ctx context.Context, config Config) (types.VectorStore, error) {
	switch config.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendPgVector:
		return NewPgVectorWithConfig(ctx, config.PgVector)
	case BackendQdrant:
		return NewQdrantWithConfig(config.Qdrant)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", types.ErrInvalidInput, config.Backend)
	}
}
