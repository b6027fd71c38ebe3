package registry

import (
	"context"
	"fmt"

	"github.com/xhad/mrag/internal/types"
)

type Config struct {
	Type string
	Path string
}

func New(ctx context.Context, config Config) (types.Registry, error) {
	switch config.Type {
	case "", TypeMemory:
		return NewMemory(), nil
	case TypeSQLite:
		if config.Path == "" {
			config.Path = "data/registry.db"
		}
		return OpenSQLite(ctx, config.Path)
	default:
		return nil, fmt.Errorf("%w: unknown registry type %q", types.ErrInvalidInput, config.Type)
	}
}
