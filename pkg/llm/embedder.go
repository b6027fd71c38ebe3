package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/mrag/internal/types"
)

const ProviderHash = "hash"

// EmbedderConfig represents the configuration for the process-wide embedder.
type EmbedderConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string // Ollama server URL
	BatchSize int
	Dimension int // hash provider only
}

// NewEmbedderWithConfig builds the single embedding function shared by
// ingestion, retrieval and evaluation.
func NewEmbedderWithConfig(ctx context.Context, config EmbedderConfig) (types.Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderHash:
		return NewHashEmbedder(config.Dimension), nil
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
		}
		emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		client = emb
	case ProviderGoogleAI:
		if config.APIKey == "" {
			return nil, fmt.Errorf("googleai embedder requires an api key")
		}
		if config.Model == "" {
			config.Model = "embedding-001"
		}
		emb, err := googleai.New(ctx, googleai.WithAPIKey(config.APIKey), googleai.WithDefaultEmbeddingModel(config.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		client = emb
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", config.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return embedder, nil
}
