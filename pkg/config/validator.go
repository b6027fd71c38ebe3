package config

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/xhad/mrag/pkg/logger"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	llmProviders      = map[string]bool{"ollama": true, "googleai": true}
	embedderProviders = map[string]bool{"ollama": true, "googleai": true, "hash": true}
	storeBackends     = map[string]bool{"memory": true, "pgvector": true, "qdrant": true}
	registryTypes     = map[string]bool{"memory": true, "sqlite": true}
	evalBackends      = map[string]bool{"heuristic": true, "grader": true}
)

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, message string) {
		errors = append(errors, ValidationError{Field: field, Message: message})
	}

	// Validate server config
	if p, err := strconv.Atoi(c.Server.Port); err != nil || p < 1 || p > 65535 {
		add("server.port", "port must be a number between 1 and 65535")
	}
	if c.Server.MaxUploadMB < 1 {
		add("server.max_upload_mb", "max_upload_mb must be positive")
	}

	// Validate LLM config
	if !llmProviders[c.LLM.Provider] {
		add("llm.provider", fmt.Sprintf("unknown provider %q", c.LLM.Provider))
	}
	if c.LLM.Provider == "googleai" {
		if c.LLM.Text.APIKey == "" {
			add("llm.text.api_key", "text model API key is required (GEMINI_API_NEW)")
		}
		if c.LLM.Vision.APIKey == "" && !c.Vision.Disabled {
			add("llm.vision.api_key", "vision model API key is required (GEMINI_API)")
		}
	}
	if c.LLM.Provider == "ollama" {
		if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
			add("llm.base_url", "invalid Ollama base URL")
		}
	}
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 65536 {
		add("llm.max_tokens", "max_tokens must be between 1 and 65536")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		add("llm.temperature", "temperature must be between 0 and 1")
	}
	if c.LLM.GenerationTimeout < 0 {
		add("llm.generation_timeout", "generation_timeout must not be negative")
	}

	// Validate embedder config
	if !embedderProviders[c.Embedder.Provider] {
		add("embedder.provider", fmt.Sprintf("unknown provider %q", c.Embedder.Provider))
	}
	if c.Embedder.Provider == "googleai" && c.Embedder.APIKey == "" {
		add("embedder.api_key", "embedding API key is required")
	}
	if c.Embedder.Dimension < 0 {
		add("embedder.dimension", "dimension must not be negative")
	}

	// Validate store config
	if !storeBackends[c.Store.Backend] {
		add("store.backend", fmt.Sprintf("unknown backend %q", c.Store.Backend))
	}
	if c.Store.Backend == "pgvector" && c.Store.DatabaseURL == "" {
		add("store.database_url", "database URL is required for pgvector (DATABASE_URL)")
	}
	if c.Store.Backend == "qdrant" {
		if _, err := url.ParseRequestURI(c.Store.QdrantURL); err != nil {
			add("store.qdrant_url", "valid Qdrant URL is required for qdrant (QDRANT_URL)")
		}
	}

	if !registryTypes[c.Registry.Type] {
		add("registry.type", fmt.Sprintf("unknown registry type %q", c.Registry.Type))
	}

	// Validate processor config
	if c.Processor.ChunkSize < 1 {
		add("processor.chunk_size", "chunk_size must be positive")
	}
	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		add("processor.chunk_overlap", "chunk_overlap must be non-negative and less than chunk_size")
	}

	if c.Extractor.DPI < 1 {
		add("extractor.dpi", "dpi must be positive")
	}

	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence > 100 {
		add("ocr.min_confidence", "min_confidence must be between 0 and 100")
	}

	if c.Vision.CallDelay < 0 || c.Vision.ErrorDelay < 0 {
		add("vision", "delays must not be negative")
	}
	if c.Vision.RequestsPerMinute < 0 {
		add("vision.requests_per_minute", "requests_per_minute must not be negative")
	}

	if c.Retrieval.TopK < 1 {
		add("retrieval.top_k", "top_k must be positive")
	}

	if !evalBackends[c.Eval.Backend] {
		add("eval.backend", fmt.Sprintf("unknown faithfulness backend %q", c.Eval.Backend))
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		add("log.level", err.Error())
	}

	return errors
}
