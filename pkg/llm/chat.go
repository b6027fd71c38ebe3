package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/mrag/internal/types"
)

const (
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
)

// ChatConfig represents the configuration for a chat engine. Each engine
// carries its own credentials; engines never share mutable configuration.
type ChatConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	BaseURL     string // Ollama server URL
}

// ChatEngine generates text from prompts with optional inline images.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(ctx context.Context, config ChatConfig) (*ChatEngine, error) {
	config, err := applyChatDefaults(config)
	if err != nil {
		return nil, err
	}

	var model llms.Model
	switch config.Provider {
	case ProviderOllama:
		model, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	case ProviderGoogleAI:
		if config.APIKey == "" {
			return nil, fmt.Errorf("googleai provider requires an api key")
		}
		model, err = googleai.New(ctx, googleai.WithAPIKey(config.APIKey), googleai.WithDefaultModel(config.Model))
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// NewWithModel wraps an already constructed langchaingo model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	config, err := applyChatDefaults(config)
	if err != nil {
		return nil, err
	}
	return &ChatEngine{config: config, llm: model}, nil
}

func applyChatDefaults(config ChatConfig) (ChatConfig, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.Model == "" {
		switch config.Provider {
		case ProviderGoogleAI:
			config.Model = "gemini-2.5-flash"
		default:
			config.Model = "llava"
		}
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return config, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	return config, nil
}

func (ce *ChatEngine) Config() ChatConfig {
	return ce.config
}

// Generate sends one human message made of the prompt followed by the images
// and returns the concatenated text of the first choice.
func (ce *ChatEngine) Generate(ctx context.Context, prompt string, images ...types.Image) (string, error) {
	parts := []llms.ContentPart{llms.TextPart(prompt)}
	for _, img := range images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, llms.BinaryPart(mime, img.Data))
	}

	content := []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: parts},
	}

	opts := []llms.CallOption{llms.WithMaxTokens(ce.config.MaxTokens)}
	if ce.config.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(ce.config.Temperature))
	}

	response, err := ce.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", types.ErrGenerationTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", types.ErrGeneration, err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("%w: empty response", types.ErrGeneration)
	}

	return strings.TrimSpace(response.Choices[0].Content), nil
}
