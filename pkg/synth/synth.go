// Package synth turns retrieved chunks and a question into an answer.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
)

const promptTemplate = `You are a helpful assistant and expert document analyst.
Use ONLY the following context to answer the user's query.
The context includes standard text chunks and cached visual descriptions.
If the answer relies on numerical data or diagrams, prioritize the details from the '%s' entries.
If the context does not contain the answer, say so.

Context:
%s

Query:
%s
`

type SynthesizerConfig struct {
	Model   types.Generator
	Timeout time.Duration
}

type Synthesizer struct {
	config SynthesizerConfig
}

func NewWithConfig(config SynthesizerConfig) (*Synthesizer, error) {
	if config.Model == nil {
		return nil, fmt.Errorf("%w: synthesizer needs a model", types.ErrInvalidInput)
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &Synthesizer{config: config}, nil
}

// ContextText renders hits the way they appear in the prompt, one
// "(Page p) text" line per hit.
func ContextText(hits []models.RetrievalHit) string {
	var sb strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&sb, "\n(Page %d) %s", h.Page, h.Text)
	}
	return sb.String()
}

func Prompt(query string, hits []models.RetrievalHit) string {
	return fmt.Sprintf(promptTemplate, models.VisualCacheTag, ContextText(hits), query)
}

// Answer makes a single generation call bounded by the configured timeout.
// There is no retry.
func (s *Synthesizer) Answer(ctx context.Context, query string, hits []models.RetrievalHit) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: query is empty", types.ErrInvalidInput)
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	answer, err := s.config.Model.Generate(ctx, Prompt(query, hits))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, types.ErrGenerationTimeout) {
			return "", fmt.Errorf("%w: %w", types.ErrGenerationTimeout, err)
		}
		return "", err
	}
	return answer, nil
}
