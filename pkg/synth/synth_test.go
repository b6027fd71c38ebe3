package synth_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
	"github.com/xhad/mrag/pkg/synth"
)

type fakeModel struct {
	reply   string
	err     error
	delay   time.Duration
	prompts []string
}

func (f *fakeModel) Generate(ctx context.Context, prompt string, images ...types.Image) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

var hits = []models.RetrievalHit{
	{ID: 0, Page: 0, Text: "Page 0 chunk 1: Revenue grew from 18 to 83.", Score: 0.9},
	{ID: 4, Page: 2, Text: "VISUAL CACHE: Figure on Page 2: bar chart of revenue", Score: 0.7},
}

func TestPrompt(t *testing.T) {
	p := synth.Prompt("What was the revenue growth?", hits)
	assert.Contains(t, p, "Use ONLY the following context")
	assert.Contains(t, p, "prioritize the details from the 'VISUAL CACHE' entries")
	assert.Contains(t, p, "\n(Page 0) Page 0 chunk 1: Revenue grew from 18 to 83.")
	assert.Contains(t, p, "\n(Page 2) VISUAL CACHE: Figure on Page 2")
	assert.Contains(t, p, "Query:\nWhat was the revenue growth?")
}

func TestAnswer(t *testing.T) {
	model := &fakeModel{reply: "Revenue grew from 18 to 83."}
	s, err := synth.NewWithConfig(synth.SynthesizerConfig{Model: model})
	require.NoError(t, err)

	answer, err := s.Answer(context.Background(), "What was the revenue growth?", hits)
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew from 18 to 83.", answer)
	assert.Len(t, model.prompts, 1)
}

func TestAnswer_Timeout(t *testing.T) {
	model := &fakeModel{reply: "late", delay: time.Second}
	s, err := synth.NewWithConfig(synth.SynthesizerConfig{Model: model, Timeout: 10 * time.Millisecond})
	require.NoError(t, err)

	_, err = s.Answer(context.Background(), "q", hits)
	assert.ErrorIs(t, err, types.ErrGenerationTimeout)
	assert.Len(t, model.prompts, 1)
}

func TestAnswer_NoRetry(t *testing.T) {
	model := &fakeModel{err: fmt.Errorf("%w: 503", types.ErrGeneration)}
	s, err := synth.NewWithConfig(synth.SynthesizerConfig{Model: model})
	require.NoError(t, err)

	_, err = s.Answer(context.Background(), "q", hits)
	assert.ErrorIs(t, err, types.ErrGeneration)
	assert.Len(t, model.prompts, 1)

	_, err = s.Answer(context.Background(), "  ", hits)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestNewWithConfig_NoModel(t *testing.T) {
	_, err := synth.NewWithConfig(synth.SynthesizerConfig{})
	assert.True(t, errors.Is(err, types.ErrInvalidInput))
}
