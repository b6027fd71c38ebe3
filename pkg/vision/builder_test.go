package vision_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
	"github.com/xhad/mrag/pkg/vision"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n")

// scriptedModel answers the classification prompt per image payload and
// counts every call it receives.
type scriptedModel struct {
	mu        sync.Mutex
	visual    map[string]bool
	failOn    map[string]bool
	classify  int
	describes []string
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string, images ...types.Image) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := string(images[0].Data[len(pngHeader):])
	if m.failOn[key] {
		return "", errors.New("429 resource exhausted")
	}
	if strings.HasPrefix(prompt, "Does this image") {
		m.classify++
		if m.visual[key] {
			return "Yes.", nil
		}
		return "NO", nil
	}
	m.describes = append(m.describes, key)
	return "Figure on Page: a bar chart of " + key, nil
}

func writePages(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name+".png")
		require.NoError(t, os.WriteFile(paths[i], append(append([]byte{}, pngHeader...), name...), 0o644))
	}
	return paths
}

func TestBuild_DescribesOnlyVisualPages(t *testing.T) {
	model := &scriptedModel{visual: map[string]bool{"chart": true}}
	b := vision.NewBuilder(vision.BuilderConfig{Model: model})

	result := b.Build(context.Background(), writePages(t, "prose", "chart", "table"))

	assert.Equal(t, 3, model.classify)
	assert.Equal(t, []string{"chart"}, model.describes)
	require.Len(t, result.Descriptions, 1)
	assert.Contains(t, result.Descriptions[1], "bar chart of chart")

	require.Len(t, result.Pages, 3)
	assert.Equal(t, models.OutcomeSkipped, result.Pages[0].Status)
	assert.Equal(t, models.OutcomeOK, result.Pages[1].Status)
	assert.Equal(t, models.OutcomeSkipped, result.Pages[2].Status)

	visuals := result.Visuals()
	require.Len(t, visuals, 1)
	assert.Equal(t, 1, visuals[0].Page)
	assert.True(t, visuals[0].Chunk().IsVisual())
}

func TestBuild_SwallowsPageFailures(t *testing.T) {
	model := &scriptedModel{
		visual: map[string]bool{"chart": true, "flow": true},
		failOn: map[string]bool{"chart": true},
	}
	b := vision.NewBuilder(vision.BuilderConfig{Model: model})

	paths := writePages(t, "chart", "flow")
	paths = append(paths, filepath.Join(t.TempDir(), "missing.png"))

	result := b.Build(context.Background(), paths)

	require.Len(t, result.Pages, 3)
	assert.True(t, result.Pages[0].Failed())
	assert.Equal(t, models.OutcomeOK, result.Pages[1].Status)
	assert.True(t, result.Pages[2].Failed())
	assert.Equal(t, []int{1}, keys(result.Descriptions))
}

func TestBuild_RejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.png")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not an image"), 0o644))

	model := &scriptedModel{}
	result := vision.NewBuilder(vision.BuilderConfig{Model: model}).Build(context.Background(), []string{path})

	require.Len(t, result.Pages, 1)
	assert.True(t, result.Pages[0].Failed())
	assert.Zero(t, model.classify)
}

func TestBuild_Pacing(t *testing.T) {
	var delays []time.Duration
	pacer := vision.NewPacer(vision.PacerConfig{CallDelay: 8 * time.Second, ErrorDelay: 5 * time.Second}).
		WithSleep(func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		})

	model := &scriptedModel{
		visual: map[string]bool{"chart": true},
		failOn: map[string]bool{"broken": true},
	}
	var progress []int
	b := vision.NewBuilder(vision.BuilderConfig{
		Model:  model,
		Pacer:  pacer,
		OnPage: func(page, total int) { progress = append(progress, page) },
	})

	b.Build(context.Background(), writePages(t, "chart", "prose", "broken"))

	// chart: classify + describe, prose: classify, broken: one failed call
	assert.Equal(t, []time.Duration{8 * time.Second, 8 * time.Second, 8 * time.Second, 5 * time.Second}, delays)
	assert.Equal(t, []int{0, 1, 2}, progress)
}

func TestBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{}
	result := vision.NewBuilder(vision.BuilderConfig{Model: model}).Build(ctx, writePages(t, "chart"))
	assert.Empty(t, result.Pages)
	assert.Zero(t, model.classify)
}

func keys(m map[int]string) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
