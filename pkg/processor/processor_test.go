package processor_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/mrag/pkg/processor"
)

func words(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("w%d", i)
	}
	return out
}

func TestProcessor_Chunk(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 4, ChunkOverlap: 1})

	pages := []string{
		"one two three four five six",
		"",
		"Revenue grew from 18 to 83.",
	}

	chunks := p.Chunk(pages)
	require.Len(t, chunks, 4)

	assert.Equal(t, 0, chunks[0].Page)
	assert.Equal(t, "Page 0 chunk 1: one two three four", chunks[0].Text)
	assert.Equal(t, "Page 0 chunk 2: four five six", chunks[1].Text)

	assert.Equal(t, 2, chunks[2].Page)
	assert.Equal(t, "Page 2 chunk 1: Revenue grew from 18", chunks[2].Text)
	assert.Equal(t, "Page 2 chunk 2: 18 to 83.", chunks[3].Text)
}

func TestProcessor_EmptyPage(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})
	assert.Empty(t, p.ChunkPage(3, "   \n\t "))
	assert.Empty(t, p.Chunk(nil))
}

func TestProcessor_Defaults(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})
	assert.Equal(t, 500, p.Config().ChunkSize)
	assert.Equal(t, 0, p.Config().ChunkOverlap)

	p = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: 10})
	assert.Less(t, p.Config().ChunkOverlap, p.Config().ChunkSize)
}

func TestWindows_Overlap(t *testing.T) {
	tests := []struct {
		n, size, overlap int
	}{
		{n: 10, size: 5, overlap: 2},
		{n: 1000, size: 500, overlap: 50},
		{n: 7, size: 3, overlap: 1},
		{n: 3, size: 5, overlap: 2},
		{n: 50, size: 7, overlap: 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n%d_s%d_o%d", tt.n, tt.size, tt.overlap), func(t *testing.T) {
			windows := processor.Windows(tt.n, tt.size, tt.overlap)
			require.NotEmpty(t, windows)

			for i := 1; i < len(windows); i++ {
				prev, cur := windows[i-1], windows[i]
				assert.Equal(t, tt.size-tt.overlap, cur[0]-prev[0])
				if prev[1]-prev[0] == tt.size {
					assert.Equal(t, tt.overlap, prev[1]-cur[0])
				}
			}
			for _, w := range windows {
				if w[1] < tt.n {
					assert.Equal(t, tt.size, w[1]-w[0])
				} else {
					assert.LessOrEqual(t, w[1]-w[0], tt.size)
				}
			}
		})
	}
}

func TestWindows_Coverage(t *testing.T) {
	for _, tt := range []struct{ n, size, overlap int }{
		{10, 5, 2}, {23, 4, 3}, {1, 5, 1}, {100, 10, 0},
	} {
		tokens := words(tt.n)
		windows := processor.Windows(tt.n, tt.size, tt.overlap)

		var rebuilt []string
		covered := 0
		for _, w := range windows {
			from := w[0]
			if covered > from {
				from = covered
			}
			rebuilt = append(rebuilt, tokens[from:w[1]]...)
			covered = w[1]
		}

		assert.Equal(t, tokens, rebuilt)
	}
}

func TestWindows_Empty(t *testing.T) {
	assert.Nil(t, processor.Windows(0, 5, 1))
}

func TestProcessor_InvalidUTF8(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 10})
	chunks := p.ChunkPage(0, "valid \xff text")
	require.Len(t, chunks, 1)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "valid text"))
}
