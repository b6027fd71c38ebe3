package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xhad/mrag/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int // words per chunk
	ChunkOverlap int // words shared by consecutive chunks
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 500
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	// overlap must stay below size or the window never advances
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 10
	}

	return Processor{
		config: config,
	}
}

func (p *Processor) Config() ProcessorConfig {
	return p.config
}

// Chunk splits page texts into overlapping, page-tagged chunks. pages[i] is
// the text of page i. Empty pages yield no chunks.
func (p *Processor) Chunk(pages []string) []models.Chunk {
	var chunks []models.Chunk

	for page, text := range pages {
		chunks = append(chunks, p.ChunkPage(page, text)...)
	}

	return chunks
}

// ChunkPage chunks the text of a single page.
func (p *Processor) ChunkPage(page int, text string) []models.Chunk {
	words := strings.Fields(sanitizeUTF8(text))
	windows := Windows(len(words), p.config.ChunkSize, p.config.ChunkOverlap)

	chunks := make([]models.Chunk, 0, len(windows))
	for i, w := range windows {
		chunks = append(chunks, models.Chunk{
			Page: page,
			Text: fmt.Sprintf("Page %d chunk %d: %s", page, i+1, strings.Join(words[w[0]:w[1]], " ")),
		})
	}

	return chunks
}

// Windows returns the [start, end) token ranges for n tokens. Windows start
// at 0, size-overlap, 2*(size-overlap), ... while the start is below n; the
// last window may be shorter than size.
func Windows(n, size, overlap int) [][2]int {
	if n <= 0 || size <= 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var windows [][2]int
	for start := 0; start < n; start += step {
		end := start + size
		if end > n {
			end = n
		}
		windows = append(windows, [2]int{start, end})
	}

	return windows
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		return strings.ToValidUTF8(s, "")
	}
	return s
}
