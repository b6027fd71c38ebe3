package models

import (
	"time"
)

// VisualCacheTag marks chunks that carry a cached description of a chart or diagram.
const VisualCacheTag = "VISUAL CACHE"

type Chunk struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// IsVisual reports whether the chunk came from the visual cache.
func (c Chunk) IsVisual() bool {
	return len(c.Text) >= len(VisualCacheTag) && c.Text[:len(VisualCacheTag)] == VisualCacheTag
}

type VisualDescription struct {
	Page        int
	Description string
}

// Chunk converts the description into a retrievable chunk.
func (v VisualDescription) Chunk() Chunk {
	return Chunk{Page: v.Page, Text: VisualCacheTag + ": " + v.Description}
}

type StoredVector struct {
	ID        int64
	Embedding []float32
	Payload   Chunk
}

type Document struct {
	ID          string         `json:"doc_id"`
	Filename    string         `json:"filename"`
	Path        string         `json:"-"`
	Collection  string         `json:"-"`
	VisualCache map[int]string `json:"-"`
	CreatedAt   time.Time      `json:"-"`
}

type RetrievalHit struct {
	ID    int64   `json:"id"`
	Page  int     `json:"page"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Extraction holds the per-page output of a document extraction run.
// Images[i] is the rasterized form of Pages[i].
type Extraction struct {
	Pages     []string
	Images    []string
	Workspace string
}
