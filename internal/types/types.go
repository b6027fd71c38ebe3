package types

import (
	"context"

	"github.com/xhad/mrag/internal/models"
)

// Metric is the similarity metric of a vector collection.
type Metric string

const MetricCosine Metric = "cosine"

// Core interfaces
type Extractor interface {
	Extract(ctx context.Context, pdfPath string) (*models.Extraction, error)
}

type OCR interface {
	Recognize(ctx context.Context, imagePath string, page int) models.Outcome
}

// Image is an inline image attached to a generation request.
type Image struct {
	MIMEType string
	Data     []byte
}

type Generator interface {
	Generate(ctx context.Context, prompt string, images ...Image) (string, error)
}

// Embedder is pinned once per process; ingestion and query must share it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, dim int, metric Metric) error
	Upsert(ctx context.Context, name string, vectors []models.StoredVector) error
	Search(ctx context.Context, name string, vector []float32, k int) ([]models.RetrievalHit, error)
	DropCollection(ctx context.Context, name string) error
	Close()
}

type Registry interface {
	Put(ctx context.Context, doc models.Document) error
	Get(ctx context.Context, id string) (models.Document, error)
	List(ctx context.Context) ([]models.Document, error)
	Close() error
}
