// Package pipeline wires the ingestion path (extract, OCR, chunk, visual
// cache, index) and the query path (retrieve, answer, evaluate) together.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
	"github.com/xhad/mrag/pkg/eval"
	"github.com/xhad/mrag/pkg/extractor"
	"github.com/xhad/mrag/pkg/gateway"
	"github.com/xhad/mrag/pkg/logger"
	"github.com/xhad/mrag/pkg/processor"
	"github.com/xhad/mrag/pkg/retriever"
	"github.com/xhad/mrag/pkg/synth"
	"github.com/xhad/mrag/pkg/vision"
)

// Stage names a step of ingestion for progress reporting.
type Stage string

const (
	StageExtract Stage = "extract"
	StageOCR     Stage = "ocr"
	StageVision  Stage = "vision"
	StageIndex   Stage = "index"
)

// ProgressFunc receives per-page progress; done counts completed units.
type ProgressFunc func(stage Stage, done, total int)

type ServiceConfig struct {
	Extractor types.Extractor
	// OCR and Vision are optional enrichment steps.
	OCR       types.OCR
	Vision    *vision.Builder
	Chunker   processor.Processor
	Gateway   *gateway.Gateway
	Registry  types.Registry
	Retriever *retriever.Retriever
	Synth     *synth.Synthesizer
	// Eval is optional; without it queries are not scored.
	Eval      *eval.Engine
	UploadDir string
	NewID     func() string
}

type Service struct {
	config ServiceConfig
}

// IngestResult describes one successful ingestion.
type IngestResult struct {
	Document models.Document
	Pages    int
	OCR      []models.Outcome
	Visual   []models.Outcome
	Chunks   int
}

type QueryRequest struct {
	DocID       string  `json:"doc_id"`
	Query       string  `json:"query"`
	GroundTruth string  `json:"ground_truth,omitempty"`
	RelevantIDs []int64 `json:"relevant_ids,omitempty"`
}

type QueryResponse struct {
	Answer  string                `json:"answer"`
	Context []models.RetrievalHit `json:"context"`
	Metrics models.MetricsRecord  `json:"-"`
}

func NewWithConfig(config ServiceConfig) (*Service, error) {
	switch {
	case config.Extractor == nil:
		return nil, fmt.Errorf("%w: pipeline needs an extractor", types.ErrInvalidInput)
	case config.Gateway == nil:
		return nil, fmt.Errorf("%w: pipeline needs a gateway", types.ErrInvalidInput)
	case config.Registry == nil:
		return nil, fmt.Errorf("%w: pipeline needs a registry", types.ErrInvalidInput)
	case config.Retriever == nil:
		return nil, fmt.Errorf("%w: pipeline needs a retriever", types.ErrInvalidInput)
	case config.Synth == nil:
		return nil, fmt.Errorf("%w: pipeline needs a synthesizer", types.ErrInvalidInput)
	}
	if config.Chunker.Config().ChunkSize == 0 {
		config.Chunker = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 500, ChunkOverlap: 50})
	}
	if config.UploadDir == "" {
		config.UploadDir = "uploads"
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	if err := os.MkdirAll(config.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Service{config: config}, nil
}

func (s *Service) UploadDir() string { return s.config.UploadDir }

// Ingest stores the upload and runs it through the ingestion path. The
// document is registered only after its collection is fully indexed; on any
// failure the saved file is removed and nothing is registered.
func (s *Service) Ingest(ctx context.Context, filename string, r io.Reader, progress ProgressFunc) (*IngestResult, error) {
	if progress == nil {
		progress = func(Stage, int, int) {}
	}

	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: missing file name", types.ErrInvalidInput)
	}

	docID := s.config.NewID()
	path := filepath.Join(s.config.UploadDir, docID+"_"+name)
	if err := saveFile(path, r); err != nil {
		return nil, err
	}

	result, err := s.ingest(ctx, docID, name, path, progress)
	if err != nil {
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			logger.Warn("failed to remove upload %s: %v", path, rerr)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) ingest(ctx context.Context, docID, name, path string, progress ProgressFunc) (*IngestResult, error) {
	start := time.Now()
	logger.Info("ingesting %s as %s", name, docID)

	progress(StageExtract, 0, 1)
	x, err := s.config.Extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	defer extractor.Release(x)
	progress(StageExtract, 1, 1)

	result := &IngestResult{Pages: len(x.Pages)}
	chunks := s.config.Chunker.Chunk(x.Pages)

	if s.config.OCR != nil {
		for page, img := range x.Images {
			outcome := s.config.OCR.Recognize(ctx, img, page)
			if outcome.Failed() {
				logger.Warn("ocr failed on page %d of %s: %v", page, docID, outcome.Err)
			}
			result.OCR = append(result.OCR, outcome)
			chunks = append(chunks, s.config.Chunker.ChunkPage(page, outcome.Text)...)
			progress(StageOCR, page+1, len(x.Images))
		}
	}

	cache := map[int]string{}
	if s.config.Vision != nil {
		visual := s.config.Vision.BuildWithProgress(ctx, x.Images, func(page, total int) {
			progress(StageVision, page+1, total)
		})
		for _, v := range visual.Visuals() {
			chunks = append(chunks, v.Chunk())
		}
		result.Visual = visual.Pages
		cache = visual.Descriptions
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNoContent, name)
	}

	collection := gateway.CollectionName(docID)
	progress(StageIndex, 0, len(chunks))
	if err := s.config.Gateway.Index(ctx, collection, chunks); err != nil {
		return nil, err
	}
	progress(StageIndex, len(chunks), len(chunks))

	doc := models.Document{
		ID:          docID,
		Filename:    name,
		Path:        path,
		Collection:  collection,
		VisualCache: cache,
		CreatedAt:   time.Now(),
	}
	if err := s.config.Registry.Put(ctx, doc); err != nil {
		if derr := s.config.Gateway.Drop(context.WithoutCancel(ctx), collection); derr != nil {
			logger.Warn("failed to drop collection %s: %v", collection, derr)
		}
		return nil, fmt.Errorf("failed to register document: %w", err)
	}

	result.Document = doc
	result.Chunks = len(chunks)
	logger.Info("ingested %s: %d pages, %d chunks, %d visual descriptions in %s",
		docID, result.Pages, result.Chunks, len(cache), time.Since(start).Round(time.Millisecond))
	return result, nil
}

// Query answers req from its document's collection and scores the answer.
// A failure to log metrics never fails the query.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if strings.TrimSpace(req.DocID) == "" || strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: doc_id and query are required", types.ErrInvalidInput)
	}

	start := time.Now()
	hits, err := s.config.Retriever.Retrieve(ctx, req.DocID, req.Query)
	if err != nil {
		return nil, err
	}
	retrievalTime := time.Since(start)

	genStart := time.Now()
	answer, err := s.config.Synth.Answer(ctx, req.Query, hits)
	if err != nil {
		return nil, err
	}
	generationTime := time.Since(genStart)

	resp := &QueryResponse{Answer: answer, Context: hits}
	if s.config.Eval != nil {
		rec, err := s.config.Eval.Record(ctx, eval.Input{
			Query:          req.Query,
			Answer:         answer,
			GroundTruth:    req.GroundTruth,
			Hits:           hits,
			RelevantIDs:    req.RelevantIDs,
			RetrievalTime:  retrievalTime,
			GenerationTime: generationTime,
			TotalTime:      time.Since(start),
		})
		if err != nil {
			logger.Warn("failed to log metrics for query %q: %v", req.Query, err)
		}
		resp.Metrics = rec
	}
	return resp, nil
}

// Documents lists registered documents in registration order.
func (s *Service) Documents(ctx context.Context) ([]models.Document, error) {
	return s.config.Registry.List(ctx)
}

func (s *Service) Document(ctx context.Context, id string) (models.Document, error) {
	return s.config.Registry.Get(ctx, id)
}

func saveFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to save upload: %w", err)
	}
	return nil
}
