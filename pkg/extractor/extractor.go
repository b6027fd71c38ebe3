// Package extractor pulls per-page plain text and rasterized page images out
// of PDF documents.
package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
	"github.com/xhad/mrag/pkg/logger"
)

// TextReader returns one plain-text string per page, in document order.
type TextReader interface {
	PageTexts(ctx context.Context, pdfPath string) ([]string, error)
}

// Rasterizer renders every page of a PDF into outDir and returns the image
// paths in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error)
}

type ExtractorConfig struct {
	ScratchDir string
	DPI        int
	Text       TextReader
	Raster     Rasterizer
}

type Extractor struct {
	config ExtractorConfig
}

func NewWithConfig(config ExtractorConfig) *Extractor {
	if config.ScratchDir == "" {
		config.ScratchDir = filepath.Join(os.TempDir(), "mrag-extract")
	}
	if config.DPI <= 0 {
		config.DPI = 150
	}
	if config.Text == nil {
		config.Text = PDFTextReader{}
	}
	if config.Raster == nil {
		config.Raster = NewPoppler("")
	}

	return &Extractor{config: config}
}

// Extract reads page texts and renders page images into a workspace owned by
// this run alone, so concurrent extractions never share a directory. The
// caller must Release the extraction when done with the images.
func (e *Extractor) Extract(ctx context.Context, pdfPath string) (*models.Extraction, error) {
	if err := os.MkdirAll(e.config.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	workspace, err := os.MkdirTemp(e.config.ScratchDir, "extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	if err := clearDir(workspace); err != nil {
		os.RemoveAll(workspace)
		return nil, err
	}

	texts, err := e.config.Text.PageTexts(ctx, pdfPath)
	if err != nil {
		os.RemoveAll(workspace)
		return nil, fmt.Errorf("%w: %v", types.ErrDocumentParse, err)
	}

	images, err := e.config.Raster.Rasterize(ctx, pdfPath, workspace, e.config.DPI)
	if err != nil {
		os.RemoveAll(workspace)
		return nil, fmt.Errorf("%w: rasterize: %v", types.ErrDocumentParse, err)
	}
	if len(images) != len(texts) {
		os.RemoveAll(workspace)
		return nil, fmt.Errorf("%w: %d pages of text but %d page images", types.ErrDocumentParse, len(texts), len(images))
	}

	logger.Debug("extracted %d pages from %s into %s", len(texts), filepath.Base(pdfPath), workspace)

	return &models.Extraction{
		Pages:     texts,
		Images:    images,
		Workspace: workspace,
	}, nil
}

// Release removes the workspace of an extraction.
func Release(x *models.Extraction) {
	if x == nil || x.Workspace == "" {
		return
	}
	if err := os.RemoveAll(x.Workspace); err != nil {
		logger.Warn("failed to remove extraction workspace %s: %v", x.Workspace, err)
	}
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read workspace: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to clear workspace: %w", err)
		}
	}
	return nil
}
