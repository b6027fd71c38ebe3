// Package vision builds the one-time visual cache of a document: pages that
// hold a chart, diagram or process flow get a natural-language description.
package vision

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
	"github.com/xhad/mrag/pkg/logger"
)

const filterPrompt = "Does this image contain a data visualization, diagram, or process flow chart? Respond ONLY with 'YES' or 'NO'."

func describePrompt(page int) string {
	return "Generate a concise, detailed, and comprehensive text description " +
		"of the image content. Focus on any processes, steps, labels, or structured data found. " +
		fmt.Sprintf("Start your response with 'Figure on Page %d:'", page)
}

type BuilderConfig struct {
	Model  types.Generator
	Pacer  *Pacer
	OnPage func(page, total int) // progress callback
}

type Builder struct {
	config BuilderConfig
}

// Result is the visual cache of one document plus a per-page report.
// Descriptions only holds pages classified as visual.
type Result struct {
	Descriptions map[int]string
	Pages        []models.Outcome
}

func (r *Result) Visuals() []models.VisualDescription {
	out := make([]models.VisualDescription, 0, len(r.Descriptions))
	for page := range r.Pages {
		if desc, ok := r.Descriptions[page]; ok {
			out = append(out, models.VisualDescription{Page: page, Description: desc})
		}
	}
	return out
}

func NewBuilder(config BuilderConfig) *Builder {
	if config.Pacer == nil {
		config.Pacer = NewPacer(PacerConfig{})
	}
	return &Builder{config: config}
}

// Build classifies each page image and describes the visual ones. A failure
// on one page is recorded in its Outcome and never stops the pass; only a
// cancelled context ends it early, leaving the remaining pages unreported.
func (b *Builder) Build(ctx context.Context, images []string) *Result {
	return b.BuildWithProgress(ctx, images, b.config.OnPage)
}

// BuildWithProgress is Build reporting to onPage instead of the configured
// callback.
func (b *Builder) BuildWithProgress(ctx context.Context, images []string, onPage func(page, total int)) *Result {
	result := &Result{
		Descriptions: make(map[int]string),
		Pages:        make([]models.Outcome, 0, len(images)),
	}

	for page, path := range images {
		if ctx.Err() != nil {
			logger.Warn("visual cache pass stopped at page %d: %v", page, ctx.Err())
			break
		}

		outcome := b.page(ctx, page, path)
		if outcome.Status == models.OutcomeOK {
			result.Descriptions[page] = outcome.Text
		}
		if outcome.Failed() {
			logger.Warn("visual cache skipped page %d: %v", page, outcome.Err)
		}
		result.Pages = append(result.Pages, outcome)

		if onPage != nil {
			onPage(page, len(images))
		}
	}

	return result
}

func (b *Builder) page(ctx context.Context, page int, path string) models.Outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		b.config.Pacer.After(ctx, err)
		return models.FailedOutcome(page, fmt.Errorf("failed to read page image: %w", err))
	}
	img := types.Image{MIMEType: http.DetectContentType(data), Data: data}
	if !strings.HasPrefix(img.MIMEType, "image/") {
		b.config.Pacer.After(ctx, errNotImage)
		return models.FailedOutcome(page, fmt.Errorf("%w: %s", errNotImage, img.MIMEType))
	}

	answer, err := b.call(ctx, filterPrompt, img)
	if err != nil {
		return models.FailedOutcome(page, fmt.Errorf("classification failed: %w", err))
	}
	if !strings.Contains(strings.ToUpper(answer), "YES") {
		return models.Outcome{Page: page, Status: models.OutcomeSkipped}
	}

	desc, err := b.call(ctx, describePrompt(page), img)
	if err != nil {
		return models.FailedOutcome(page, fmt.Errorf("description failed: %w", err))
	}
	return models.TextOutcome(page, strings.TrimSpace(desc))
}

// call makes one paced model call.
func (b *Builder) call(ctx context.Context, prompt string, img types.Image) (string, error) {
	if err := b.config.Pacer.Before(ctx); err != nil {
		return "", err
	}
	out, err := b.config.Model.Generate(ctx, prompt, img)
	if perr := b.config.Pacer.After(ctx, err); perr != nil && err == nil {
		err = perr
	}
	return out, err
}

var errNotImage = fmt.Errorf("page image is not a decodable image")
