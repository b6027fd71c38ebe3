// Package ocr recovers text from page images with tesseract. Recognition is
// best effort: failures come back as a failed Outcome, never as an error.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/mrag/internal/models"
)

type TesseractConfig struct {
	Command       string
	Lang          string
	MinConfidence int // words below this x_wconf are dropped
	Timeout       time.Duration
}

type Tesseract struct {
	config TesseractConfig
}

func NewWithConfig(config TesseractConfig) *Tesseract {
	if config.Command == "" {
		config.Command = "tesseract"
	}
	if config.Lang == "" {
		config.Lang = "eng"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &Tesseract{config: config}
}

// Recognize runs tesseract in hOCR mode on the image and returns its text.
func (t *Tesseract) Recognize(ctx context.Context, imagePath string, page int) models.Outcome {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.config.Command, imagePath, "stdout", "-l", t.config.Lang, "hocr")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return models.FailedOutcome(page, fmt.Errorf("%s: %v: %s", t.config.Command, err, strings.TrimSpace(stderr.String())))
	}

	text, err := ParseHOCR(&stdout, t.config.MinConfidence)
	if err != nil {
		return models.FailedOutcome(page, err)
	}
	return models.TextOutcome(page, text)
}

// ParseHOCR extracts line-ordered text from tesseract hOCR output, dropping
// words whose confidence is below minConfidence.
func ParseHOCR(r io.Reader, minConfidence int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse hocr: %w", err)
	}

	var lines []string
	doc.Find(".ocr_line, .ocr_caption, .ocr_header, .ocr_textfloat").Each(func(_ int, line *goquery.Selection) {
		var words []string
		line.Find(".ocrx_word").Each(func(_ int, word *goquery.Selection) {
			text := strings.TrimSpace(word.Text())
			if text == "" {
				return
			}
			title, _ := word.Attr("title")
			if confidence(title) < minConfidence {
				return
			}
			words = append(words, text)
		})
		if len(words) > 0 {
			lines = append(lines, strings.Join(words, " "))
		}
	})

	return strings.Join(lines, "\n"), nil
}

// confidence reads x_wconf from an hOCR title such as
// "bbox 10 20 30 40; x_wconf 93". Missing values count as fully confident.
func confidence(title string) int {
	for _, field := range strings.Split(title, ";") {
		field = strings.TrimSpace(field)
		if !strings.HasPrefix(field, "x_wconf") {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(field, "x_wconf")))
		if err != nil {
			return 100
		}
		return v
	}
	return 100
}
