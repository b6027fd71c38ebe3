package extractor

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFTextReader extracts page text with ledongthuc/pdf.
type PDFTextReader struct{}

func (PDFTextReader) PageTexts(ctx context.Context, pdfPath string) (texts []string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			texts = nil
			err = fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	texts = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// text layer unreadable; OCR still sees the page image
			texts = append(texts, "")
			continue
		}
		texts = append(texts, text)
	}

	return texts, nil
}
