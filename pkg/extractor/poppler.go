package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Poppler renders pages with the pdftoppm binary.
type Poppler struct {
	command string
}

func NewPoppler(command string) *Poppler {
	if command == "" {
		command = "pdftoppm"
	}
	return &Poppler{command: command}
}

func (p *Poppler) Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error) {
	prefix := filepath.Join(outDir, "page")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.command, "-r", strconv.Itoa(dpi), "-png", pdfPath, prefix)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %v: %s", p.command, err, strings.TrimSpace(stderr.String()))
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}

	return sortPageImages(matches), nil
}

// sortPageImages orders pdftoppm outputs by page number; the tool zero-pads
// page numbers to the width of the page count, so lexical order is not enough
// across runs with different counts.
func sortPageImages(paths []string) []string {
	sorted := append([]string(nil), paths...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return pageNumber(sorted[i]) < pageNumber(sorted[j])
	})
	return sorted
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
