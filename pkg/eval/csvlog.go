package eval

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/xhad/mrag/internal/models"
)

var csvHeader = []string{
	"timestamp",
	"query",
	"ground_truth",
	"retrieved_count",
	"answer",
	"k",
	"recall@k",
	"precision@k",
	"mrr",
	"map@k",
	"ndcg@k",
	"semantic_similarity",
	"rouge_l",
	"faithfulness_score",
	"retrieval_time_ms",
	"generation_time_ms",
	"total_time_ms",
}

// CSVLog is an append-only metrics log. Appends from concurrent queries are
// serialized and existing rows are never rewritten.
type CSVLog struct {
	mu   sync.Mutex
	path string
}

func NewCSVLog(path string) (*CSVLog, error) {
	if path == "" {
		return nil, fmt.Errorf("metrics log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create metrics log directory: %w", err)
	}
	return &CSVLog{path: path}, nil
}

func (l *CSVLog) Path() string { return l.path }

func (l *CSVLog) Append(rec models.MetricsRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open metrics log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat metrics log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write metrics header: %w", err)
		}
	}
	if err := w.Write(row(rec)); err != nil {
		return fmt.Errorf("failed to write metrics row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush metrics log: %w", err)
	}
	return nil
}

func row(r models.MetricsRecord) []string {
	return []string{
		r.Timestamp.Format(time.RFC3339),
		r.Query,
		r.GroundTruth,
		strconv.Itoa(r.RetrievedCount),
		r.Answer,
		strconv.Itoa(r.K),
		ftoa(r.RecallAtK),
		ftoa(r.PrecisionAtK),
		ftoa(r.MRR),
		ftoa(r.MAPAtK),
		ftoa(r.NDCGAtK),
		ftoa(r.SemanticSimilarity),
		ftoa(r.RougeL),
		ftoa(r.Faithfulness),
		ms(r.RetrievalTimeMS),
		ms(r.GenerationTimeMS),
		ms(r.TotalTimeMS),
	}
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func ms(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
