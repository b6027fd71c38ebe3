// Package store holds the vector store backends. Each collection keeps one
// document's chunk vectors; every backend measures cosine similarity and
// returns hits ordered by score, best first, with ties broken by id.
package store

import (
	"fmt"
	"math"
	"sort"

	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
)

const (
	BackendMemory   = "memory"
	BackendPgVector = "pgvector"
	BackendQdrant   = "qdrant"
)

// SortHits orders hits by descending score, then ascending id.
func SortHits(hits []models.RetrievalHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

func checkMetric(metric types.Metric) error {
	if metric != "" && metric != types.MetricCosine {
		return fmt.Errorf("%w: unsupported metric %q", types.ErrInvalidInput, metric)
	}
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
