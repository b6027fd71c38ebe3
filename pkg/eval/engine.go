// Package eval scores retrieval and answer quality for each query and keeps
// an append-only log of the results.
package eval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
	"github.com/xhad/mrag/pkg/logger"
)

type EngineConfig struct {
	// Embedder must be the one used for retrieval.
	Embedder types.Embedder
	// Backend selects the faithfulness fusion: heuristic or grader.
	Backend string
	Grader  Grader
	K       int
	Log     *CSVLog
	// GraderTimeout bounds a single grading call.
	GraderTimeout time.Duration
	Now           func() time.Time
}

type Engine struct {
	config EngineConfig
}

// Input is everything known about one answered query. GroundTruth and
// RelevantIDs are optional.
type Input struct {
	Query          string
	Answer         string
	GroundTruth    string
	Hits           []models.RetrievalHit
	RelevantIDs    []int64
	RetrievalTime  time.Duration
	GenerationTime time.Duration
	TotalTime      time.Duration
}

func NewWithConfig(config EngineConfig) (*Engine, error) {
	if config.Embedder == nil {
		return nil, fmt.Errorf("%w: evaluation needs an embedder", types.ErrInvalidInput)
	}
	switch config.Backend {
	case "":
		config.Backend = BackendHeuristic
	case BackendHeuristic:
	case BackendGrader:
		if config.Grader == nil {
			return nil, fmt.Errorf("%w: grader backend needs a grader", types.ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: unknown faithfulness backend %q", types.ErrInvalidInput, config.Backend)
	}
	if config.K <= 0 {
		config.K = 5
	}
	if config.GraderTimeout == 0 {
		config.GraderTimeout = 30 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Engine{config: config}, nil
}

func (e *Engine) Backend() string { return e.config.Backend }

// Evaluate computes every metric for in. It never fails: signals that cannot
// be computed degrade to their defaults.
func (e *Engine) Evaluate(ctx context.Context, in Input) models.MetricsRecord {
	k := e.config.K
	retrieved := make([]int64, len(in.Hits))
	texts := make([]string, len(in.Hits))
	for i, h := range in.Hits {
		retrieved[i] = h.ID
		texts[i] = h.Text
	}

	rec := models.MetricsRecord{
		Timestamp:        e.config.Now(),
		Query:            in.Query,
		GroundTruth:      in.GroundTruth,
		Answer:           in.Answer,
		RetrievedCount:   len(in.Hits),
		K:                k,
		RelevanceKnown:   len(in.RelevantIDs) > 0,
		RecallAtK:        RecallAtK(retrieved, in.RelevantIDs, k),
		PrecisionAtK:     PrecisionAtK(retrieved, in.RelevantIDs, k),
		MRR:              MRR(retrieved, in.RelevantIDs),
		MAPAtK:           AveragePrecisionAtK(retrieved, in.RelevantIDs, k),
		NDCGAtK:          NDCGAtK(retrieved, in.RelevantIDs, k),
		RetrievalTimeMS:  millis(in.RetrievalTime),
		GenerationTimeMS: millis(in.GenerationTime),
		TotalTimeMS:      millis(in.TotalTime),
	}

	if in.GroundTruth != "" {
		rec.SemanticSimilarity = e.SemanticSimilarity(ctx, in.Answer, in.GroundTruth)
		rec.RougeL = RougeL(in.GroundTruth, in.Answer).F1
	}

	contextText := strings.Join(texts, " ")
	if contextText == "" {
		contextText = in.GroundTruth
	}
	rec.Faithfulness = e.Faithfulness(ctx, contextText, in.Answer)

	return rec
}

// Record evaluates in and appends the result to the metrics log. A failed
// append is returned but the record is still valid.
func (e *Engine) Record(ctx context.Context, in Input) (models.MetricsRecord, error) {
	rec := e.Evaluate(ctx, in)
	LogSummary(rec)
	if e.config.Log == nil {
		return rec, nil
	}
	if err := e.config.Log.Append(rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// SemanticSimilarity is the cosine of the two texts' embeddings, in [-1,1].
// Empty input or an embedding failure yields 0.
func (e *Engine) SemanticSimilarity(ctx context.Context, a, b string) float64 {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0
	}
	vecs, err := e.config.Embedder.EmbedDocuments(ctx, []string{a, b})
	if err != nil || len(vecs) != 2 {
		logger.Warn("semantic similarity unavailable: %v", err)
		return 0
	}
	return Clip(Cosine(vecs[0], vecs[1]), -1, 1)
}

// Signals computes the grader-independent faithfulness inputs of answer
// against contextText.
func (e *Engine) Signals(ctx context.Context, contextText, answer string) Signals {
	return Signals{
		Lexical:  RougeL(contextText, answer).F1,
		Semantic: (e.SemanticSimilarity(ctx, contextText, answer) + 1) / 2,
		Fuzzy:    FuzzyRatio(answer, contextText),
	}
}

// Faithfulness estimates how well answer is supported by contextText, in
// [0,1]. With the grader backend a failed grading call falls back to the
// heuristic score.
func (e *Engine) Faithfulness(ctx context.Context, contextText, answer string) float64 {
	if strings.TrimSpace(contextText) == "" || strings.TrimSpace(answer) == "" {
		return 0
	}

	signals := e.Signals(ctx, contextText, answer)
	heuristic := HeuristicWeights.Fuse(signals, 0)
	if e.config.Backend != BackendGrader {
		return heuristic
	}

	gctx, cancel := context.WithTimeout(ctx, e.config.GraderTimeout)
	defer cancel()
	grade, err := e.config.Grader.Grade(gctx, contextText, answer)
	if err != nil {
		logger.Warn("faithfulness grader failed, using heuristic score: %v", err)
		return heuristic
	}
	return GraderWeights.Fuse(signals, grade)
}

// LogSummary prints the headline metrics of one query.
func LogSummary(rec models.MetricsRecord) {
	logger.Section("QUERY EVALUATION METRICS")
	if rec.RelevanceKnown {
		logger.Info("recall@%d: %.3f precision@%d: %.3f mrr: %.3f map@%d: %.3f ndcg@%d: %.3f",
			rec.K, rec.RecallAtK, rec.K, rec.PrecisionAtK, rec.MRR, rec.K, rec.MAPAtK, rec.K, rec.NDCGAtK)
	} else {
		logger.Info("ranking metrics undefined: no relevant ids supplied")
	}
	logger.Info("semantic similarity: %.3f rouge-l: %.3f faithfulness: %.3f",
		rec.SemanticSimilarity, rec.RougeL, rec.Faithfulness)
	logger.Info("retrieval: %.2fms generation: %.2fms total: %.2fms",
		rec.RetrievalTimeMS, rec.GenerationTimeMS, rec.TotalTimeMS)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
