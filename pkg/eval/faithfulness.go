package eval

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/xhad/mrag/internal/types"
)

const (
	BackendHeuristic = "heuristic"
	BackendGrader    = "grader"
)

// Signals are the grader-independent inputs of the faithfulness fusion, all
// in [0,1]. Semantic is the cosine similarity rescaled from [-1,1].
type Signals struct {
	Lexical  float64
	Semantic float64
	Fuzzy    float64
}

// Weights of the faithfulness fusion. Each set sums to 1.
type Weights struct {
	Semantic float64
	Lexical  float64
	Fuzzy    float64
	Grader   float64
}

var (
	HeuristicWeights = Weights{Lexical: 0.6, Semantic: 0.4}
	GraderWeights    = Weights{Semantic: 0.4, Lexical: 0.3, Fuzzy: 0.2, Grader: 0.1}
)

func (w Weights) Validate() error {
	sum := w.Semantic + w.Lexical + w.Fuzzy + w.Grader
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: faithfulness weights sum to %.3f", types.ErrInvalidInput, sum)
	}
	for _, v := range []float64{w.Semantic, w.Lexical, w.Fuzzy, w.Grader} {
		if v < 0 {
			return fmt.Errorf("%w: negative faithfulness weight", types.ErrInvalidInput)
		}
	}
	return nil
}

// Fuse combines the signals and an optional grade into a score in [0,1].
func (w Weights) Fuse(s Signals, grade float64) float64 {
	return Clip(w.Semantic*s.Semantic+w.Lexical*s.Lexical+w.Fuzzy*s.Fuzzy+w.Grader*grade, 0, 1)
}

// Grader rates how well an answer is supported by its context, in [0,1].
type Grader interface {
	Grade(ctx context.Context, contextText, answer string) (float64, error)
}

const gradePrompt = `You are an evaluator. Given the CONTEXT and the MODEL ANSWER, return a concise numeric faithfulness score between 0 and 1 (1 = fully faithful, 0 = not faithful).

Context:
%s

Answer:
%s

Respond ONLY with a single number between 0 and 1.`

var gradePattern = regexp.MustCompile(`0\.\d+|1\.0|1|0`)

// LLMGrader asks a generative model for the grade.
type LLMGrader struct {
	Model types.Generator
}

func (g *LLMGrader) Grade(ctx context.Context, contextText, answer string) (float64, error) {
	out, err := g.Model.Generate(ctx, fmt.Sprintf(gradePrompt, contextText, answer))
	if err != nil {
		return 0, err
	}
	return ParseGrade(out)
}

// ParseGrade extracts the first score-looking number from a grader reply.
func ParseGrade(reply string) (float64, error) {
	m := gradePattern.FindString(reply)
	if m == "" {
		return 0, fmt.Errorf("no score in grader reply %q", reply)
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse grade %q: %w", m, err)
	}
	return Clip(v, 0, 1), nil
}
