package models

import "time"

// MetricsRecord is one row of the evaluation log.
//
// RelevanceKnown is false when no relevant-id set was supplied; the ranking
// metrics are then reported as 0 but mean "undefined", not "wrong".
type MetricsRecord struct {
	Timestamp          time.Time
	Query              string
	GroundTruth        string
	Answer             string
	RetrievedCount     int
	K                  int
	RelevanceKnown     bool
	RecallAtK          float64
	PrecisionAtK       float64
	MRR                float64
	MAPAtK             float64
	NDCGAtK            float64
	SemanticSimilarity float64
	RougeL             float64
	Faithfulness       float64
	RetrievalTimeMS    float64
	GenerationTimeMS   float64
	TotalTimeMS        float64
}
