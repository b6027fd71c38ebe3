package models

// OutcomeStatus classifies the result of a best-effort step.
type OutcomeStatus string

const (
	OutcomeOK      OutcomeStatus = "ok"
	OutcomeEmpty   OutcomeStatus = "empty"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is returned by enrichment steps (OCR, visual captioning) that must
// never abort ingestion. Failed outcomes carry the reason in Err; Text is
// always safe to use.
type Outcome struct {
	Page   int
	Status OutcomeStatus
	Text   string
	Err    error
}

func TextOutcome(page int, text string) Outcome {
	if text == "" {
		return Outcome{Page: page, Status: OutcomeEmpty}
	}
	return Outcome{Page: page, Status: OutcomeOK, Text: text}
}

func FailedOutcome(page int, err error) Outcome {
	return Outcome{Page: page, Status: OutcomeFailed, Err: err}
}

func (o Outcome) Failed() bool {
	return o.Status == OutcomeFailed
}
