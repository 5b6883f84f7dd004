package rules

import (
	"context"
	"fmt"

	"procodus.dev/silowatch/internal/silo"
)

// Score is the result of an anomaly evaluation.
type Score struct {
	// Value is the raw anomaly score, model-defined.
	Value float64
	// Flagged reports whether the model considers the reading anomalous.
	Flagged bool
}

// Scorer is an optional anomaly-detection capability. A nil Scorer is a
// valid, fully-functional configuration: the pipeline simply skips the check.
type Scorer interface {
	Score(ctx context.Context, r *silo.Reading) (Score, error)
}

// AnomalyDraft folds a flagged anomaly score into one warning alert draft.
func AnomalyDraft(score Score) Draft {
	return Draft{
		Level:   silo.SeverityWarning,
		Message: fmt.Sprintf("Anomalous reading detected (score %.3f)", score.Value),
		Value:   map[string]any{"score": score.Value},
	}
}
