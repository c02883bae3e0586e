package domain

import "fmt"

// Grade buckets an overall quality score into threshold bands.
type Grade string

const (
	GradeExcellent  Grade = "excellent"
	GradeGood       Grade = "good"
	GradeAcceptable Grade = "acceptable"
	GradePoor       Grade = "poor"
)

// GradeFor maps an overall score in [0,1] to its grade band.
func GradeFor(score float64) Grade {
	switch {
	case score >= 0.90:
		return GradeExcellent
	case score >= 0.75:
		return GradeGood
	case score >= 0.60:
		return GradeAcceptable
	default:
		return GradePoor
	}
}

// Weights is the linear combination applied to the dimension scores. The
// default mirrors the fixed 0.3/0.4/0.3 formula; uniqueness is reported
// separately and never enters the weighted overall.
type Weights struct {
	Completeness float64 `json:"completeness" yaml:"completeness"`
	Accuracy     float64 `json:"accuracy" yaml:"accuracy"`
	Consistency  float64 `json:"consistency" yaml:"consistency"`
}

// DefaultWeights returns the fixed default combination.
func DefaultWeights() Weights {
	return Weights{Completeness: 0.3, Accuracy: 0.4, Consistency: 0.3}
}

const weightsEpsilon = 1e-9

// Validate rejects negative weights and weight sets that do not sum to 1.
func (w Weights) Validate() error {
	if w.Completeness < 0 || w.Accuracy < 0 || w.Consistency < 0 {
		return fmt.Errorf("quality weights must be non-negative")
	}
	sum := w.Completeness + w.Accuracy + w.Consistency
	if sum < 1-weightsEpsilon || sum > 1+weightsEpsilon {
		return fmt.Errorf("quality weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// QualityReport is the immutable, batch-scoped scoring artifact. The overall
// score is the fixed linear combination of completeness, accuracy, and
// consistency computed by the scorer; it is never recomputed post-hoc.
type QualityReport struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Consistency  float64 `json:"consistency"`
	Uniqueness   float64 `json:"uniqueness"`
	Overall      float64 `json:"overall"`
	Grade        Grade   `json:"grade"`

	ExcludedCount int     `json:"excluded_count"`
	TotalCount    int     `json:"total_count"`
	ErrorRatio    float64 `json:"error_ratio"`
	// GatePassed is true when the error ratio does not exceed the
	// configured threshold (boundary inclusive on the pass side).
	GatePassed bool `json:"gate_passed"`
}
