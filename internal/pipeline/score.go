package pipeline

import (
	"safegraph/pkg/domain"
)

// Scorer computes the weighted quality report for a validated batch and makes
// the gate decision. The overall score is the fixed linear combination of
// completeness, accuracy, and consistency; uniqueness is reported separately.
type Scorer struct {
	weights   domain.Weights
	threshold float64
}

// NewScorer constructs a scorer. The threshold is the maximum tolerated
// excluded-record ratio; the boundary is inclusive on the pass side.
func NewScorer(weights domain.Weights, threshold float64) *Scorer {
	return &Scorer{weights: weights, threshold: threshold}
}

// Score derives the four dimension scores and the gate decision from the
// batch counters and accumulated findings.
func (s *Scorer) Score(batch *Batch) domain.QualityReport {
	shapeFailures, crossFailures := 0, 0
	for _, f := range batch.Findings {
		if f.Severity != domain.SeverityError {
			continue
		}
		switch f.Class {
		case domain.ClassShape:
			shapeFailures++
		case domain.ClassCross:
			crossFailures++
		}
	}

	completeness := ratioOrPerfect(batch.Stats.FilledSlots, batch.Stats.AttributeSlots)
	accuracy := 1 - ratioOrZero(shapeFailures, batch.Stats.ShapeChecks)
	consistency := 1 - ratioOrZero(crossFailures, batch.Stats.CrossChecks)
	uniqueness := 1 - ratioOrZero(batch.Stats.DuplicateMerges, len(batch.Entities)+batch.Stats.DuplicateMerges)

	overall := s.weights.Completeness*completeness +
		s.weights.Accuracy*accuracy +
		s.weights.Consistency*consistency

	excluded := batch.ExcludedCount()
	total := batch.TotalCount()
	ratio := ratioOrZero(excluded, total)

	return domain.QualityReport{
		Completeness:  completeness,
		Accuracy:      accuracy,
		Consistency:   consistency,
		Uniqueness:    uniqueness,
		Overall:       overall,
		Grade:         domain.GradeFor(overall),
		ExcludedCount: excluded,
		TotalCount:    total,
		ErrorRatio:    ratio,
		GatePassed:    ratio <= s.threshold,
	}
}

// Threshold returns the configured gate cutoff.
func (s *Scorer) Threshold() float64 { return s.threshold }

func ratioOrPerfect(num, den int) float64 {
	if den == 0 {
		return 1
	}
	return clamp01(float64(num) / float64(den))
}

func ratioOrZero(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return clamp01(float64(num) / float64(den))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
