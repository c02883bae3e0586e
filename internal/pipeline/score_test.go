package pipeline

import (
	"math"
	"testing"

	"safegraph/pkg/domain"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScorePerfectBatch(t *testing.T) {
	batch := &Batch{
		Entities: []domain.Entity{{Base: domain.Base{ID: "a"}}, {Base: domain.Base{ID: "b"}}},
		Stats: BatchStats{
			AttributeSlots: 10,
			FilledSlots:    10,
			ShapeChecks:    6,
			CrossChecks:    4,
		},
	}
	report := NewScorer(domain.DefaultWeights(), 0.10).Score(batch)

	for name, got := range map[string]float64{
		"completeness": report.Completeness,
		"accuracy":     report.Accuracy,
		"consistency":  report.Consistency,
		"uniqueness":   report.Uniqueness,
		"overall":      report.Overall,
	} {
		if !almost(got, 1) {
			t.Fatalf("%s = %g, want 1", name, got)
		}
	}
	if report.Grade != domain.GradeExcellent {
		t.Fatalf("grade = %s, want excellent", report.Grade)
	}
	if !report.GatePassed || report.ErrorRatio != 0 {
		t.Fatalf("clean batch must pass the gate: %+v", report)
	}
}

func TestScoreDimensionArithmetic(t *testing.T) {
	batch := &Batch{
		Entities: []domain.Entity{
			{Base: domain.Base{ID: "a"}},
			{Base: domain.Base{ID: "b"}, Excluded: true},
			{Base: domain.Base{ID: "c"}},
		},
		Findings: []domain.Finding{
			{Class: domain.ClassShape, Severity: domain.SeverityError},
			{Class: domain.ClassShape, Severity: domain.SeverityWarning},
			{Class: domain.ClassCross, Severity: domain.SeverityError},
			{Class: domain.ClassCross, Severity: domain.SeverityError},
		},
		Stats: BatchStats{
			AttributeSlots:  20,
			FilledSlots:     15,
			ShapeChecks:     10,
			CrossChecks:     8,
			DuplicateMerges: 1,
		},
	}
	report := NewScorer(domain.DefaultWeights(), 0.10).Score(batch)

	if !almost(report.Completeness, 0.75) {
		t.Fatalf("completeness = %g, want 0.75", report.Completeness)
	}
	// One shape error out of ten checks; the warning does not count.
	if !almost(report.Accuracy, 0.9) {
		t.Fatalf("accuracy = %g, want 0.9", report.Accuracy)
	}
	if !almost(report.Consistency, 0.75) {
		t.Fatalf("consistency = %g, want 0.75", report.Consistency)
	}
	if !almost(report.Uniqueness, 0.75) {
		t.Fatalf("uniqueness = %g, want 0.75", report.Uniqueness)
	}
	want := 0.3*0.75 + 0.4*0.9 + 0.3*0.75
	if !almost(report.Overall, want) {
		t.Fatalf("overall = %g, want %g", report.Overall, want)
	}
	if report.Grade != domain.GradeGood {
		t.Fatalf("grade = %s, want good", report.Grade)
	}
}

func TestScoreEmptyBatch(t *testing.T) {
	report := NewScorer(domain.DefaultWeights(), 0.10).Score(&Batch{})
	if !almost(report.Completeness, 1) || !almost(report.Accuracy, 1) || !almost(report.Consistency, 1) || !almost(report.Uniqueness, 1) {
		t.Fatalf("empty denominators must score perfect: %+v", report)
	}
	if !report.GatePassed {
		t.Fatalf("empty batch must pass the gate")
	}
}

func TestGateBoundaryIsInclusive(t *testing.T) {
	// 1 excluded of 10 at threshold 0.10 sits exactly on the boundary.
	batch := &Batch{Entities: make([]domain.Entity, 10)}
	for i := range batch.Entities {
		batch.Entities[i].ID = string(rune('a' + i))
	}
	batch.Entities[0].Excluded = true

	report := NewScorer(domain.DefaultWeights(), 0.10).Score(batch)
	if !report.GatePassed {
		t.Fatalf("ratio equal to the threshold must pass, got %+v", report)
	}

	batch.Entities[1].Excluded = true
	report = NewScorer(domain.DefaultWeights(), 0.10).Score(batch)
	if report.GatePassed {
		t.Fatalf("ratio above the threshold must fail, got %+v", report)
	}
}

func TestGateCountsRejectedRecordsAndRelationships(t *testing.T) {
	batch := &Batch{
		Entities: []domain.Entity{{Base: domain.Base{ID: "a"}}},
		Relationships: []domain.Relationship{
			{Type: domain.RelStoredIn, SourceID: "a", TargetID: "missing", Excluded: true},
		},
		RejectedRecords: 1,
	}
	report := NewScorer(domain.DefaultWeights(), 0.10).Score(batch)
	if report.TotalCount != 3 {
		t.Fatalf("TotalCount = %d, want 3", report.TotalCount)
	}
	if report.ExcludedCount != 2 {
		t.Fatalf("ExcludedCount = %d, want 2", report.ExcludedCount)
	}
	if report.GatePassed {
		t.Fatalf("two of three excluded must fail the default gate")
	}
}
