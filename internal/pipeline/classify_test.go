package pipeline

import (
	"testing"

	"safegraph/pkg/domain"
)

func substanceRecord(name, hazard string) Record {
	return Record{
		TypeHint: "substance",
		Attributes: map[string]any{
			"name":         name,
			"hazard_class": hazard,
		},
		SourceRef: "rows.csv:2",
	}
}

func TestClassifyDerivesDeterministicIDs(t *testing.T) {
	reg := testRegistry(t)
	c := NewClassifier(reg, nil)

	first := &Batch{Records: []Record{substanceRecord("Acetone", "flammable")}}
	c.Classify(first)
	second := &Batch{Records: []Record{substanceRecord("  ACETONE ", "flammable")}}
	c.Classify(second)

	if len(first.Entities) != 1 || len(second.Entities) != 1 {
		t.Fatalf("expected one entity per batch, got %d and %d", len(first.Entities), len(second.Entities))
	}
	if first.Entities[0].ID != second.Entities[0].ID {
		t.Fatalf("ids must be stable under key canonicalization: %q vs %q", first.Entities[0].ID, second.Entities[0].ID)
	}

	other := &Batch{Records: []Record{substanceRecord("Ethanol", "flammable")}}
	c.Classify(other)
	if other.Entities[0].ID == first.Entities[0].ID {
		t.Fatalf("different natural keys must derive different ids")
	}
}

func TestClassifyUsesSubjectIRIAsID(t *testing.T) {
	c := NewClassifier(testRegistry(t), nil)
	batch := &Batch{Records: []Record{{
		TypeHint:   "substance",
		SubjectIRI: "http://example.org/safety#acetone",
		Attributes: map[string]any{"name": "acetone", "hazard_class": "flammable"},
	}}}
	c.Classify(batch)
	if len(batch.Entities) != 1 {
		t.Fatalf("expected one entity")
	}
	if batch.Entities[0].ID != "http://example.org/safety#acetone" {
		t.Fatalf("subject IRI must pass through as id, got %q", batch.Entities[0].ID)
	}
}

func TestClassifyMergesNaturalKeyDuplicates(t *testing.T) {
	c := NewClassifier(testRegistry(t), nil)
	a := substanceRecord("acetone", "flammable")
	b := substanceRecord("acetone", "flammable")
	b.Attributes["ppe_required"] = "gloves"
	b.Attributes["hazard_class"] = "toxic"
	batch := &Batch{Records: []Record{a, b}}
	c.Classify(batch)

	if len(batch.Entities) != 1 {
		t.Fatalf("expected duplicates folded into one entity, got %d", len(batch.Entities))
	}
	merged := batch.Entities[0]
	if merged.Attributes["hazard_class"] != "toxic" {
		t.Fatalf("expected last write to win, got %v", merged.Attributes["hazard_class"])
	}
	if merged.Attributes["ppe_required"] != "gloves" {
		t.Fatalf("expected new attributes merged in")
	}
	if merged.MergedFrom != 1 {
		t.Fatalf("MergedFrom = %d, want 1", merged.MergedFrom)
	}
	if batch.Stats.DuplicateMerges != 1 {
		t.Fatalf("DuplicateMerges = %d, want 1", batch.Stats.DuplicateMerges)
	}
}

func TestClassifyRejectsUnknownAndAmbiguousTypes(t *testing.T) {
	c := NewClassifier(testRegistry(t), nil)
	batch := &Batch{Records: []Record{
		{TypeHint: "reagent", Attributes: map[string]any{"name": "x"}, SourceRef: "rows.csv:2"},
		// "name" alone covers one required attribute of several types equally.
		{Attributes: map[string]any{"name": "x"}, SourceRef: "rows.csv:3"},
	}}
	c.Classify(batch)

	if len(batch.Entities) != 0 {
		t.Fatalf("rejected records must not produce entities")
	}
	if batch.RejectedRecords != 2 {
		t.Fatalf("RejectedRecords = %d, want 2", batch.RejectedRecords)
	}
	rules := map[string]int{}
	for _, f := range batch.Findings {
		rules[f.Rule]++
		if f.Severity != domain.SeverityError || f.Class != domain.ClassShape {
			t.Fatalf("rejection finding must be a shape error: %+v", f)
		}
	}
	if rules[RuleUnknownType] != 1 || rules[RuleAmbiguousType] != 1 {
		t.Fatalf("unexpected rule mix: %v", rules)
	}
	// Each record consumed one type-resolution shape check.
	if batch.Stats.ShapeChecks != 2 {
		t.Fatalf("ShapeChecks = %d, want 2", batch.Stats.ShapeChecks)
	}
}

func TestClassifyInfersTypeFromRequiredCoverage(t *testing.T) {
	c := NewClassifier(testRegistry(t), nil)
	batch := &Batch{Records: []Record{{
		Attributes: map[string]any{
			"title":      "spill response",
			"risk_level": "high",
		},
		SourceRef: "rows.csv:5",
	}}}
	c.Classify(batch)
	if len(batch.Entities) != 1 {
		t.Fatalf("expected inference to classify the record, findings: %v", batch.Findings)
	}
	if batch.Entities[0].Type != domain.EntityAssessment {
		t.Fatalf("inferred %s, want %s", batch.Entities[0].Type, domain.EntityAssessment)
	}
}

func TestClassifyShapeFindingsExcludeEntity(t *testing.T) {
	c := NewClassifier(testRegistry(t), nil)
	batch := &Batch{Records: []Record{{
		TypeHint: "substance",
		Attributes: map[string]any{
			"name":                "mystery",
			"hazard_class":        "radioactive",
			"cas_number":          "not-a-cas",
			"storage_temperature": "9999",
		},
		SourceRef: "rows.csv:7",
	}}}
	c.Classify(batch)

	if len(batch.Entities) != 1 {
		t.Fatalf("shape failures keep the entity in the batch")
	}
	if !batch.Entities[0].Excluded {
		t.Fatalf("entity with shape errors must be excluded")
	}
	rules := map[string]bool{}
	for _, f := range batch.Findings {
		rules[f.Rule] = true
		if f.EntityID != batch.Entities[0].ID {
			t.Fatalf("finding must carry the entity id: %+v", f)
		}
	}
	for _, want := range []string{RuleEnumValue, RuleFormatPattern, RuleNumericRange} {
		if !rules[want] {
			t.Fatalf("missing %s finding, got %v", want, rules)
		}
	}
}

func TestClassifyCountsCompleteness(t *testing.T) {
	c := NewClassifier(testRegistry(t), nil)
	batch := &Batch{Records: []Record{{
		TypeHint:   "container",
		Attributes: map[string]any{"name": "tank-1", "material": "steel", "location": "bay 4"},
		SourceRef:  "rows.csv:9",
	}}}
	c.Classify(batch)

	// two required slots plus the one provided optional
	if batch.Stats.AttributeSlots != 3 {
		t.Fatalf("AttributeSlots = %d, want 3", batch.Stats.AttributeSlots)
	}
	if batch.Stats.FilledSlots != 3 {
		t.Fatalf("FilledSlots = %d, want 3", batch.Stats.FilledSlots)
	}
	if batch.Stats.ShapeChecks == 0 {
		t.Fatalf("expected shape checks counted")
	}
}
