package pipeline

import (
	"testing"

	"safegraph/pkg/domain"
)

// classified builds a batch by running the classifier over records so the
// mapper sees realistic entity ids.
func classified(t *testing.T, records ...Record) *Batch {
	t.Helper()
	batch := &Batch{Records: records}
	NewClassifier(testRegistry(t), nil).Classify(batch)
	return batch
}

func containerRecord(name string) Record {
	return Record{
		TypeHint:   "container",
		Attributes: map[string]any{"name": name, "material": "glass"},
		SourceRef:  "rows.csv:3",
	}
}

func findRel(batch *Batch, typ domain.RelationshipType) (domain.Relationship, bool) {
	for _, r := range batch.Relationships {
		if r.Type == typ {
			return r, true
		}
	}
	return domain.Relationship{}, false
}

func TestMapResolvesByTargetKey(t *testing.T) {
	sub := substanceRecord("acetone", "flammable")
	sub.Attributes["container_id"] = "Tank-1"
	batch := classified(t, sub, containerRecord("tank-1"))

	NewMapper(testRegistry(t), true).Map(batch)

	rel, ok := findRel(batch, domain.RelStoredIn)
	if !ok {
		t.Fatalf("expected STORED_IN relationship, findings: %v", batch.Findings)
	}
	if rel.Excluded {
		t.Fatalf("resolved relationship must not be excluded")
	}
	var container domain.Entity
	for _, e := range batch.Entities {
		if e.Type == domain.EntityContainer {
			container = e
		}
	}
	if rel.TargetID != container.ID {
		t.Fatalf("target must resolve to the container id, got %q", rel.TargetID)
	}
}

func TestMapResolvesByEntityID(t *testing.T) {
	batch := classified(t, substanceRecord("acetone", "flammable"), containerRecord("tank-1"))
	var container domain.Entity
	for _, e := range batch.Entities {
		if e.Type == domain.EntityContainer {
			container = e
		}
	}
	for i := range batch.Entities {
		if batch.Entities[i].Type == domain.EntitySubstance {
			batch.Entities[i].Attributes["container_id"] = container.ID
		}
	}

	NewMapper(testRegistry(t), true).Map(batch)

	rel, ok := findRel(batch, domain.RelStoredIn)
	if !ok || rel.TargetID != container.ID {
		t.Fatalf("expected id-based resolution, got %+v", batch.Relationships)
	}
}

func TestMapRetainsBrokenReferences(t *testing.T) {
	sub := substanceRecord("acetone", "flammable")
	sub.Attributes["container_id"] = "no-such-container"
	batch := classified(t, sub)

	NewMapper(testRegistry(t), true).Map(batch)

	rel, ok := findRel(batch, domain.RelStoredIn)
	if !ok {
		t.Fatalf("broken reference must be retained as a relationship")
	}
	if !rel.Excluded || rel.TargetID != "no-such-container" {
		t.Fatalf("broken reference must be excluded with the raw hint, got %+v", rel)
	}
	var found bool
	for _, f := range batch.Findings {
		if f.Rule == RuleBrokenReference {
			found = true
			if f.Class != domain.ClassCross || f.Severity != domain.SeverityError {
				t.Fatalf("broken reference must be a cross error: %+v", f)
			}
		}
	}
	if !found {
		t.Fatalf("missing broken_reference finding")
	}
	if batch.Stats.CrossChecks == 0 {
		t.Fatalf("reference resolution must count as a cross check")
	}
}

func TestMapResolvesPerRelationshipTargetKeys(t *testing.T) {
	// Two relationship defs share the container target but resolve through
	// different attributes; each lookup must use its own target key.
	reg, err := domain.NewRegistry("test",
		[]domain.EntityDef{
			{
				Type:       domain.EntitySubstance,
				Required:   []string{"name", "hazard_class"},
				Optional:   []string{"container_id", "certified_by"},
				NaturalKey: []string{"name"},
			},
			{
				Type:       domain.EntityContainer,
				Required:   []string{"name", "material"},
				Optional:   []string{"serial"},
				NaturalKey: []string{"name"},
			},
		},
		[]domain.RelationshipDef{
			{
				Type:        domain.RelStoredIn,
				Pairs:       []domain.TypePair{{Source: domain.EntitySubstance, Target: domain.EntityContainer}},
				Via:         "container_id",
				TargetKey:   "name",
				Cardinality: domain.CardinalityOne,
			},
			{
				Type:        domain.RelationshipType("CERTIFIED_IN"),
				Pairs:       []domain.TypePair{{Source: domain.EntitySubstance, Target: domain.EntityContainer}},
				Via:         "certified_by",
				TargetKey:   "serial",
				Cardinality: domain.CardinalityMany,
			},
		}, nil, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	sub := substanceRecord("acetone", "flammable")
	sub.Attributes["container_id"] = "tank-1"
	sub.Attributes["certified_by"] = "SER-9"
	tank := Record{
		TypeHint:   "container",
		Attributes: map[string]any{"name": "tank-1", "material": "glass", "serial": "SER-9"},
		SourceRef:  "rows.csv:3",
	}
	batch := &Batch{Records: []Record{sub, tank}}
	NewClassifier(reg, nil).Classify(batch)

	NewMapper(reg, true).Map(batch)

	if fs := findingsByRule(batch, RuleBrokenReference); len(fs) != 0 {
		t.Fatalf("both references resolve against their own target keys, got %v", fs)
	}
	var container domain.Entity
	for _, e := range batch.Entities {
		if e.Type == domain.EntityContainer {
			container = e
		}
	}
	for _, typ := range []domain.RelationshipType{domain.RelStoredIn, "CERTIFIED_IN"} {
		rel, ok := findRel(batch, typ)
		if !ok || rel.Excluded || rel.TargetID != container.ID {
			t.Fatalf("%s must resolve to the container, got %+v", typ, rel)
		}
	}
}

func TestMapDeduplicatesTriples(t *testing.T) {
	sub := substanceRecord("acetone", "flammable")
	sub.Attributes["compatible_with"] = "water; water, water"
	water := substanceRecord("water", "inert")
	batch := classified(t, sub, water)

	NewMapper(testRegistry(t), true).Map(batch)

	count := 0
	for _, r := range batch.Relationships {
		if r.Type == domain.RelCompatibleWith {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("identical triples must deduplicate, got %d", count)
	}
}

func TestMapCardinality(t *testing.T) {
	makeBatch := func() *Batch {
		sub := substanceRecord("acetone", "flammable")
		sub.Attributes["container_id"] = "tank-1, tank-2"
		return classified(t, sub, containerRecord("tank-1"), containerRecord("tank-2"))
	}

	t.Run("strict excludes extras", func(t *testing.T) {
		batch := makeBatch()
		NewMapper(testRegistry(t), true).Map(batch)
		var kept, excluded int
		for _, r := range batch.Relationships {
			if r.Type != domain.RelStoredIn {
				continue
			}
			if r.Excluded {
				excluded++
			} else {
				kept++
			}
		}
		if kept != 1 || excluded != 1 {
			t.Fatalf("strict cardinality: kept=%d excluded=%d, want 1 and 1", kept, excluded)
		}
		var finding *domain.Finding
		for i, f := range batch.Findings {
			if f.Rule == RuleCardinality {
				finding = &batch.Findings[i]
			}
		}
		if finding == nil || finding.Severity != domain.SeverityError {
			t.Fatalf("expected cardinality error finding, got %+v", finding)
		}
	})

	t.Run("lenient warns only", func(t *testing.T) {
		batch := makeBatch()
		NewMapper(testRegistry(t), false).Map(batch)
		for _, r := range batch.Relationships {
			if r.Type == domain.RelStoredIn && r.Excluded {
				t.Fatalf("lenient cardinality must not exclude edges")
			}
		}
		var found bool
		for _, f := range batch.Findings {
			if f.Rule == RuleCardinality && f.Severity == domain.SeverityWarning {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected cardinality warning")
		}
	})
}

func TestReferenceValues(t *testing.T) {
	got := referenceValues(" a, b ; ,c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("referenceValues = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("referenceValues = %v, want %v", got, want)
		}
	}
	if vals := referenceValues(42); vals != nil {
		t.Fatalf("non-string hints must yield nothing, got %v", vals)
	}
}
