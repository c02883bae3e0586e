// Package pipeline implements the five-stage transformation from raw safety
// records to a validated, quality-gated knowledge graph: normalize, classify,
// map relationships, validate, score. Stages run strictly sequentially within
// one batch; batches may run in parallel.
package pipeline

import (
	"fmt"

	"safegraph/pkg/domain"
)

// Unit is one raw input record: a tabular row or an ontology subject with its
// predicate/object pairs. Format-specific parsing happens upstream; the
// pipeline only sees units.
type Unit interface {
	normalize(n *Normalizer) (Record, error)
}

// RawRow is one tabular row with its header. Cell i belongs to header i.
type RawRow struct {
	Headers   []string
	Cells     []string
	SourceRef string
}

func (r RawRow) normalize(n *Normalizer) (Record, error) { return n.Row(r) }

// PredicateObject is one predicate/object pair of an ontology subject.
type PredicateObject struct {
	Predicate string
	Object    string
}

// RawSubject is one ontology subject and its predicate/object pairs, already
// parsed out of the source file by an upstream collaborator.
type RawSubject struct {
	Subject   string
	Class     string
	Pairs     []PredicateObject
	SourceRef string
}

func (s RawSubject) normalize(n *Normalizer) (Record, error) { return n.Subject(s) }

// Record is the canonical, type-tagged unit every later stage consumes.
type Record struct {
	// TypeHint is the explicitly declared entity type, empty when the
	// classifier must infer one.
	TypeHint string
	// SubjectIRI carries the ontology subject identifier when the record
	// came from a triple source; it becomes the entity id directly.
	SubjectIRI string
	Attributes map[string]any
	SourceRef  string
}

// NormalizationError reports a malformed raw unit. The unit is skipped and
// logged; it never aborts the batch.
type NormalizationError struct {
	SourceRef string
	Reason    string
}

func (e NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %s", e.SourceRef, e.Reason)
}

// BatchStats accumulates the counters the quality scorer consumes. Stages
// increment checks as they run; failures are recovered from findings.
type BatchStats struct {
	// AttributeSlots and FilledSlots drive the completeness score. A slot is
	// a required attribute, or an optional attribute the record provided;
	// omitted optionals do not count.
	AttributeSlots int `json:"attribute_slots"`
	FilledSlots    int `json:"filled_slots"`
	// ShapeChecks counts presence/enum/range/format evaluations (accuracy).
	ShapeChecks int `json:"shape_checks"`
	// CrossChecks counts reference, cardinality, conditional, and business
	// rule evaluations (consistency).
	CrossChecks int `json:"cross_checks"`
	// DuplicateMerges counts natural-key collisions folded into an
	// existing entity (uniqueness).
	DuplicateMerges int `json:"duplicate_merges"`
}

// Batch carries the accumulated state of one pipeline run between stages.
type Batch struct {
	ID            string
	Records       []Record
	Entities      []domain.Entity
	Relationships []domain.Relationship
	Findings      []domain.Finding
	Stats         BatchStats
	// RejectedRecords counts records that could not be classified at all
	// (no entity was produced); they still count toward the gate ratio.
	RejectedRecords int
	// SkippedUnits counts malformed raw units dropped by the normalizer.
	SkippedUnits int
}

// AddFindings appends findings to the batch.
func (b *Batch) AddFindings(fs ...domain.Finding) {
	b.Findings = append(b.Findings, fs...)
}

// TotalCount is the gate denominator: classified entities, unclassifiable
// records, and mapped relationships.
func (b *Batch) TotalCount() int {
	return len(b.Entities) + b.RejectedRecords + len(b.Relationships)
}

// ExcludedCount is the gate numerator: records carrying error findings.
func (b *Batch) ExcludedCount() int {
	n := b.RejectedRecords
	for _, e := range b.Entities {
		if e.Excluded {
			n++
		}
	}
	for _, r := range b.Relationships {
		if r.Excluded {
			n++
		}
	}
	return n
}

// View returns a read-only rule-evaluation view over the batch.
func (b *Batch) View() domain.BatchView {
	idx := make(map[string]int, len(b.Entities))
	for i, e := range b.Entities {
		idx[e.ID] = i
	}
	return batchView{batch: b, index: idx}
}

type batchView struct {
	batch *Batch
	index map[string]int
}

func (v batchView) Entities() []domain.Entity {
	return append([]domain.Entity(nil), v.batch.Entities...)
}

func (v batchView) Relationships() []domain.Relationship {
	return append([]domain.Relationship(nil), v.batch.Relationships...)
}

func (v batchView) FindEntity(id string) (domain.Entity, bool) {
	i, ok := v.index[id]
	if !ok {
		return domain.Entity{}, false
	}
	return v.batch.Entities[i], true
}
