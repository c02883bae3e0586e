package domain

import "fmt"

// Severity captures validation outcomes.
type Severity string

// Finding severities determine storage exclusion and reporting behavior.
const (
	// SeverityError excludes the record from the stored set.
	SeverityError Severity = "error"
	// SeverityWarning is reported but does not exclude.
	SeverityWarning Severity = "warning"
)

// RuleClass buckets a rule for quality scoring: shape rules feed the accuracy
// dimension, cross rules feed the consistency dimension.
type RuleClass string

const (
	// ClassShape covers per-record constraints: presence, enum, range, format.
	ClassShape RuleClass = "shape"
	// ClassCross covers cross-field and cross-entity business constraints.
	ClassCross RuleClass = "cross"
)

// Finding reports a failed validation check against one record.
type Finding struct {
	// RecordRef points at the raw input unit (row number, subject IRI).
	RecordRef string     `json:"record_ref"`
	Rule      string     `json:"rule_id"`
	Class     RuleClass  `json:"class"`
	Severity  Severity   `json:"severity"`
	Message   string     `json:"message"`
	Entity    EntityType `json:"entity,omitempty"`
	// EntityID is set when the finding is attributable to a resolved
	// entity or relationship endpoint.
	EntityID string `json:"entity_id,omitempty"`
}

// Result aggregates findings from rule evaluation.
type Result struct {
	Findings []Finding `json:"findings"`
}

// Merge appends findings from another result.
func (r *Result) Merge(other Result) {
	if len(other.Findings) == 0 {
		return
	}
	r.Findings = append(r.Findings, other.Findings...)
}

// HasErrors returns true if the result contains error-severity findings.
func (r Result) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ErrorIDs returns the set of entity/relationship identifiers carrying an
// error finding. Findings without an entity ID are skipped.
func (r Result) ErrorIDs() map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range r.Findings {
		if f.Severity == SeverityError && f.EntityID != "" {
			out[f.EntityID] = struct{}{}
		}
	}
	return out
}

// CountBySeverity returns the number of findings with the given severity.
func (r Result) CountBySeverity(sev Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// QualityGateError aborts storage for a whole batch whose excluded-record
// ratio exceeds the configured threshold.
type QualityGateError struct {
	Excluded  int
	Total     int
	Ratio     float64
	Threshold float64
}

func (e QualityGateError) Error() string {
	return fmt.Sprintf("quality gate failed: %d/%d records excluded (ratio %.3f > threshold %.3f)",
		e.Excluded, e.Total, e.Ratio, e.Threshold)
}

// StorageError wraps a graph-store transaction failure. Retryable errors may
// be replayed with the same input thanks to idempotent upserts.
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }
