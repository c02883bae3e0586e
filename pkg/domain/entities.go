// Package domain defines the core graph entities, validation findings, and
// rule evaluation primitives used by safegraph.
package domain

import "time"

// EntityType identifies the type of record flowing through the pipeline and
// stored as a graph node.
type EntityType string

// Supported entity type identifiers used in findings and persistence buckets.
const (
	// EntitySubstance identifies a chemical substance record.
	EntitySubstance EntityType = "substance"
	// EntityContainer identifies a storage container record.
	EntityContainer EntityType = "container"
	// EntityTest identifies a safety test record.
	EntityTest EntityType = "test"
	// EntityAssessment identifies a risk assessment record.
	EntityAssessment EntityType = "assessment"
)

// RelationshipType identifies a typed edge between two entities.
type RelationshipType string

// Supported relationship type identifiers.
const (
	RelStoredIn         RelationshipType = "STORED_IN"
	RelTestedWith       RelationshipType = "TESTED_WITH"
	RelAssessedFor      RelationshipType = "ASSESSED_FOR"
	RelCompatibleWith   RelationshipType = "COMPATIBLE_WITH"
	RelIncompatibleWith RelationshipType = "INCOMPATIBLE_WITH"
)

// Base contains common fields for all graph records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entity is a classified record produced by the pipeline. Its ID is derived
// deterministically from the natural key declared for its type, or taken from
// an ontology subject IRI; two records normalizing to the same natural key
// merge into one entity rather than duplicating.
type Entity struct {
	Base
	Type       EntityType     `json:"type"`
	Attributes map[string]any `json:"attributes"`
	SourceRef  string         `json:"source_ref"`
	// MergedFrom counts raw records folded into this entity beyond the
	// first. Feeds the uniqueness score.
	MergedFrom int `json:"merged_from,omitempty"`
	// Excluded marks the entity as carrying an error finding; excluded
	// records stay in the batch for reporting but are never stored.
	Excluded bool `json:"excluded,omitempty"`
}

// Attr returns the named attribute and whether it is present.
func (e Entity) Attr(name string) (any, bool) {
	v, ok := e.Attributes[name]
	return v, ok
}

// StringAttr returns the named attribute as a string, or "" when absent or
// not a string.
func (e Entity) StringAttr(name string) string {
	if v, ok := e.Attributes[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// NumberAttr returns the named attribute as a float64 when present and numeric.
func (e Entity) NumberAttr(name string) (float64, bool) {
	v, ok := e.Attributes[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Relationship is a typed edge inferred between two entities of one batch.
type Relationship struct {
	Type       RelationshipType `json:"type"`
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Attributes map[string]any   `json:"attributes,omitempty"`
	SourceRef  string           `json:"source_ref,omitempty"`
	// Excluded marks the relationship as carrying an error finding.
	Excluded bool `json:"excluded,omitempty"`
}

// Key returns the identity triple used to deduplicate relationships.
func (r Relationship) Key() string {
	return string(r.Type) + "|" + r.SourceID + "|" + r.TargetID
}

// MergeAttributes folds other's attributes into the relationship,
// last-write-wins per attribute.
func (r *Relationship) MergeAttributes(other map[string]any) {
	if len(other) == 0 {
		return
	}
	if r.Attributes == nil {
		r.Attributes = make(map[string]any, len(other))
	}
	for k, v := range other {
		r.Attributes[k] = v
	}
}
