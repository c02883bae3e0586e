package pipeline

import (
	"fmt"
	"strings"

	"safegraph/pkg/domain"
)

// Rule identifiers emitted by the mapper.
const (
	RuleBrokenReference = "broken_reference"
	RuleCardinality     = "cardinality"
)

// Mapper infers typed relationships between the classified entities of one
// batch from the reference attributes declared in the registry. It runs only
// after the whole batch is classified: entity-id resolution needs the
// complete entity set.
type Mapper struct {
	reg               *domain.Registry
	strictCardinality bool
}

// NewMapper constructs a mapper. strict controls whether cardinality
// violations are errors (default) or warnings.
func NewMapper(reg *domain.Registry, strict bool) *Mapper {
	return &Mapper{reg: reg, strictCardinality: strict}
}

// Map resolves reference hints into relationships, retaining unresolved
// references as excluded relationships with a broken_reference finding, and
// deduplicates identical (type, source, target) triples last-write-wins.
func (m *Mapper) Map(batch *Batch) {
	idIndex := make(map[string]domain.Entity, len(batch.Entities))
	keyIndex := make(map[string]map[string]string)
	for _, e := range batch.Entities {
		idIndex[e.ID] = e
	}

	seen := make(map[string]int)
	for _, def := range m.reg.Relationships() {
		for _, e := range batch.Entities {
			if !m.sourceMatches(def, e.Type) {
				continue
			}
			raw, ok := e.Attributes[def.Via]
			if !ok {
				continue
			}
			for _, ref := range referenceValues(raw) {
				batch.Stats.CrossChecks++
				targetID, resolved := m.resolve(batch, def, idIndex, keyIndex, ref)
				rel := domain.Relationship{
					Type:      def.Type,
					SourceID:  e.ID,
					TargetID:  targetID,
					SourceRef: e.SourceRef,
				}
				if !resolved {
					rel.TargetID = ref
					rel.Excluded = true
					batch.Relationships = append(batch.Relationships, rel)
					batch.AddFindings(domain.Finding{
						RecordRef: e.SourceRef,
						Rule:      RuleBrokenReference,
						Class:     domain.ClassCross,
						Severity:  domain.SeverityError,
						Message:   fmt.Sprintf("%s reference %q does not resolve to any entity in the batch", def.Type, ref),
						Entity:    e.Type,
						EntityID:  rel.Key(),
					})
					continue
				}
				if i, dup := seen[rel.Key()]; dup {
					batch.Relationships[i].MergeAttributes(rel.Attributes)
					continue
				}
				batch.Relationships = append(batch.Relationships, rel)
				seen[rel.Key()] = len(batch.Relationships) - 1
			}
		}
	}

	m.checkCardinality(batch)
}

func (m *Mapper) sourceMatches(def domain.RelationshipDef, t domain.EntityType) bool {
	for _, p := range def.Pairs {
		if p.Source == t {
			return true
		}
	}
	return false
}

// resolve matches a reference value against entity ids first, then against
// the target-key attribute of target-type entities. The lookup cache is keyed
// per (target type, target key): two relationship defs may resolve the same
// target type through different attributes.
func (m *Mapper) resolve(batch *Batch, def domain.RelationshipDef, idIndex map[string]domain.Entity, keyIndex map[string]map[string]string, ref string) (string, bool) {
	if _, ok := idIndex[ref]; ok {
		return ref, true
	}
	for _, p := range def.Pairs {
		cacheKey := string(p.Target) + "|" + def.TargetKey
		byKey, built := keyIndex[cacheKey]
		if !built {
			byKey = make(map[string]string)
			for _, e := range batch.Entities {
				if e.Type != p.Target {
					continue
				}
				if v := e.StringAttr(def.TargetKey); v != "" {
					byKey[canonicalKeyValue(v)] = e.ID
				}
			}
			keyIndex[cacheKey] = byKey
		}
		if id, ok := byKey[canonicalKeyValue(ref)]; ok {
			return id, true
		}
	}
	return "", false
}

// checkCardinality enforces the per-source edge limit. Edges beyond the first
// are excluded when strict; otherwise the violation is a warning only.
func (m *Mapper) checkCardinality(batch *Batch) {
	counts := make(map[string][]int)
	for i, rel := range batch.Relationships {
		if rel.Excluded {
			continue
		}
		def, ok := m.reg.Relationship(rel.Type)
		if !ok || def.Cardinality != domain.CardinalityOne {
			continue
		}
		group := string(rel.Type) + "|" + rel.SourceID
		counts[group] = append(counts[group], i)
	}
	for _, group := range sortedKeys(counts) {
		indexes := counts[group]
		batch.Stats.CrossChecks++
		if len(indexes) <= 1 {
			continue
		}
		severity := domain.SeverityError
		if !m.strictCardinality {
			severity = domain.SeverityWarning
		}
		for _, i := range indexes[1:] {
			rel := &batch.Relationships[i]
			if severity == domain.SeverityError {
				rel.Excluded = true
			}
			batch.AddFindings(domain.Finding{
				RecordRef: rel.SourceRef,
				Rule:      RuleCardinality,
				Class:     domain.ClassCross,
				Severity:  severity,
				Message:   fmt.Sprintf("source %s carries %d %s edges, at most one allowed", rel.SourceID, len(indexes), rel.Type),
				EntityID:  rel.Key(),
			})
		}
	}
}

// referenceValues splits a hint attribute into individual reference values.
// List-valued hints use comma or semicolon separators.
func referenceValues(raw any) []string {
	s, ok := raw.(string)
	if !ok {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := strings.TrimSpace(f); v != "" {
			out = append(out, v)
		}
	}
	return out
}
