package pipeline

import (
	"strconv"
	"strings"

	"safegraph/pkg/domain"
)

// Normalizer turns raw units into canonical records. It is a pure function
// over its inputs; the registry is consulted only for numeric coercion.
type Normalizer struct {
	reg *domain.Registry
}

// NewNormalizer constructs a normalizer against the given registry.
func NewNormalizer(reg *domain.Registry) *Normalizer {
	return &Normalizer{reg: reg}
}

// Row normalizes one tabular row. Empty or whitespace-only cells become
// absent attributes, never empty strings. A "type" column becomes the type
// hint. Numeric coercion fails closed: when the hinted type declares an
// attribute numeric and the cell does not parse, the attribute is absent.
func (n *Normalizer) Row(row RawRow) (Record, error) {
	if len(row.Headers) == 0 {
		return Record{}, NormalizationError{SourceRef: row.SourceRef, Reason: "missing header row"}
	}
	if len(row.Cells) != len(row.Headers) {
		return Record{}, NormalizationError{
			SourceRef: row.SourceRef,
			Reason:    "column count mismatch: " + strconv.Itoa(len(row.Cells)) + " cells for " + strconv.Itoa(len(row.Headers)) + " headers",
		}
	}
	rec := Record{Attributes: make(map[string]any, len(row.Headers)), SourceRef: row.SourceRef}
	for i, header := range row.Headers {
		key := normalizeAttrName(header)
		if key == "" {
			continue
		}
		value := strings.TrimSpace(row.Cells[i])
		if value == "" {
			continue
		}
		if key == "type" {
			rec.TypeHint = strings.ToLower(value)
			continue
		}
		rec.Attributes[key] = value
	}
	n.coerceNumeric(&rec)
	return rec, nil
}

// Subject normalizes one ontology subject. Predicate IRIs reduce to their
// local names; repeated predicates resolve last-write-wins. The subject IRI
// becomes the entity identifier downstream.
func (n *Normalizer) Subject(s RawSubject) (Record, error) {
	if strings.TrimSpace(s.Subject) == "" {
		return Record{}, NormalizationError{SourceRef: s.SourceRef, Reason: "subject IRI is empty"}
	}
	rec := Record{
		SubjectIRI: s.Subject,
		Attributes: make(map[string]any, len(s.Pairs)),
		SourceRef:  s.SourceRef,
	}
	if s.Class != "" {
		rec.TypeHint = strings.ToLower(localName(s.Class))
	}
	for _, pair := range s.Pairs {
		key := normalizeAttrName(localName(pair.Predicate))
		if key == "" {
			continue
		}
		value := strings.TrimSpace(pair.Object)
		if value == "" {
			continue
		}
		rec.Attributes[key] = value
	}
	n.coerceNumeric(&rec)
	return rec, nil
}

// coerceNumeric converts string values to float64 for attributes the hinted
// entity type declares numeric. Unparseable values are dropped rather than
// zeroed. Without a hint, coercion is deferred to the classifier.
func (n *Normalizer) coerceNumeric(rec *Record) {
	if rec.TypeHint == "" {
		return
	}
	def, ok := n.reg.Entity(domain.EntityType(rec.TypeHint))
	if !ok {
		return
	}
	coerceNumericFor(def, rec.Attributes)
}

func coerceNumericFor(def domain.EntityDef, attrs map[string]any) {
	for attr := range def.Ranges {
		raw, ok := attrs[attr]
		if !ok {
			continue
		}
		s, isString := raw.(string)
		if !isString {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			delete(attrs, attr)
			continue
		}
		attrs[attr] = f
	}
}

func normalizeAttrName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}

// localName strips an IRI down to its fragment or final path segment.
func localName(iri string) string {
	if i := strings.LastIndex(iri, "#"); i >= 0 {
		return iri[i+1:]
	}
	if i := strings.LastIndex(iri, "/"); i >= 0 {
		return iri[i+1:]
	}
	return iri
}
