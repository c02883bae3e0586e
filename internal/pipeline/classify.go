package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"safegraph/pkg/domain"
)

// Rule identifiers emitted by the classifier.
const (
	RuleUnknownType       = "unknown_type"
	RuleAmbiguousType     = "ambiguous_type"
	RuleRequiredAttribute = "required_attribute"
	RuleEnumValue         = "enum_value"
	RuleNumericRange      = "numeric_range"
	RuleFormatPattern     = "format_pattern"
)

// ErrAmbiguousType is returned by inference strategies when more than one
// entity type matches equally well.
var ErrAmbiguousType = errors.New("ambiguous entity type")

// InferenceStrategy resolves an entity type for records without an explicit
// hint. Implementations must be deterministic; ambiguity is an error, never a
// guess.
type InferenceStrategy interface {
	Infer(attrs map[string]any, reg *domain.Registry) (domain.EntityType, error)
}

// RequiredCoverageStrategy picks the type whose required attributes are best
// covered by the record. A tie between two types is rejected.
type RequiredCoverageStrategy struct{}

// Infer implements InferenceStrategy.
func (RequiredCoverageStrategy) Infer(attrs map[string]any, reg *domain.Registry) (domain.EntityType, error) {
	best := domain.EntityType("")
	bestCoverage := 0
	tied := false
	for _, def := range reg.Entities() {
		coverage := 0
		for _, req := range def.Required {
			if _, ok := attrs[req]; ok {
				coverage++
			}
		}
		switch {
		case coverage > bestCoverage:
			best, bestCoverage, tied = def.Type, coverage, false
		case coverage == bestCoverage && coverage > 0:
			tied = true
		}
	}
	if bestCoverage == 0 {
		return "", fmt.Errorf("no entity type matches the present attributes")
	}
	if tied {
		return "", fmt.Errorf("%w: multiple entity types match with required-field coverage %d", ErrAmbiguousType, bestCoverage)
	}
	return best, nil
}

// Classifier assigns records to entity types, validates per-attribute shape
// constraints, and derives stable entity identities. Classification is
// deterministic: the same input always yields the same id and findings.
type Classifier struct {
	reg      *domain.Registry
	strategy InferenceStrategy
	nowFn    func() time.Time
}

// NewClassifier constructs a classifier. A nil strategy defaults to required
// field coverage.
func NewClassifier(reg *domain.Registry, strategy InferenceStrategy) *Classifier {
	if strategy == nil {
		strategy = RequiredCoverageStrategy{}
	}
	return &Classifier{
		reg:      reg,
		strategy: strategy,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Classify processes the batch's records into entities, merging natural-key
// duplicates last-write-wins and accumulating findings and score counters.
func (c *Classifier) Classify(batch *Batch) {
	index := make(map[string]int)
	for _, rec := range batch.Records {
		// type resolution is itself a shape check
		batch.Stats.ShapeChecks++
		entityType, finding := c.resolveType(rec)
		if finding != nil {
			batch.RejectedRecords++
			batch.AddFindings(*finding)
			continue
		}
		def, _ := c.reg.Entity(entityType)
		// Records classified by inference still need fail-closed numeric
		// coercion against the resolved definition.
		coerceNumericFor(def, rec.Attributes)

		id := c.entityID(def, rec)
		findings := c.checkShape(def, rec, id)
		c.countCompleteness(def, rec, &batch.Stats)

		if i, ok := index[id]; ok {
			existing := &batch.Entities[i]
			for k, v := range rec.Attributes {
				existing.Attributes[k] = v
			}
			existing.MergedFrom++
			existing.UpdatedAt = c.nowFn()
			batch.Stats.DuplicateMerges++
		} else {
			now := c.nowFn()
			attrs := make(map[string]any, len(rec.Attributes))
			for k, v := range rec.Attributes {
				attrs[k] = v
			}
			batch.Entities = append(batch.Entities, domain.Entity{
				Base:       domain.Base{ID: id, CreatedAt: now, UpdatedAt: now},
				Type:       entityType,
				Attributes: attrs,
				SourceRef:  rec.SourceRef,
			})
			index[id] = len(batch.Entities) - 1
		}
		if len(findings) > 0 {
			batch.AddFindings(findings...)
			for _, f := range findings {
				if f.Severity == domain.SeverityError {
					batch.Entities[index[id]].Excluded = true
					break
				}
			}
		}
	}
}

func (c *Classifier) resolveType(rec Record) (domain.EntityType, *domain.Finding) {
	if rec.TypeHint != "" {
		t := domain.EntityType(rec.TypeHint)
		if _, ok := c.reg.Entity(t); !ok {
			return "", &domain.Finding{
				RecordRef: rec.SourceRef,
				Rule:      RuleUnknownType,
				Class:     domain.ClassShape,
				Severity:  domain.SeverityError,
				Message:   fmt.Sprintf("declared type %q is not in the schema registry", rec.TypeHint),
			}
		}
		return t, nil
	}
	t, err := c.strategy.Infer(rec.Attributes, c.reg)
	if err != nil {
		rule := RuleUnknownType
		if errors.Is(err, ErrAmbiguousType) {
			rule = RuleAmbiguousType
		}
		return "", &domain.Finding{
			RecordRef: rec.SourceRef,
			Rule:      rule,
			Class:     domain.ClassShape,
			Severity:  domain.SeverityError,
			Message:   err.Error(),
		}
	}
	return t, nil
}

// entityID derives the stable identity: the ontology subject IRI when
// present, otherwise a digest of the type and canonicalized natural-key
// values. Absent key attributes contribute an empty segment so the
// derivation stays deterministic.
func (c *Classifier) entityID(def domain.EntityDef, rec Record) string {
	if rec.SubjectIRI != "" {
		return rec.SubjectIRI
	}
	parts := make([]string, 0, len(def.NaturalKey)+1)
	parts = append(parts, string(def.Type))
	for _, attr := range def.NaturalKey {
		parts = append(parts, canonicalKeyValue(rec.Attributes[attr]))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

func canonicalKeyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(t))
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return strings.ToLower(fmt.Sprint(t))
	}
}

// checkShape applies the per-attribute constraints: required presence, enum
// membership, numeric range, and format pattern.
func (c *Classifier) checkShape(def domain.EntityDef, rec Record, entityID string) []domain.Finding {
	var findings []domain.Finding
	fail := func(rule, attr, msg string) {
		findings = append(findings, domain.Finding{
			RecordRef: rec.SourceRef,
			Rule:      rule,
			Class:     domain.ClassShape,
			Severity:  domain.SeverityError,
			Message:   msg,
			Entity:    def.Type,
			EntityID:  entityID,
		})
	}

	for _, req := range def.Required {
		if _, ok := rec.Attributes[req]; !ok {
			fail(RuleRequiredAttribute, req, fmt.Sprintf("required attribute %q is absent", req))
		}
	}

	// Enum, range, and pattern checks run only for present attributes;
	// absence is already covered by the required check.
	enumAttrs := sortedKeys(def.Enums)
	for _, attr := range enumAttrs {
		raw, ok := rec.Attributes[attr]
		if !ok {
			continue
		}
		value, _ := raw.(string)
		if !contains(def.Enums[attr], value) {
			fail(RuleEnumValue, attr, fmt.Sprintf("attribute %q value %q is not in the allowed set", attr, value))
		}
	}
	rangeAttrs := sortedKeys(def.Ranges)
	for _, attr := range rangeAttrs {
		raw, ok := rec.Attributes[attr]
		if !ok {
			continue
		}
		value, isNum := raw.(float64)
		if !isNum || !def.Ranges[attr].Contains(value) {
			fail(RuleNumericRange, attr, fmt.Sprintf("attribute %q value %v is outside [%g, %g]", attr, raw, def.Ranges[attr].Min, def.Ranges[attr].Max))
		}
	}
	patternAttrs := sortedKeys(def.Patterns)
	for _, attr := range patternAttrs {
		raw, ok := rec.Attributes[attr]
		if !ok {
			continue
		}
		value, _ := raw.(string)
		if re, ok := c.reg.Pattern(def.Type, attr); ok && !re.MatchString(value) {
			fail(RuleFormatPattern, attr, fmt.Sprintf("attribute %q value %q does not match the required format", attr, value))
		}
	}
	return findings
}

// countCompleteness tallies attribute slots and shape checks for the scorer.
func (c *Classifier) countCompleteness(def domain.EntityDef, rec Record, stats *BatchStats) {
	// Required attributes always count as slots; optional ones only when the
	// record provides them. A record carrying every required attribute scores
	// complete regardless of which optionals it chose to include.
	stats.AttributeSlots += len(def.Required)
	for _, attr := range def.Required {
		if _, ok := rec.Attributes[attr]; ok {
			stats.FilledSlots++
		}
	}
	for _, attr := range def.Optional {
		if _, ok := rec.Attributes[attr]; ok {
			stats.AttributeSlots++
			stats.FilledSlots++
		}
	}
	stats.ShapeChecks += len(def.Required)
	for attr := range def.Enums {
		if _, ok := rec.Attributes[attr]; ok {
			stats.ShapeChecks++
		}
	}
	for attr := range def.Ranges {
		if _, ok := rec.Attributes[attr]; ok {
			stats.ShapeChecks++
		}
	}
	for attr := range def.Patterns {
		if _, ok := rec.Attributes[attr]; ok {
			stats.ShapeChecks++
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
