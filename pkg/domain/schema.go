package domain

import (
	"fmt"
	"regexp"
	"sort"
)

// Range bounds a numeric attribute, inclusive on both ends.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v falls inside the range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Cardinality constrains how many edges of one relationship type a single
// source entity may carry.
type Cardinality string

const (
	// CardinalityOne allows at most one edge per source.
	CardinalityOne Cardinality = "one"
	// CardinalityMany allows any number of edges per source.
	CardinalityMany Cardinality = "many"
)

// EntityDef declares the shape of one entity type: required and optional
// attributes, value constraints, and the natural-key attribute list used to
// derive stable entity identifiers.
type EntityDef struct {
	Type       EntityType          `yaml:"type"`
	Required   []string            `yaml:"required"`
	Optional   []string            `yaml:"optional"`
	Enums      map[string][]string `yaml:"enums"`
	Ranges     map[string]Range    `yaml:"ranges"`
	Patterns   map[string]string   `yaml:"patterns"`
	NaturalKey []string            `yaml:"natural_key"`
}

// Knows reports whether the attribute is declared (required or optional).
func (d EntityDef) Knows(attr string) bool {
	for _, a := range d.Required {
		if a == attr {
			return true
		}
	}
	for _, a := range d.Optional {
		if a == attr {
			return true
		}
	}
	return false
}

// Numeric reports whether the attribute carries a declared numeric range.
func (d EntityDef) Numeric(attr string) bool {
	_, ok := d.Ranges[attr]
	return ok
}

// TypePair is an allowed (source-type, target-type) combination for a
// relationship type.
type TypePair struct {
	Source EntityType `yaml:"source"`
	Target EntityType `yaml:"target"`
}

// RelationshipDef declares one relationship type: its legal endpoint type
// pairs, source-side cardinality, and the reference attribute carrying the
// foreign-key-style hint on source records.
type RelationshipDef struct {
	Type  RelationshipType `yaml:"type"`
	Pairs []TypePair       `yaml:"pairs"`
	// Via names the attribute on source-type records whose value references
	// the target entity (by id or by the target's key attribute).
	Via string `yaml:"via"`
	// TargetKey names the attribute on target-type records matched against
	// Via values when the value is not an entity id.
	TargetKey   string      `yaml:"target_key"`
	Cardinality Cardinality `yaml:"cardinality"`
}

// AllowsPair reports whether the (source, target) type pair is legal.
func (d RelationshipDef) AllowsPair(source, target EntityType) bool {
	for _, p := range d.Pairs {
		if p.Source == source && p.Target == target {
			return true
		}
	}
	return false
}

// ConditionalRule is a cross-field shape constraint: when WhenAttr equals
// WhenValue on an entity of the given type, ThenRequired must be present.
type ConditionalRule struct {
	Entity       EntityType `yaml:"entity"`
	WhenAttr     string     `yaml:"when_attr"`
	WhenValue    string     `yaml:"when_value"`
	ThenRequired string     `yaml:"then_required"`
}

// CompatibilityRule declares container materials that must not hold
// substances of the given hazard class.
type CompatibilityRule struct {
	HazardClass           string   `yaml:"hazard_class"`
	IncompatibleMaterials []string `yaml:"incompatible_materials"`
}

// Forbids reports whether the material is incompatible with the hazard class.
func (c CompatibilityRule) Forbids(material string) bool {
	for _, m := range c.IncompatibleMaterials {
		if m == material {
			return true
		}
	}
	return false
}

// Registry is the static, versioned description of entity and relationship
// types consumed by every pipeline stage. It is validated once at
// construction; an invalid registry is a programmer error and fatal at
// startup.
type Registry struct {
	version       string
	entities      map[EntityType]EntityDef
	relationships map[RelationshipType]RelationshipDef
	conditionals  []ConditionalRule
	compat        []CompatibilityRule
	patterns      map[EntityType]map[string]*regexp.Regexp
}

// NewRegistry validates the declarations and builds an immutable registry.
func NewRegistry(version string, entities []EntityDef, relationships []RelationshipDef, conditionals []ConditionalRule, compat []CompatibilityRule) (*Registry, error) {
	reg := &Registry{
		version:       version,
		entities:      make(map[EntityType]EntityDef, len(entities)),
		relationships: make(map[RelationshipType]RelationshipDef, len(relationships)),
		conditionals:  append([]ConditionalRule(nil), conditionals...),
		compat:        append([]CompatibilityRule(nil), compat...),
		patterns:      make(map[EntityType]map[string]*regexp.Regexp),
	}
	for _, def := range entities {
		if def.Type == "" {
			return nil, fmt.Errorf("registry: entity def with empty type")
		}
		if _, dup := reg.entities[def.Type]; dup {
			return nil, fmt.Errorf("registry: duplicate entity type %s", def.Type)
		}
		if len(def.Required) == 0 {
			return nil, fmt.Errorf("registry: entity %s declares no required attributes", def.Type)
		}
		if len(def.NaturalKey) == 0 {
			return nil, fmt.Errorf("registry: entity %s declares no natural key", def.Type)
		}
		for _, k := range def.NaturalKey {
			if !def.Knows(k) {
				return nil, fmt.Errorf("registry: entity %s natural key %q is not a declared attribute", def.Type, k)
			}
		}
		for attr := range def.Enums {
			if !def.Knows(attr) {
				return nil, fmt.Errorf("registry: entity %s enum on undeclared attribute %q", def.Type, attr)
			}
		}
		for attr, rng := range def.Ranges {
			if !def.Knows(attr) {
				return nil, fmt.Errorf("registry: entity %s range on undeclared attribute %q", def.Type, attr)
			}
			if rng.Min > rng.Max {
				return nil, fmt.Errorf("registry: entity %s range on %q has min > max", def.Type, attr)
			}
		}
		compiled := make(map[string]*regexp.Regexp, len(def.Patterns))
		for attr, pattern := range def.Patterns {
			if !def.Knows(attr) {
				return nil, fmt.Errorf("registry: entity %s pattern on undeclared attribute %q", def.Type, attr)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("registry: entity %s pattern on %q: %w", def.Type, attr, err)
			}
			compiled[attr] = re
		}
		reg.entities[def.Type] = def
		reg.patterns[def.Type] = compiled
	}
	for _, def := range relationships {
		if def.Type == "" {
			return nil, fmt.Errorf("registry: relationship def with empty type")
		}
		if _, dup := reg.relationships[def.Type]; dup {
			return nil, fmt.Errorf("registry: duplicate relationship type %s", def.Type)
		}
		if len(def.Pairs) == 0 {
			return nil, fmt.Errorf("registry: relationship %s declares no type pairs", def.Type)
		}
		for _, p := range def.Pairs {
			if _, ok := reg.entities[p.Source]; !ok {
				return nil, fmt.Errorf("registry: relationship %s references unknown source type %s", def.Type, p.Source)
			}
			if _, ok := reg.entities[p.Target]; !ok {
				return nil, fmt.Errorf("registry: relationship %s references unknown target type %s", def.Type, p.Target)
			}
		}
		if def.Cardinality != CardinalityOne && def.Cardinality != CardinalityMany {
			return nil, fmt.Errorf("registry: relationship %s has invalid cardinality %q", def.Type, def.Cardinality)
		}
		reg.relationships[def.Type] = def
	}
	for _, c := range reg.conditionals {
		if _, ok := reg.entities[c.Entity]; !ok {
			return nil, fmt.Errorf("registry: conditional rule references unknown entity type %s", c.Entity)
		}
	}
	return reg, nil
}

// Version returns the registry version string.
func (r *Registry) Version() string { return r.version }

// Entity looks up the definition for one entity type.
func (r *Registry) Entity(t EntityType) (EntityDef, bool) {
	def, ok := r.entities[t]
	return def, ok
}

// Entities returns all entity definitions sorted by type.
func (r *Registry) Entities() []EntityDef {
	out := make([]EntityDef, 0, len(r.entities))
	for _, def := range r.entities {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Relationship looks up the definition for one relationship type.
func (r *Registry) Relationship(t RelationshipType) (RelationshipDef, bool) {
	def, ok := r.relationships[t]
	return def, ok
}

// Relationships returns all relationship definitions sorted by type.
func (r *Registry) Relationships() []RelationshipDef {
	out := make([]RelationshipDef, 0, len(r.relationships))
	for _, def := range r.relationships {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Conditionals returns the declared cross-field requirements.
func (r *Registry) Conditionals() []ConditionalRule {
	return append([]ConditionalRule(nil), r.conditionals...)
}

// Compatibilities returns the declared substance-container compatibility rules.
func (r *Registry) Compatibilities() []CompatibilityRule {
	return append([]CompatibilityRule(nil), r.compat...)
}

// Pattern returns the compiled format regexp for an attribute, if declared.
func (r *Registry) Pattern(t EntityType, attr string) (*regexp.Regexp, bool) {
	re, ok := r.patterns[t][attr]
	return re, ok
}
