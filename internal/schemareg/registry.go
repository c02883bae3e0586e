// Package schemareg builds the schema registry consumed by every pipeline
// stage, either from the built-in safety-domain defaults or from a YAML file
// loaded once at process start.
package schemareg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"safegraph/pkg/domain"
)

// Document is the on-disk YAML shape of a schema registry.
type Document struct {
	Version         string                    `yaml:"version"`
	Entities        []domain.EntityDef        `yaml:"entities"`
	Relationships   []domain.RelationshipDef  `yaml:"relationships"`
	Conditionals    []domain.ConditionalRule  `yaml:"conditionals"`
	Compatibilities []domain.CompatibilityRule `yaml:"compatibilities"`
}

// Build validates the document and constructs the registry.
func (d Document) Build() (*domain.Registry, error) {
	return domain.NewRegistry(d.Version, d.Entities, d.Relationships, d.Conditionals, d.Compatibilities)
}

// LoadFile reads and builds a registry from a YAML file. Errors here are
// fatal at startup: an invalid registry is a programmer error, not input data.
func LoadFile(path string) (*domain.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema registry: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from raw YAML bytes.
func Parse(data []byte) (*domain.Registry, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode schema registry: %w", err)
	}
	reg, err := doc.Build()
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// Default returns the built-in safety-domain registry. It must always
// validate; a failure is a programming error.
func Default() *domain.Registry {
	reg, err := DefaultDocument().Build()
	if err != nil {
		panic(fmt.Errorf("built-in schema registry invalid: %w", err))
	}
	return reg
}

// DefaultDocument declares the built-in safety-domain schema.
func DefaultDocument() Document {
	return Document{
		Version: "2026-08",
		Entities: []domain.EntityDef{
			{
				Type:     domain.EntitySubstance,
				Required: []string{"name", "hazard_class"},
				Optional: []string{"formula", "cas_number", "ppe_required", "storage_temperature", "container_id", "test_id", "compatible_with", "incompatible_with"},
				Enums: map[string][]string{
					"hazard_class": {"corrosive", "flammable", "toxic", "explosive", "oxidizing", "inert"},
				},
				Ranges: map[string]domain.Range{
					"storage_temperature": {Min: -200, Max: 1000},
				},
				Patterns: map[string]string{
					"cas_number": `^\d{2,7}-\d{2}-\d$`,
				},
				NaturalKey: []string{"name", "formula"},
			},
			{
				Type:     domain.EntityContainer,
				Required: []string{"name", "material"},
				Optional: []string{"location", "capacity_litres", "temperature_rating"},
				Enums: map[string][]string{
					"material": {"glass", "polyethylene", "steel", "stainless_steel", "aluminum", "ceramic"},
				},
				Ranges: map[string]domain.Range{
					"capacity_litres":    {Min: 0, Max: 100000},
					"temperature_rating": {Min: -200, Max: 1000},
				},
				NaturalKey: []string{"name"},
			},
			{
				Type:     domain.EntityTest,
				Required: []string{"name", "method"},
				Optional: []string{"result", "tested_at", "substance_id"},
				Enums: map[string][]string{
					"result": {"pass", "fail", "inconclusive"},
				},
				NaturalKey: []string{"name", "method"},
			},
			{
				Type:     domain.EntityAssessment,
				Required: []string{"title", "risk_level"},
				Optional: []string{"assessor", "assessed_at", "substance_id"},
				Enums: map[string][]string{
					"risk_level": {"low", "medium", "high", "critical"},
				},
				NaturalKey: []string{"title"},
			},
		},
		Relationships: []domain.RelationshipDef{
			{
				Type:        domain.RelStoredIn,
				Pairs:       []domain.TypePair{{Source: domain.EntitySubstance, Target: domain.EntityContainer}},
				Via:         "container_id",
				TargetKey:   "name",
				Cardinality: domain.CardinalityOne,
			},
			{
				Type:        domain.RelTestedWith,
				Pairs:       []domain.TypePair{{Source: domain.EntitySubstance, Target: domain.EntityTest}},
				Via:         "test_id",
				TargetKey:   "name",
				Cardinality: domain.CardinalityMany,
			},
			{
				Type:        domain.RelAssessedFor,
				Pairs:       []domain.TypePair{{Source: domain.EntityAssessment, Target: domain.EntitySubstance}},
				Via:         "substance_id",
				TargetKey:   "name",
				Cardinality: domain.CardinalityOne,
			},
			{
				Type:        domain.RelCompatibleWith,
				Pairs:       []domain.TypePair{{Source: domain.EntitySubstance, Target: domain.EntitySubstance}},
				Via:         "compatible_with",
				TargetKey:   "name",
				Cardinality: domain.CardinalityMany,
			},
			{
				Type:        domain.RelIncompatibleWith,
				Pairs:       []domain.TypePair{{Source: domain.EntitySubstance, Target: domain.EntitySubstance}},
				Via:         "incompatible_with",
				TargetKey:   "name",
				Cardinality: domain.CardinalityMany,
			},
		},
		Conditionals: []domain.ConditionalRule{
			{Entity: domain.EntitySubstance, WhenAttr: "hazard_class", WhenValue: "toxic", ThenRequired: "ppe_required"},
		},
		Compatibilities: []domain.CompatibilityRule{
			{HazardClass: "corrosive", IncompatibleMaterials: []string{"steel", "aluminum"}},
			{HazardClass: "flammable", IncompatibleMaterials: []string{"polyethylene"}},
			{HazardClass: "oxidizing", IncompatibleMaterials: []string{"polyethylene", "aluminum"}},
		},
	}
}
