package pipeline

import (
	"context"
	"fmt"

	"safegraph/pkg/domain"
)

// RuleStorageCompatibility identifies substances stored in containers whose
// material is incompatible with the substance's hazard class.
const RuleStorageCompatibility = "storage_compatibility"

// NewStorageCompatibilityRule enforces the registry's compatibility table
// over STORED_IN relationships.
func NewStorageCompatibilityRule(reg *domain.Registry) domain.Rule {
	return storageCompatibilityRule{reg: reg}
}

type storageCompatibilityRule struct {
	reg *domain.Registry
}

func (storageCompatibilityRule) Name() string { return RuleStorageCompatibility }

func (r storageCompatibilityRule) Evaluate(_ context.Context, view domain.BatchView) (domain.Result, error) {
	res := domain.Result{}
	for _, rel := range view.Relationships() {
		if rel.Excluded || rel.Type != domain.RelStoredIn {
			continue
		}
		substance, ok := view.FindEntity(rel.SourceID)
		if !ok || substance.Type != domain.EntitySubstance {
			continue
		}
		container, ok := view.FindEntity(rel.TargetID)
		if !ok || container.Type != domain.EntityContainer {
			continue
		}
		hazard := substance.Substance().HazardClass
		material := container.Container().Material
		for _, compat := range r.reg.Compatibilities() {
			if compat.HazardClass != hazard || !compat.Forbids(material) {
				continue
			}
			res.Findings = append(res.Findings, domain.Finding{
				RecordRef: rel.SourceRef,
				Rule:      RuleStorageCompatibility,
				Class:     domain.ClassCross,
				Severity:  domain.SeverityError,
				Message:   fmt.Sprintf("%s substance must not be stored in a %s container", hazard, material),
				EntityID:  rel.Key(),
			})
			break
		}
	}
	return res, nil
}
