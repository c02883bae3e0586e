package pipeline

import (
	"context"
	"fmt"

	"safegraph/pkg/domain"
)

// RuleIllegalTypePair identifies relationships whose endpoint types are not
// in the registry's allowed set.
const RuleIllegalTypePair = "illegal_type_pair"

// NewRelationshipSchemaRule re-checks every mapped relationship against the
// registry: the relationship type must be declared and the resolved
// (source-type, target-type) pair must be allowed.
func NewRelationshipSchemaRule(reg *domain.Registry) domain.Rule {
	return relationshipSchemaRule{reg: reg}
}

type relationshipSchemaRule struct {
	reg *domain.Registry
}

func (relationshipSchemaRule) Name() string { return RuleIllegalTypePair }

func (r relationshipSchemaRule) Evaluate(_ context.Context, view domain.BatchView) (domain.Result, error) {
	res := domain.Result{}
	for _, rel := range view.Relationships() {
		if rel.Excluded {
			continue
		}
		source, sourceOK := view.FindEntity(rel.SourceID)
		target, targetOK := view.FindEntity(rel.TargetID)
		if !sourceOK || !targetOK {
			// unresolved endpoints already carry a broken_reference finding
			continue
		}
		def, declared := r.reg.Relationship(rel.Type)
		if declared && def.AllowsPair(source.Type, target.Type) {
			continue
		}
		res.Findings = append(res.Findings, domain.Finding{
			RecordRef: rel.SourceRef,
			Rule:      RuleIllegalTypePair,
			Class:     domain.ClassCross,
			Severity:  domain.SeverityError,
			Message:   fmt.Sprintf("relationship %s does not allow (%s, %s) endpoints", rel.Type, source.Type, target.Type),
			EntityID:  rel.Key(),
		})
	}
	return res, nil
}
