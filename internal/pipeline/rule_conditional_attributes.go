package pipeline

import (
	"context"
	"fmt"

	"safegraph/pkg/domain"
)

// RuleConditionalRequires identifies conditional-presence violations.
const RuleConditionalRequires = "conditional_requires"

// NewConditionalAttributesRule enforces the registry's cross-field
// requirements: when a trigger attribute holds its trigger value, the
// dependent attribute must be present.
func NewConditionalAttributesRule(reg *domain.Registry) domain.Rule {
	return conditionalAttributesRule{reg: reg}
}

type conditionalAttributesRule struct {
	reg *domain.Registry
}

func (conditionalAttributesRule) Name() string { return RuleConditionalRequires }

func (r conditionalAttributesRule) Evaluate(_ context.Context, view domain.BatchView) (domain.Result, error) {
	res := domain.Result{}
	for _, cond := range r.reg.Conditionals() {
		for _, e := range view.Entities() {
			if e.Type != cond.Entity {
				continue
			}
			if e.StringAttr(cond.WhenAttr) != cond.WhenValue {
				continue
			}
			if _, present := e.Attr(cond.ThenRequired); present {
				continue
			}
			res.Findings = append(res.Findings, domain.Finding{
				RecordRef: e.SourceRef,
				Rule:      RuleConditionalRequires,
				Class:     domain.ClassCross,
				Severity:  domain.SeverityError,
				Message:   fmt.Sprintf("%s=%s requires attribute %q to be present", cond.WhenAttr, cond.WhenValue, cond.ThenRequired),
				Entity:    e.Type,
				EntityID:  e.ID,
			})
		}
	}
	return res, nil
}
