package pipeline

import (
	"context"

	"safegraph/pkg/domain"
)

// Validator applies the cross-cutting shape constraints and cross-entity
// business rules that need the full batch: conditional requirements,
// relationship schema legality, and substance-container compatibility.
type Validator struct {
	reg    *domain.Registry
	engine *domain.RulesEngine
}

// NewValidator constructs a validator with the built-in rule set.
func NewValidator(reg *domain.Registry) *Validator {
	engine := domain.NewRulesEngine()
	engine.Register(NewConditionalAttributesRule(reg))
	engine.Register(NewRelationshipSchemaRule(reg))
	engine.Register(NewStorageCompatibilityRule(reg))
	return &Validator{reg: reg, engine: engine}
}

// Engine exposes the rules engine so callers can register extra rules.
func (v *Validator) Engine() *domain.RulesEngine { return v.engine }

// Validate evaluates all rules over the batch and marks every entity and
// relationship carrying an error finding as excluded. Excluded records stay
// in the batch for reporting; warnings never exclude.
func (v *Validator) Validate(ctx context.Context, batch *Batch) error {
	batch.Stats.CrossChecks += v.countChecks(batch)

	res, err := v.engine.Evaluate(ctx, batch.View())
	if err != nil {
		return err
	}
	batch.AddFindings(res.Findings...)

	errored := res.ErrorIDs()
	for i := range batch.Entities {
		if _, bad := errored[batch.Entities[i].ID]; bad {
			batch.Entities[i].Excluded = true
		}
	}
	for i := range batch.Relationships {
		if _, bad := errored[batch.Relationships[i].Key()]; bad {
			batch.Relationships[i].Excluded = true
		}
	}
	return nil
}

// countChecks tallies the cross-field and business evaluations the built-in
// rules are about to perform, feeding the consistency denominator.
func (v *Validator) countChecks(batch *Batch) int {
	n := 0
	for _, c := range v.reg.Conditionals() {
		for _, e := range batch.Entities {
			if e.Type == c.Entity {
				n++
			}
		}
	}
	for _, rel := range batch.Relationships {
		if rel.Excluded {
			continue
		}
		// one schema-legality check per relationship
		n++
		if rel.Type == domain.RelStoredIn {
			n++
		}
	}
	return n
}
