package domain

import "context"

// BatchView provides read-only access to the classified entities and mapped
// relationships of one ingestion batch for rule evaluation.
type BatchView interface {
	Entities() []Entity
	Relationships() []Relationship
	FindEntity(id string) (Entity, bool)
}

// Rule defines a validation check evaluated over a complete batch.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view BatchView) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in registration order.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view BatchView) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
