package core

import (
	"safegraph/internal/pipeline"
	"safegraph/pkg/domain"
)

type (
	// Registry aliases the schema registry consumed by the pipeline.
	Registry = domain.Registry
	// GraphStore aliases the graph persistence abstraction.
	GraphStore = domain.GraphStore
	// Rule aliases the batch validation rule contract.
	Rule = domain.Rule
	// QualityReport aliases the batch scoring artifact.
	QualityReport = domain.QualityReport
	// Unit aliases a raw input unit.
	Unit = pipeline.Unit
	// RawRow aliases a tabular input unit.
	RawRow = pipeline.RawRow
	// RawSubject aliases an ontology input unit.
	RawSubject = pipeline.RawSubject
	// BatchInput aliases one batch of raw units.
	BatchInput = pipeline.BatchInput
	// BatchReport aliases the per-batch run artifact.
	BatchReport = pipeline.BatchReport
	// PipelineOptions aliases the tunable pipeline parameters.
	PipelineOptions = pipeline.Options
	// Logger aliases the structured logging surface.
	Logger = pipeline.Logger
)
