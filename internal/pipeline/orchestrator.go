package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"safegraph/internal/graph"
	"safegraph/pkg/domain"
)

// Stage names the orchestrator's batch states.
type Stage string

const (
	StageIngesting   Stage = "ingesting"
	StageClassifying Stage = "classifying"
	StageMapping     Stage = "mapping"
	StageValidating  Stage = "validating"
	StageScoring     Stage = "scoring"
	StageStoring     Stage = "storing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// StageTiming records how long one stage of a batch took.
type StageTiming struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// BatchReport is the per-batch run artifact: the final stage, the quality
// report, all findings, the score counters, and the write summary when
// storage ran.
type BatchReport struct {
	BatchID      string               `json:"batch_id"`
	Stage        Stage                `json:"stage"`
	Quality      domain.QualityReport `json:"quality"`
	Findings     []domain.Finding     `json:"findings"`
	Stats        BatchStats           `json:"stats"`
	SkippedUnits int                  `json:"skipped_units"`
	Write        graph.WriteSummary   `json:"write"`
	Timings      []StageTiming        `json:"timings"`
}

// Options carries the tunable pipeline parameters.
type Options struct {
	// Weights combine the dimension scores; zero value means defaults.
	Weights domain.Weights
	// ErrorThreshold is the maximum tolerated excluded-record ratio.
	ErrorThreshold float64
	// BatchSize is the number of graph upserts per transaction.
	BatchSize int
	// TxTimeout bounds each storage transaction.
	TxTimeout time.Duration
	// StrictCardinality makes cardinality violations errors, not warnings.
	StrictCardinality bool
	// Workers caps concurrent batches in RunAll.
	Workers int
	// Strategy overrides type inference; nil means required-field coverage.
	Strategy InferenceStrategy
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		Weights:           domain.DefaultWeights(),
		ErrorThreshold:    0.10,
		BatchSize:         100,
		TxTimeout:         30 * time.Second,
		StrictCardinality: true,
		Workers:           4,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Weights == (domain.Weights{}) {
		o.Weights = def.Weights
	}
	if o.ErrorThreshold <= 0 {
		o.ErrorThreshold = def.ErrorThreshold
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.TxTimeout <= 0 {
		o.TxTimeout = def.TxTimeout
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	return o
}

// Orchestrator drives one batch through the stages in strict order:
// ingesting, classifying, mapping, validating, scoring, storing. A failed
// quality gate or a storage error moves the batch to failed; nothing of a
// failed batch reaches the graph store.
type Orchestrator struct {
	reg        *domain.Registry
	store      domain.GraphStore
	opts       Options
	normalizer *Normalizer
	classifier *Classifier
	mapper     *Mapper
	validator  *Validator
	scorer     *Scorer
	writer     *graph.Writer
	log        Logger
}

// NewOrchestrator wires the stage components against one registry and store.
func NewOrchestrator(reg *domain.Registry, store domain.GraphStore, opts Options, log Logger) *Orchestrator {
	opts = opts.withDefaults()
	if log == nil {
		log = NoopLogger()
	}
	return &Orchestrator{
		reg:        reg,
		store:      store,
		opts:       opts,
		normalizer: NewNormalizer(reg),
		classifier: NewClassifier(reg, opts.Strategy),
		mapper:     NewMapper(reg, opts.StrictCardinality),
		validator:  NewValidator(reg),
		scorer:     NewScorer(opts.Weights, opts.ErrorThreshold),
		writer: graph.NewWriter(store,
			graph.WithBatchSize(opts.BatchSize),
			graph.WithTxTimeout(opts.TxTimeout),
			graph.WithLogger(log)),
		log: log,
	}
}

// Validator exposes the rules engine holder for extra rule registration.
func (o *Orchestrator) Validator() *Validator { return o.validator }

// Run executes the full pipeline for one batch of raw units. The returned
// report is populated as far as the run got, including on failure.
func (o *Orchestrator) Run(ctx context.Context, batchID string, units []Unit) (*BatchReport, error) {
	if batchID == "" {
		batchID = uuid.NewString()
	}
	batch := &Batch{ID: batchID}
	report := &BatchReport{BatchID: batchID, Stage: StageIngesting}

	fail := func(err error) (*BatchReport, error) {
		report.Stage = StageFailed
		report.Findings = batch.Findings
		report.Stats = batch.Stats
		report.SkippedUnits = batch.SkippedUnits
		return report, err
	}
	advance := func(stage Stage, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Stage = stage
		start := time.Now()
		err := fn()
		report.Timings = append(report.Timings, StageTiming{Stage: stage, Duration: time.Since(start)})
		return err
	}

	if err := advance(StageIngesting, func() error {
		o.ingest(batch, units)
		return nil
	}); err != nil {
		return fail(err)
	}
	if err := advance(StageClassifying, func() error {
		o.classifier.Classify(batch)
		return nil
	}); err != nil {
		return fail(err)
	}
	if err := advance(StageMapping, func() error {
		o.mapper.Map(batch)
		return nil
	}); err != nil {
		return fail(err)
	}
	if err := advance(StageValidating, func() error {
		return o.validator.Validate(ctx, batch)
	}); err != nil {
		return fail(err)
	}

	var quality domain.QualityReport
	if err := advance(StageScoring, func() error {
		quality = o.scorer.Score(batch)
		return nil
	}); err != nil {
		return fail(err)
	}
	report.Quality = quality
	if !quality.GatePassed {
		o.log.Warn("quality gate rejected batch",
			"batch", batchID,
			"excluded", quality.ExcludedCount,
			"total", quality.TotalCount,
			"ratio", quality.ErrorRatio)
		return fail(domain.QualityGateError{
			Excluded:  quality.ExcludedCount,
			Total:     quality.TotalCount,
			Ratio:     quality.ErrorRatio,
			Threshold: o.scorer.Threshold(),
		})
	}

	if err := advance(StageStoring, func() error {
		summary, err := o.writer.Write(ctx, batch.Entities, batch.Relationships)
		report.Write = summary
		return err
	}); err != nil {
		return fail(err)
	}

	report.Stage = StageDone
	report.Findings = batch.Findings
	report.Stats = batch.Stats
	report.SkippedUnits = batch.SkippedUnits
	o.log.Info("batch complete",
		"batch", batchID,
		"entities", len(batch.Entities),
		"relationships", len(batch.Relationships),
		"grade", string(quality.Grade))
	return report, nil
}

// ingest normalizes raw units into records. Malformed units are logged and
// skipped; they never abort the batch.
func (o *Orchestrator) ingest(batch *Batch, units []Unit) {
	for _, unit := range units {
		rec, err := unit.normalize(o.normalizer)
		if err != nil {
			batch.SkippedUnits++
			o.log.Warn("skipping malformed unit", "batch", batch.ID, "error", err)
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
}

// BatchInput pairs a batch id with its raw units for RunAll.
type BatchInput struct {
	ID    string
	Units []Unit
}

// RunAll processes independent batches concurrently, bounded by the worker
// limit. Reports come back in input order; a batch's failure never affects
// its siblings. The first error encountered in input order is returned.
func (o *Orchestrator) RunAll(ctx context.Context, inputs []BatchInput) ([]*BatchReport, error) {
	reports := make([]*BatchReport, len(inputs))
	errs := make([]error, len(inputs))

	sem := make(chan struct{}, o.opts.Workers)
	var wg sync.WaitGroup
	for i, input := range inputs {
		wg.Add(1)
		go func(i int, input BatchInput) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			reports[i], errs[i] = o.Run(ctx, input.ID, input.Units)
		}(i, input)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}
