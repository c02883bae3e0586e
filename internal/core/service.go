// Package core exposes the ingestion service: it drives the pipeline over a
// graph store, instruments every operation, and archives run artifacts.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"safegraph/internal/blob"
	"safegraph/internal/pipeline"
	"safegraph/pkg/domain"
)

// Service wires the pipeline orchestrator, the graph store, and the optional
// artifact archive behind one instrumented surface.
type Service struct {
	reg     *Registry
	store   GraphStore
	orch    *pipeline.Orchestrator
	archive blob.Store
	log     Logger
	metrics MetricsRecorder
	tracer  Tracer
	nowFn   func() time.Time
	opts    PipelineOptions
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithArchive retains batch reports and findings in the given blob store.
func WithArchive(store blob.Store) ServiceOption {
	return func(s *Service) { s.archive = store }
}

// WithLogger sets the service logger.
func WithLogger(log Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tr Tracer) ServiceOption {
	return func(s *Service) {
		if tr != nil {
			s.tracer = tr
		}
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithPipelineOptions overrides the pipeline tuning.
func WithPipelineOptions(opts PipelineOptions) ServiceOption {
	return func(s *Service) { s.opts = opts }
}

// NewService constructs a service over the given registry and graph store.
func NewService(reg *Registry, store GraphStore, opts ...ServiceOption) *Service {
	s := &Service{
		reg:   reg,
		store: store,
		log:   pipeline.NoopLogger(),
		nowFn: func() time.Time { return time.Now().UTC() },
		opts:  pipeline.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = noopTracer{}
	}
	s.orch = pipeline.NewOrchestrator(reg, store, s.opts, s.log)
	return s
}

// Store returns the underlying graph store.
func (s *Service) Store() GraphStore { return s.store }

// Registry returns the schema registry the service validates against.
func (s *Service) Registry() *Registry { return s.reg }

// RegisterRule adds a custom validation rule to the pipeline's rule set.
func (s *Service) RegisterRule(rule Rule) {
	s.orch.Validator().Engine().Register(rule)
}

// IngestBatch runs one batch end to end and archives its artifacts. The
// returned report is populated as far as the run got, including on failure.
func (s *Service) IngestBatch(ctx context.Context, batchID string, units []Unit) (*BatchReport, error) {
	start := s.nowFn()
	ctx, span := s.tracer.Start(ctx, "ingest_batch")

	report, err := s.orch.Run(ctx, batchID, units)
	span.End(err)
	if s.metrics != nil {
		s.metrics.Observe(ctx, "ingest_batch", err == nil, s.nowFn().Sub(start))
	}
	if report != nil {
		if archiveErr := s.archiveReport(ctx, report); archiveErr != nil {
			s.log.Warn("archiving batch artifacts failed", "batch", report.BatchID, "error", archiveErr)
		}
	}
	return report, err
}

// IngestAll runs independent batches concurrently via the orchestrator and
// archives every report.
func (s *Service) IngestAll(ctx context.Context, inputs []BatchInput) ([]*BatchReport, error) {
	start := s.nowFn()
	ctx, span := s.tracer.Start(ctx, "ingest_all")

	reports, err := s.orch.RunAll(ctx, inputs)
	span.End(err)
	if s.metrics != nil {
		s.metrics.Observe(ctx, "ingest_all", err == nil, s.nowFn().Sub(start))
	}
	for _, report := range reports {
		if report == nil {
			continue
		}
		if archiveErr := s.archiveReport(ctx, report); archiveErr != nil {
			s.log.Warn("archiving batch artifacts failed", "batch", report.BatchID, "error", archiveErr)
		}
	}
	return reports, err
}

// archiveReport retains the batch report and its findings as JSON artifacts.
// Keys carry a unique suffix so re-runs of the same batch id never collide
// with the archive's create-only semantics.
func (s *Service) archiveReport(ctx context.Context, report *BatchReport) error {
	if s.archive == nil {
		return nil
	}
	runID := uuid.NewString()
	reportKey := fmt.Sprintf("batches/%s/%s/report.json", report.BatchID, runID)
	if err := s.putJSON(ctx, reportKey, report); err != nil {
		return err
	}
	findingsKey := fmt.Sprintf("batches/%s/%s/findings.json", report.BatchID, runID)
	findings := report.Findings
	if findings == nil {
		findings = []domain.Finding{}
	}
	if err := s.putJSON(ctx, findingsKey, findings); err != nil {
		return err
	}
	s.log.Debug("batch artifacts archived", "batch", report.BatchID, "report", reportKey, "findings", findingsKey)
	return nil
}

func (s *Service) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = s.archive.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: "application/json"})
	return err
}

// NodeCount returns the number of committed graph nodes.
func (s *Service) NodeCount() int { return s.store.CountNodes() }

// EdgeCount returns the number of committed graph edges.
func (s *Service) EdgeCount() int { return s.store.CountEdges() }

// GetNode retrieves a committed node by id.
func (s *Service) GetNode(id string) (domain.Node, bool) { return s.store.GetNode(id) }

// ListNodes returns all committed nodes.
func (s *Service) ListNodes() []domain.Node { return s.store.ListNodes() }

// ListEdges returns all committed edges.
func (s *Service) ListEdges() []domain.Edge { return s.store.ListEdges() }
