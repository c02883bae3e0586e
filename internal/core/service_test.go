package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"safegraph/internal/blob"
	"safegraph/internal/infra/persistence/memory"
	"safegraph/internal/schemareg"
	"safegraph/pkg/domain"
)

type recordedObservation struct {
	operation string
	success   bool
}

type fakeMetrics struct {
	mu           sync.Mutex
	observations []recordedObservation
}

func (f *fakeMetrics) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observations = append(f.observations, recordedObservation{operation: operation, success: success})
}

func cleanUnits() []Unit {
	headers := []string{"type", "name", "hazard_class", "material", "container_id"}
	return []Unit{
		RawRow{Headers: headers, Cells: []string{"substance", "acetone", "flammable", "", "tank-1"}, SourceRef: "rows.csv:2"},
		RawRow{Headers: headers, Cells: []string{"container", "tank-1", "", "glass", ""}, SourceRef: "rows.csv:3"},
	}
}

func failingUnits() []Unit {
	return []Unit{
		RawRow{Headers: []string{"type", "name", "hazard_class"}, Cells: []string{"substance", "mystery", "radioactive"}, SourceRef: "rows.csv:2"},
	}
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(schemareg.Default(), store, opts...), store
}

func TestIngestBatchArchivesArtifacts(t *testing.T) {
	archive := blob.NewMemory()
	metrics := &fakeMetrics{}
	svc, store := newTestService(t, WithArchive(archive), WithMetrics(metrics))

	report, err := svc.IngestBatch(context.Background(), "batch-1", cleanUnits())
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if !report.Quality.GatePassed {
		t.Fatalf("expected gate pass: %+v", report.Quality)
	}
	if store.CountNodes() != 2 || store.CountEdges() != 1 {
		t.Fatalf("graph state mismatch: %d nodes, %d edges", store.CountNodes(), store.CountEdges())
	}

	artifacts, err := archive.List(context.Background(), "batches/batch-1/")
	if err != nil {
		t.Fatalf("list archive: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("expected report and findings archived, got %+v", artifacts)
	}
	var sawReport, sawFindings bool
	for _, a := range artifacts {
		switch {
		case strings.HasSuffix(a.Key, "/report.json"):
			sawReport = true
			_, rc, err := archive.Get(context.Background(), a.Key)
			if err != nil {
				t.Fatalf("get archived report: %v", err)
			}
			data, _ := io.ReadAll(rc)
			_ = rc.Close()
			var decoded BatchReport
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("archived report is not valid JSON: %v", err)
			}
			if decoded.BatchID != "batch-1" {
				t.Fatalf("archived report batch id = %q", decoded.BatchID)
			}
		case strings.HasSuffix(a.Key, "/findings.json"):
			sawFindings = true
		}
	}
	if !sawReport || !sawFindings {
		t.Fatalf("archive keys missing expected artifacts: %+v", artifacts)
	}

	if len(metrics.observations) != 1 {
		t.Fatalf("expected one observation, got %+v", metrics.observations)
	}
	if obs := metrics.observations[0]; obs.operation != "ingest_batch" || !obs.success {
		t.Fatalf("unexpected observation %+v", obs)
	}
}

func TestIngestBatchGateFailureStillArchives(t *testing.T) {
	archive := blob.NewMemory()
	metrics := &fakeMetrics{}
	svc, store := newTestService(t, WithArchive(archive), WithMetrics(metrics))

	report, err := svc.IngestBatch(context.Background(), "bad-batch", failingUnits())
	var gateErr domain.QualityGateError
	if !errors.As(err, &gateErr) {
		t.Fatalf("expected quality gate error, got %v", err)
	}
	if report == nil || report.Quality.GatePassed {
		t.Fatalf("report must carry the failing scores")
	}
	if store.CountNodes() != 0 {
		t.Fatalf("failed batch must not reach the store")
	}

	artifacts, listErr := archive.List(context.Background(), "batches/bad-batch/")
	if listErr != nil || len(artifacts) != 2 {
		t.Fatalf("failed batches must archive too: %v %+v", listErr, artifacts)
	}
	if obs := metrics.observations[0]; obs.success {
		t.Fatalf("gate failure must observe as error")
	}
}

func TestIngestBatchReRunsDoNotCollideInArchive(t *testing.T) {
	archive := blob.NewMemory()
	svc, _ := newTestService(t, WithArchive(archive))

	for i := 0; i < 2; i++ {
		if _, err := svc.IngestBatch(context.Background(), "batch-1", cleanUnits()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	artifacts, err := archive.List(context.Background(), "batches/batch-1/")
	if err != nil {
		t.Fatalf("list archive: %v", err)
	}
	if len(artifacts) != 4 {
		t.Fatalf("each run must archive under its own key, got %+v", artifacts)
	}
}

func TestIngestAllArchivesEveryReport(t *testing.T) {
	archive := blob.NewMemory()
	svc, _ := newTestService(t, WithArchive(archive))

	inputs := []BatchInput{
		{ID: "one", Units: cleanUnits()},
		{ID: "two", Units: cleanUnits()},
	}
	reports, err := svc.IngestAll(context.Background(), inputs)
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected two reports")
	}
	artifacts, err := archive.List(context.Background(), "batches/")
	if err != nil || len(artifacts) != 4 {
		t.Fatalf("expected four artifacts, got %v %+v", err, artifacts)
	}
}

func TestServiceWithoutArchive(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.IngestBatch(context.Background(), "batch-1", cleanUnits()); err != nil {
		t.Fatalf("IngestBatch without archive: %v", err)
	}
	if svc.NodeCount() != 2 || svc.EdgeCount() != 1 {
		t.Fatalf("accessor mismatch: %d nodes, %d edges", svc.NodeCount(), svc.EdgeCount())
	}
	nodes := svc.ListNodes()
	if len(nodes) != 2 {
		t.Fatalf("ListNodes mismatch")
	}
	if _, ok := svc.GetNode(nodes[0].ID); !ok {
		t.Fatalf("GetNode must find a listed node")
	}
	if len(svc.ListEdges()) != 1 {
		t.Fatalf("ListEdges mismatch")
	}
}

type rejectEverything struct{}

func (rejectEverything) Name() string { return "reject_everything" }

func (rejectEverything) Evaluate(_ context.Context, view domain.BatchView) (domain.Result, error) {
	res := domain.Result{}
	for _, e := range view.Entities() {
		res.Findings = append(res.Findings, domain.Finding{
			Rule:     "reject_everything",
			Class:    domain.ClassCross,
			Severity: domain.SeverityError,
			EntityID: e.ID,
		})
	}
	return res, nil
}

func TestRegisterRuleAffectsPipeline(t *testing.T) {
	svc, store := newTestService(t)
	svc.RegisterRule(rejectEverything{})

	_, err := svc.IngestBatch(context.Background(), "batch-1", cleanUnits())
	var gateErr domain.QualityGateError
	if !errors.As(err, &gateErr) {
		t.Fatalf("custom rule must be able to fail the gate, got %v", err)
	}
	if store.CountNodes() != 0 {
		t.Fatalf("rejected batch must not persist")
	}
}
