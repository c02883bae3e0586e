// Command safegraph-ingest runs the ingestion pipeline over one or more input
// files and prints the batch reports as JSON. Tabular input (.csv) and
// ontology subject input (.json) are supported; each file becomes one batch.
//
// The process exits non-zero when any batch fails its quality gate or a
// storage error occurs.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"safegraph/internal/blob"
	"safegraph/internal/config"
	"safegraph/internal/core"
	"safegraph/internal/pipeline"
	"safegraph/internal/schemareg"
	"safegraph/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("safegraph-ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML configuration (optional)")
	verbose := fs.Bool("v", false, "enable debug logging")
	noArchive := fs.Bool("no-archive", false, "disable artifact archiving")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: safegraph-ingest [flags] <input file>...")
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := pipeline.NewSlogLogger(slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("loading configuration failed", "error", err)
		return 1
	}
	reg, err := loadRegistry(cfg.SchemaPath)
	if err != nil {
		log.Error("loading schema registry failed", "error", err)
		return 1
	}
	store, err := core.OpenGraphStore()
	if err != nil {
		log.Error("opening graph store failed", "error", err)
		return 1
	}

	opts := []core.ServiceOption{
		core.WithLogger(log),
		core.WithPipelineOptions(cfg.ToPipelineOptions()),
		core.WithMetrics(core.NewExpvarMetricsRecorder("safegraph_ingest")),
	}
	if !*noArchive {
		archive, err := blob.Open(context.Background())
		if err != nil {
			log.Error("opening artifact archive failed", "error", err)
			return 1
		}
		opts = append(opts, core.WithArchive(archive))
	}
	svc := core.NewService(reg, store, opts...)

	inputs := make([]core.BatchInput, 0, fs.NArg())
	for _, path := range fs.Args() {
		units, err := loadUnits(path)
		if err != nil {
			log.Error("reading input failed", "path", path, "error", err)
			return 1
		}
		inputs = append(inputs, core.BatchInput{ID: batchIDFor(path), Units: units})
	}

	reports, err := svc.IngestAll(context.Background(), inputs)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	for _, report := range reports {
		if report == nil {
			continue
		}
		if encErr := enc.Encode(report); encErr != nil {
			log.Error("encoding report failed", "error", encErr)
			return 1
		}
	}
	if err != nil {
		var gateErr domain.QualityGateError
		if errors.As(err, &gateErr) {
			log.Error("quality gate rejected a batch", "error", err)
			return 3
		}
		log.Error("ingestion failed", "error", err)
		return 1
	}
	return 0
}

func loadRegistry(path string) (*domain.Registry, error) {
	if path == "" {
		return schemareg.Default(), nil
	}
	return schemareg.LoadFile(path)
}

func batchIDFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// loadUnits parses one input file into raw pipeline units. CSV files yield
// rows; JSON files yield ontology subjects.
func loadUnits(path string) ([]core.Unit, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path)
	case ".json":
		return loadSubjects(path)
	default:
		return nil, fmt.Errorf("unsupported input format %q", filepath.Ext(path))
	}
}

func loadCSV(path string) ([]core.Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	// keep ragged rows so the normalizer can report the mismatch per row
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	headers := rows[0]
	units := make([]core.Unit, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		units = append(units, core.RawRow{
			Headers:   headers,
			Cells:     cells,
			SourceRef: fmt.Sprintf("%s:%d", filepath.Base(path), i+2),
		})
	}
	return units, nil
}

// subjectDoc is the JSON shape of one ontology subject.
type subjectDoc struct {
	Subject string            `json:"subject"`
	Class   string            `json:"class"`
	Pairs   map[string]string `json:"pairs"`
}

func loadSubjects(path string) ([]core.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []subjectDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse subjects: %w", err)
	}
	units := make([]core.Unit, 0, len(docs))
	for i, doc := range docs {
		pairs := make([]pipeline.PredicateObject, 0, len(doc.Pairs))
		for pred, obj := range doc.Pairs {
			pairs = append(pairs, pipeline.PredicateObject{Predicate: pred, Object: obj})
		}
		units = append(units, core.RawSubject{
			Subject:   doc.Subject,
			Class:     doc.Class,
			Pairs:     pairs,
			SourceRef: fmt.Sprintf("%s#%d", filepath.Base(path), i),
		})
	}
	return units, nil
}
