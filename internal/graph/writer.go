// Package graph persists validated batches into a graph backend. The writer
// slices work into fixed-size transactions and upholds the referential
// guarantee: every node is committed before any edge that references it.
package graph

import (
	"context"
	"time"

	"safegraph/pkg/domain"
)

const (
	defaultBatchSize = 100
	defaultTxTimeout = 30 * time.Second
)

// Logger is the minimal structured logging surface the writer needs.
// Arguments follow the slog convention of alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// WriteSummary reports how a batch write resolved against existing state.
type WriteSummary struct {
	NodesCreated     int `json:"nodes_created"`
	NodesMerged      int `json:"nodes_merged"`
	EdgesCreated     int `json:"edges_created"`
	EdgesMerged      int `json:"edges_merged"`
	BrokenReferences int `json:"broken_references"`
	SkippedExcluded  int `json:"skipped_excluded"`
}

// Writer commits entities and relationships to a graph store in fixed-size
// transactional chunks. Each chunk is all-or-nothing; a failed chunk aborts
// the write and leaves earlier chunks committed, which is safe because every
// upsert is idempotent and the caller may simply retry the batch.
type Writer struct {
	store     domain.GraphStore
	batchSize int
	txTimeout time.Duration
	log       Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithBatchSize sets the number of upserts per transaction.
func WithBatchSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithTxTimeout bounds each transaction with its own deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.txTimeout = d
		}
	}
}

// WithLogger sets the writer's logger.
func WithLogger(l Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWriter constructs a writer over the given store.
func NewWriter(store domain.GraphStore, opts ...Option) *Writer {
	w := &Writer{
		store:     store,
		batchSize: defaultBatchSize,
		txTimeout: defaultTxTimeout,
		log:       noopLogger{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write commits the batch. Excluded entities and relationships are skipped
// and counted, never persisted. All node chunks commit before the first edge
// chunk so an edge never lands ahead of its endpoints.
func (w *Writer) Write(ctx context.Context, entities []domain.Entity, relationships []domain.Relationship) (WriteSummary, error) {
	summary := WriteSummary{}

	nodes := make([]domain.Node, 0, len(entities))
	for _, e := range entities {
		if e.Excluded {
			summary.SkippedExcluded++
			continue
		}
		nodes = append(nodes, domain.Node{
			Type:       e.Type,
			ID:         e.ID,
			Attributes: e.Attributes,
			CreatedAt:  e.CreatedAt,
			UpdatedAt:  e.UpdatedAt,
		})
	}
	edges := make([]domain.Edge, 0, len(relationships))
	now := time.Now().UTC()
	for _, r := range relationships {
		if r.Excluded {
			summary.SkippedExcluded++
			continue
		}
		edges = append(edges, domain.Edge{
			Type:       r.Type,
			SourceID:   r.SourceID,
			TargetID:   r.TargetID,
			Attributes: r.Attributes,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	for start := 0; start < len(nodes); start += w.batchSize {
		chunk := nodes[start:min(start+w.batchSize, len(nodes))]
		if err := w.writeNodeChunk(ctx, chunk, &summary); err != nil {
			return summary, err
		}
	}
	for start := 0; start < len(edges); start += w.batchSize {
		chunk := edges[start:min(start+w.batchSize, len(edges))]
		if err := w.writeEdgeChunk(ctx, chunk, &summary); err != nil {
			return summary, err
		}
	}

	w.log.Info("graph write complete",
		"nodes_created", summary.NodesCreated,
		"nodes_merged", summary.NodesMerged,
		"edges_created", summary.EdgesCreated,
		"edges_merged", summary.EdgesMerged,
		"broken_references", summary.BrokenReferences,
		"skipped_excluded", summary.SkippedExcluded)
	return summary, nil
}

func (w *Writer) writeNodeChunk(ctx context.Context, chunk []domain.Node, summary *WriteSummary) error {
	txCtx, cancel := context.WithTimeout(ctx, w.txTimeout)
	defer cancel()
	err := w.store.RunInTransaction(txCtx, func(tx domain.GraphTx) error {
		for _, node := range chunk {
			outcome, err := tx.UpsertNode(node)
			if err != nil {
				return err
			}
			switch outcome {
			case domain.OutcomeCreated:
				summary.NodesCreated++
			case domain.OutcomeMerged:
				summary.NodesMerged++
			}
		}
		return nil
	})
	if err != nil {
		return domain.StorageError{Op: "write node chunk", Retryable: true, Err: err}
	}
	return nil
}

func (w *Writer) writeEdgeChunk(ctx context.Context, chunk []domain.Edge, summary *WriteSummary) error {
	txCtx, cancel := context.WithTimeout(ctx, w.txTimeout)
	defer cancel()
	err := w.store.RunInTransaction(txCtx, func(tx domain.GraphTx) error {
		for _, edge := range chunk {
			outcome, err := tx.UpsertEdge(edge)
			if err != nil {
				return err
			}
			switch outcome {
			case domain.OutcomeCreated:
				summary.EdgesCreated++
			case domain.OutcomeMerged:
				summary.EdgesMerged++
			case domain.OutcomeBrokenReference:
				summary.BrokenReferences++
				w.log.Warn("edge endpoint missing at write time",
					"edge", edge.Key())
			}
		}
		return nil
	})
	if err != nil {
		return domain.StorageError{Op: "write edge chunk", Retryable: true, Err: err}
	}
	return nil
}
