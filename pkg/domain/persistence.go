package domain

import (
	"context"
	"time"
)

// UpsertOutcome reports how a graph write resolved.
type UpsertOutcome string

const (
	// OutcomeCreated indicates the node or edge did not exist before.
	OutcomeCreated UpsertOutcome = "created"
	// OutcomeMerged indicates attributes were merged into an existing record.
	OutcomeMerged UpsertOutcome = "merged"
	// OutcomeBrokenReference indicates an edge endpoint was missing from
	// both the store and the current transaction's pending writes.
	OutcomeBrokenReference UpsertOutcome = "broken_reference"
)

// Node is a stored graph vertex keyed by its entity id.
type Node struct {
	Type       EntityType     `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Edge is a stored graph edge keyed by (type, source, target).
type Edge struct {
	Type       RelationshipType `json:"type"`
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Attributes map[string]any   `json:"attributes,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Key returns the identity triple of the edge.
func (e Edge) Key() string {
	return string(e.Type) + "|" + e.SourceID + "|" + e.TargetID
}

// GraphTx exposes the idempotent upsert operations a graph backend must
// support within an atomic scope. Upserts are create-or-merge with
// last-write-wins per attribute.
type GraphTx interface {
	UpsertNode(node Node) (UpsertOutcome, error)
	UpsertEdge(edge Edge) (UpsertOutcome, error)
	// FindNode reports whether an id exists in the store state or the
	// transaction's pending writes.
	FindNode(id string) (Node, bool)
}

// GraphView provides read-only access to committed graph state.
type GraphView interface {
	ListNodes() []Node
	ListEdges() []Edge
	FindNode(id string) (Node, bool)
}

// GraphStore is a minimal abstraction over durable graph backends. A
// transaction either fully commits or fully rolls back; partial writes within
// one transaction are never observable.
type GraphStore interface {
	RunInTransaction(ctx context.Context, fn func(GraphTx) error) error
	View(ctx context.Context, fn func(GraphView) error) error
	GetNode(id string) (Node, bool)
	ListNodes() []Node
	ListEdges() []Edge
	CountNodes() int
	CountEdges() int
}
