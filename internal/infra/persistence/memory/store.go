// Package memory provides an in-memory implementation of the graph store
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"safegraph/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain
// persistence interface.
var _ domain.GraphStore = (*Store)(nil)

type (
	// Node aliases domain.Node for in-memory persistence operations.
	Node = domain.Node
	// Edge aliases domain.Edge.
	Edge = domain.Edge
	// GraphTx aliases the transactional write surface.
	GraphTx = domain.GraphTx
	// GraphView aliases the read-only view.
	GraphView = domain.GraphView
)

type graphState struct {
	nodes map[string]Node
	edges map[string]Edge
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Nodes map[string]Node `json:"nodes"`
	Edges map[string]Edge `json:"edges"`
}

func newGraphState() graphState {
	return graphState{
		nodes: make(map[string]Node),
		edges: make(map[string]Edge),
	}
}

func snapshotFromGraphState(state graphState) Snapshot {
	s := Snapshot{
		Nodes: make(map[string]Node, len(state.nodes)),
		Edges: make(map[string]Edge, len(state.edges)),
	}
	for k, v := range state.nodes {
		s.Nodes[k] = cloneNode(v)
	}
	for k, v := range state.edges {
		s.Edges[k] = cloneEdge(v)
	}
	return s
}

func graphStateFromSnapshot(s Snapshot) graphState {
	state := newGraphState()
	for k, v := range s.Nodes {
		state.nodes[k] = cloneNode(v)
	}
	for k, v := range s.Edges {
		state.edges[k] = cloneEdge(v)
	}
	return state
}

// migrateSnapshot normalizes snapshots loaded from external persistence:
// nil maps become empty and edges whose endpoints no longer exist are pruned
// so the referential guarantee survives a restore.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Nodes == nil {
		snapshot.Nodes = map[string]Node{}
	}
	if snapshot.Edges == nil {
		snapshot.Edges = map[string]Edge{}
	}
	nodeExists := func(id string) bool {
		_, ok := snapshot.Nodes[id]
		return ok
	}
	for key, edge := range snapshot.Edges {
		if !nodeExists(edge.SourceID) || !nodeExists(edge.TargetID) {
			delete(snapshot.Edges, key)
			continue
		}
		// keys derive from the edge identity; repair any drift
		if key != edge.Key() {
			delete(snapshot.Edges, key)
			snapshot.Edges[edge.Key()] = edge
		}
	}
	return snapshot
}

func (s graphState) clone() graphState {
	cloned := newGraphState()
	for k, v := range s.nodes {
		cloned.nodes[k] = cloneNode(v)
	}
	for k, v := range s.edges {
		cloned.edges[k] = cloneEdge(v)
	}
	return cloned
}

func cloneNode(n Node) Node {
	cp := n
	cp.Attributes = cloneAttrs(n.Attributes)
	return cp
}

func cloneEdge(e Edge) Edge {
	cp := e
	cp.Attributes = cloneAttrs(e.Attributes)
	return cp
}

func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// Store provides an in-memory transactional graph store.
type Store struct {
	mu    sync.RWMutex
	state graphState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory graph store.
func NewStore() *Store {
	return &Store{
		state: newGraphState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromGraphState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = graphStateFromSnapshot(migrateSnapshot(snapshot))
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	state graphState
	now   time.Time
}

// UpsertNode creates the node or merges its attributes last-write-wins into
// the existing record with the same id.
func (tx *transaction) UpsertNode(node Node) (domain.UpsertOutcome, error) {
	existing, ok := tx.state.nodes[node.ID]
	if !ok {
		cp := cloneNode(node)
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = tx.now
		}
		if cp.UpdatedAt.IsZero() {
			cp.UpdatedAt = tx.now
		}
		tx.state.nodes[node.ID] = cp
		return domain.OutcomeCreated, nil
	}
	if existing.Attributes == nil {
		existing.Attributes = make(map[string]any, len(node.Attributes))
	}
	for k, v := range node.Attributes {
		existing.Attributes[k] = v
	}
	existing.Type = node.Type
	existing.UpdatedAt = tx.now
	tx.state.nodes[node.ID] = existing
	return domain.OutcomeMerged, nil
}

// UpsertEdge creates or merges the edge keyed by (type, source, target).
// Edges referencing ids absent from the transactional state are rejected
// without failing the transaction.
func (tx *transaction) UpsertEdge(edge Edge) (domain.UpsertOutcome, error) {
	if _, ok := tx.state.nodes[edge.SourceID]; !ok {
		return domain.OutcomeBrokenReference, nil
	}
	if _, ok := tx.state.nodes[edge.TargetID]; !ok {
		return domain.OutcomeBrokenReference, nil
	}
	key := edge.Key()
	existing, ok := tx.state.edges[key]
	if !ok {
		cp := cloneEdge(edge)
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = tx.now
		}
		if cp.UpdatedAt.IsZero() {
			cp.UpdatedAt = tx.now
		}
		tx.state.edges[key] = cp
		return domain.OutcomeCreated, nil
	}
	if len(edge.Attributes) > 0 && existing.Attributes == nil {
		existing.Attributes = make(map[string]any, len(edge.Attributes))
	}
	for k, v := range edge.Attributes {
		existing.Attributes[k] = v
	}
	existing.UpdatedAt = tx.now
	tx.state.edges[key] = existing
	return domain.OutcomeMerged, nil
}

// FindNode reports whether an id exists in the transactional state, pending
// writes included.
func (tx *transaction) FindNode(id string) (Node, bool) {
	n, ok := tx.state.nodes[id]
	if !ok {
		return Node{}, false
	}
	return cloneNode(n), true
}

type graphView struct {
	state *graphState
}

func (v graphView) ListNodes() []Node {
	out := make([]Node, 0, len(v.state.nodes))
	for _, n := range v.state.nodes {
		out = append(out, cloneNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v graphView) ListEdges() []Edge {
	out := make([]Edge, 0, len(v.state.edges))
	for _, e := range v.state.edges {
		out = append(out, cloneEdge(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (v graphView) FindNode(id string) (Node, bool) {
	n, ok := v.state.nodes[id]
	if !ok {
		return Node{}, false
	}
	return cloneNode(n), true
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy replaces the live state only when fn returns nil and the
// context has not been canceled; a failed transaction leaves no trace.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx GraphTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(GraphView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(graphView{state: &snapshot})
}

// GetNode retrieves a node by id from committed state.
func (s *Store) GetNode(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.state.nodes[id]
	if !ok {
		return Node{}, false
	}
	return cloneNode(n), true
}

// ListNodes returns all committed nodes sorted by id.
func (s *Store) ListNodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return graphView{state: &s.state}.ListNodes()
}

// ListEdges returns all committed edges sorted by identity key.
func (s *Store) ListEdges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return graphView{state: &s.state}.ListEdges()
}

// CountNodes returns the number of committed nodes.
func (s *Store) CountNodes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.nodes)
}

// CountEdges returns the number of committed edges.
func (s *Store) CountEdges() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.edges)
}
