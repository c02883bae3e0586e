package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"safegraph/internal/infra/persistence/memory"
	"safegraph/pkg/domain"
)

func TestNewStoreCreatesTableAndLoadsSnapshot(t *testing.T) {
	db, conn := newStubDB()
	seedSnapshot(t, conn, memory.Snapshot{
		Nodes: map[string]memory.Node{
			"a": {Type: domain.EntitySubstance, ID: "a", Attributes: map[string]any{"name": "a"}},
			"b": {Type: domain.EntityContainer, ID: "b", Attributes: map[string]any{"name": "b"}},
		},
		Edges: map[string]memory.Edge{
			"STORED_IN|a|b": {Type: domain.RelStoredIn, SourceID: "a", TargetID: "b"},
		},
	})
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.CountNodes() != 2 || store.CountEdges() != 1 {
		t.Fatalf("hydration mismatch: %d nodes, %d edges", store.CountNodes(), store.CountEdges())
	}
	var sawDDL bool
	for _, stmt := range conn.execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got execs: %v", conn.execs)
	}
}

func TestNewStorePrunesDanglingEdgesOnLoad(t *testing.T) {
	db, conn := newStubDB()
	seedSnapshot(t, conn, memory.Snapshot{
		Nodes: map[string]memory.Node{
			"a": {Type: domain.EntitySubstance, ID: "a"},
		},
		Edges: map[string]memory.Edge{
			"STORED_IN|a|ghost": {Type: domain.RelStoredIn, SourceID: "a", TargetID: "ghost"},
		},
	})
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.CountEdges() != 0 {
		t.Fatalf("edge with a missing endpoint must be pruned on load")
	}
}

func TestRunInTransactionPersistsState(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	err = store.RunInTransaction(context.Background(), func(tx domain.GraphTx) error {
		_, err := tx.UpsertNode(domain.Node{
			Type:       domain.EntitySubstance,
			ID:         "a",
			Attributes: map[string]any{"name": "a"},
		})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	payload, ok := conn.buckets["nodes"]
	if !ok {
		t.Fatalf("nodes bucket not persisted, buckets: %v", conn.buckets)
	}
	var nodes map[string]memory.Node
	if err := json.Unmarshal(payload, &nodes); err != nil {
		t.Fatalf("decode persisted nodes: %v", err)
	}
	if _, ok := nodes["a"]; !ok {
		t.Fatalf("persisted snapshot missing node: %v", nodes)
	}
}

func TestRunInTransactionStopsOnUserError(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	userErr := errors.New("user fail")
	if err := store.RunInTransaction(context.Background(), func(domain.GraphTx) error { return userErr }); !errors.Is(err, userErr) {
		t.Fatalf("expected user error, got %v", err)
	}
	if len(conn.buckets) != 0 {
		t.Fatalf("failed transaction must not persist, buckets: %v", conn.buckets)
	}
}

func TestNewStoreOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, fmt.Errorf("open fail")
	})
	defer restore()
	if _, err := NewStore(""); err == nil || !strings.Contains(err.Error(), "open fail") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestNewStorePingError(t *testing.T) {
	db, conn := newStubDB()
	conn.failPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(""); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestNewStoreDDLError(t *testing.T) {
	db, conn := newStubDB()
	conn.failExec = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(""); err == nil {
		t.Fatalf("expected ddl error")
	}
}

func TestPersistCommitError(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("ignored")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.failCommit = true
	err = store.RunInTransaction(context.Background(), func(tx domain.GraphTx) error {
		_, err := tx.UpsertNode(domain.Node{Type: domain.EntitySubstance, ID: "a"})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestLoadSnapshotRowsError(t *testing.T) {
	db, conn := newStubDB()
	conn.rowsErr = fmt.Errorf("row err")
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(""); err == nil {
		t.Fatalf("expected rows error")
	}
}

func TestLoadSnapshotDecodeError(t *testing.T) {
	db, conn := newStubDB()
	conn.buckets["nodes"] = []byte("not-json")
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(""); err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestStoreDBExposesHandle(t *testing.T) {
	db, _ := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("ignored")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.DB() == nil {
		t.Fatalf("expected DB handle")
	}
}

func seedSnapshot(t *testing.T, conn *stubConn, snapshot memory.Snapshot) {
	t.Helper()
	nodes, err := json.Marshal(snapshot.Nodes)
	if err != nil {
		t.Fatalf("marshal nodes: %v", err)
	}
	edges, err := json.Marshal(snapshot.Edges)
	if err != nil {
		t.Fatalf("marshal edges: %v", err)
	}
	conn.buckets["nodes"] = nodes
	conn.buckets["edges"] = edges
}

// stubConn implements just enough of database/sql/driver to stand in for a
// Postgres connection holding the two snapshot buckets.
type stubConn struct {
	execs      []string
	buckets    map[string][]byte
	failPing   bool
	failExec   bool
	failBegin  bool
	failCommit bool
	rowsErr    error
}

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{buckets: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *stubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *stubConn) Ping(context.Context) error {
	if c.failPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.failBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.execs = append(c.execs, query)
	if c.failExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(upper, "INSERT INTO STATE") {
		if len(args) != 2 {
			return nil, fmt.Errorf("unexpected args for state upsert: %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("bucket must be a string, got %T", args[0].Value)
		}
		payload, ok := args[1].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("payload must be bytes, got %T", args[1].Value)
		}
		c.buckets[bucket] = append([]byte(nil), payload...)
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext.
func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(strings.ToLower(query), "from state") {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	rows := make([][]driver.Value, 0, len(c.buckets))
	for _, bucket := range []string{"nodes", "edges"} {
		if payload, ok := c.buckets[bucket]; ok {
			rows = append(rows, []driver.Value{bucket, append([]byte(nil), payload...)})
		}
	}
	return &stubRows{cols: []string{"bucket", "payload"}, rows: rows, err: c.rowsErr}, nil
}

type stubTx struct {
	conn *stubConn
}

func (t *stubTx) Commit() error {
	if t.conn.failCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }

func (r *stubRows) Close() error { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
