package core

import (
	"path/filepath"
	"strings"
	"testing"

	"safegraph/internal/infra/persistence/memory"
	"safegraph/internal/infra/persistence/sqlite"
)

func TestOpenGraphStoreMemory(t *testing.T) {
	t.Setenv("SAFEGRAPH_STORAGE_DRIVER", "memory")
	store, err := OpenGraphStore()
	if err != nil {
		t.Fatalf("OpenGraphStore: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenGraphStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	t.Setenv("SAFEGRAPH_STORAGE_DRIVER", "sqlite")
	t.Setenv("SAFEGRAPH_SQLITE_PATH", path)
	store, err := OpenGraphStore()
	if err != nil {
		t.Fatalf("OpenGraphStore: %v", err)
	}
	s, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}()
	if s.Path() != path {
		t.Fatalf("path = %q, want %q", s.Path(), path)
	}
}

func TestOpenGraphStoreUnknownDriver(t *testing.T) {
	t.Setenv("SAFEGRAPH_STORAGE_DRIVER", "cassette")
	if _, err := OpenGraphStore(); err == nil || !strings.Contains(err.Error(), "cassette") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}
