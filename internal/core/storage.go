package core

import (
	"fmt"
	"os"

	"safegraph/internal/infra/persistence/memory"
	"safegraph/internal/infra/persistence/postgres"
	"safegraph/internal/infra/persistence/sqlite"
	"safegraph/pkg/domain"
)

// StorageDriver identifies a concrete graph storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenGraphStore selects a backend using environment variables. Defaults to
// sqlite when unset.
//
//	SAFEGRAPH_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	SAFEGRAPH_SQLITE_PATH: path to sqlite file (default ./safegraph.db)
//	SAFEGRAPH_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenGraphStore() (domain.GraphStore, error) {
	driver := os.Getenv("SAFEGRAPH_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("SAFEGRAPH_SQLITE_PATH"))
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("SAFEGRAPH_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
