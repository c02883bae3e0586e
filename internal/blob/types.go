// Package blob is the archive facade: it re-exports the core contracts so
// callers never import a backend package, and selects a backend from the
// environment.
package blob

import "safegraph/internal/blob/core"

// Re-exported contracts. See internal/blob/core for documentation.
type (
	Driver           = core.Driver
	Store            = core.Store
	Info             = core.Info
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrExists      = core.ErrExists
	ErrNotFound    = core.ErrNotFound
)
